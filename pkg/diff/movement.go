package diff

// Movement is the positional arrow a display layer shows next to a record.
type Movement string

const (
	Up      Movement = "up"
	Down    Movement = "down"
	Entered Movement = "entered"
	Exited  Movement = "exited"
	Same    Movement = "same"
)

func (r Record) Movement() Movement {
	switch {
	case r.OldRank == r.NewRank:
		return Same
	case r.OldRank == Unranked:
		return Entered
	case r.NewRank == Unranked:
		return Exited
	case r.NewRank < r.OldRank:
		return Up
	default:
		return Down
	}
}

// Delta is the number of places gained; zero when either side is unranked.
func (r Record) Delta() int {
	if r.OldRank == Unranked || r.NewRank == Unranked {
		return 0
	}
	return int(r.OldRank - r.NewRank)
}
