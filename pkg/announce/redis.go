package announce

import (
	"context"
	"encoding/json"
	"time"

	"github.com/canopy-network/ladder/pkg/redis"
	"go.uber.org/zap"
)

// Redis publishes events to a pub/sub channel and appends them to a capped
// stream so late consumers can replay recent history.
type Redis struct {
	Client  *redis.Client
	Channel string
	Stream  string
	Logger  *zap.Logger
}

func (r *Redis) Announce(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		r.Logger.Warn("Failed to encode announcement", zap.String("kind", string(evt.Kind)), zap.Error(err))
		return
	}

	if r.Channel != "" {
		r.Client.Publish(ctx, r.Channel, payload)
	}
	if r.Stream != "" {
		r.Client.XAdd(ctx, r.Stream, map[string]interface{}{
			"kind":    string(evt.Kind),
			"text":    evt.Text,
			"at":      evt.At.UTC().Format(time.RFC3339Nano),
			"payload": string(payload),
		})
	}
}

// DecodeStreamValues rebuilds an event from the fields written by Redis.Announce.
func DecodeStreamValues(values map[string]interface{}) (Event, error) {
	if raw, ok := values["payload"].(string); ok {
		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return Event{}, err
		}
		return evt, nil
	}

	evt := Event{}
	if kind, ok := values["kind"].(string); ok {
		evt.Kind = Kind(kind)
	}
	if text, ok := values["text"].(string); ok {
		evt.Text = text
	}
	if at, ok := values["at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			evt.At = parsed
		}
	}
	return evt, nil
}
