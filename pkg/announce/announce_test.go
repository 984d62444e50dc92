package announce_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/canopy-network/ladder/pkg/announce"
	ladderredis "github.com/canopy-network/ladder/pkg/redis"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var at = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func TestMultiAndRecorder(t *testing.T) {
	first, second := &announce.Recorder{}, &announce.Recorder{}
	multi := announce.Multi{first, announce.Log{Logger: zaptest.NewLogger(t)}, second}

	multi.Announce(context.Background(), announce.Event{Kind: announce.KindOpen, Text: "The ladder is now open.", At: at})
	multi.Announce(context.Background(), announce.Event{Kind: announce.KindClose, Text: "The ladder is now closed.", At: at})

	assert.Equal(t, []announce.Kind{announce.KindOpen, announce.KindClose}, first.Kinds())
	assert.Equal(t, first.Events(), second.Events())

	first.Reset()
	assert.Empty(t, first.Events())
}

func TestFanoutPreservesOrderPerSink(t *testing.T) {
	fast := &announce.Recorder{}
	slow := &announce.Recorder{}
	slowSink := announce.Func(func(ctx context.Context, evt announce.Event) {
		time.Sleep(time.Millisecond)
		slow.Announce(ctx, evt)
	})

	fanout := announce.NewFanout(zaptest.NewLogger(t), 4, 64, fast, slowSink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 20; i++ {
		fanout.Announce(ctx, announce.Event{Kind: announce.KindChanged, Text: fmt.Sprint(i), At: at})
	}
	cancel()
	fanout.Close()

	for _, rec := range []*announce.Recorder{fast, slow} {
		events := rec.Events()
		require.Len(t, events, 20)
		for i, evt := range events {
			assert.Equal(t, fmt.Sprint(i), evt.Text)
		}
	}
}

func TestFanoutRecoversFromPanickingSink(t *testing.T) {
	rec := &announce.Recorder{}
	boom := announce.Func(func(context.Context, announce.Event) { panic("boom") })

	fanout := announce.NewFanout(zaptest.NewLogger(t), 2, 8, boom, rec)
	fanout.Announce(context.Background(), announce.Event{Kind: announce.KindDecay, At: at})
	fanout.Close()

	assert.Equal(t, []announce.Kind{announce.KindDecay}, rec.Kinds())
}

func TestRedisAnnouncerWritesStream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := ladderredis.Wrap(rdb, zaptest.NewLogger(t), 50)
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "ladder")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	announcer := &announce.Redis{Client: client, Channel: "ladder", Stream: "ladder:events", Logger: zaptest.NewLogger(t)}
	evt := announce.Event{
		Kind: announce.KindTopFresh,
		Text: "alice is the new top of the ladder.",
		At:   at,
		Data: map[string]any{"userId": "alice"},
	}
	announcer.Announce(ctx, evt)

	msg, err := sub.ReceiveTimeout(ctx, time.Second)
	require.NoError(t, err)
	payload, ok := msg.(*goredis.Message)
	require.True(t, ok)
	assert.Contains(t, payload.Payload, `"kind":"toplog.fresh"`)

	entries, err := client.XRange(ctx, "ladder:events", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "toplog.fresh", entries[0].Values["kind"])

	decoded, err := announce.DecodeStreamValues(entries[0].Values)
	require.NoError(t, err)
	assert.Equal(t, evt.Kind, decoded.Kind)
	assert.Equal(t, evt.Text, decoded.Text)
	assert.True(t, evt.At.Equal(decoded.At))
	assert.Equal(t, map[string]any{"userId": "alice"}, decoded.Data)
}

func TestDecodeStreamValuesWithoutPayload(t *testing.T) {
	evt, err := announce.DecodeStreamValues(map[string]interface{}{
		"kind": "ladder.open",
		"text": "The ladder is now open.",
		"at":   at.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, announce.KindOpen, evt.Kind)
	assert.True(t, at.Equal(evt.At))

	_, err = announce.DecodeStreamValues(map[string]interface{}{"payload": "{"})
	assert.Error(t, err)
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := announce.NewHub(zaptest.NewLogger(t))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Announce(context.Background(), announce.Event{Kind: announce.KindOpen, Text: "The ladder is now open.", At: at})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got announce.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, announce.KindOpen, got.Kind)
	assert.Equal(t, "The ladder is now open.", got.Text)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
