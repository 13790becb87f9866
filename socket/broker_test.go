package socket

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EditorUpdateType, "p1", "conn-1", EditorUpdate{TabID: "tab-1", Markup: "<p/>"})
	require.NoError(t, err)

	raw, err := encodeFrame("node-a", env)
	require.NoError(t, err)

	got, origin, err := decodeFrame(ProjectChannel("p1"), raw)
	require.NoError(t, err)
	assert.Equal(t, "node-a", origin)
	assert.Equal(t, env.Type, got.Type)
	assert.Equal(t, "conn-1", got.SenderID)
	assert.JSONEq(t, string(env.Payload), string(got.Payload))
}

func TestEncodeFrameRequiresProject(t *testing.T) {
	_, err := encodeFrame("node-a", Envelope{Type: CursorLeaveType})
	assert.Error(t, err)
}

func TestDecodeFrameRejectsMismatchedChannel(t *testing.T) {
	raw, err := encodeFrame("node-a", Envelope{Type: CursorLeaveType, ProjectID: "p1"})
	require.NoError(t, err)

	_, _, err = decodeFrame(ProjectChannel("p2"), raw)
	assert.Error(t, err)

	_, _, err = decodeFrame(ProjectChannel("p1"), []byte("not json"))
	assert.Error(t, err)
}

func TestRedisBrokerIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectRedis(ctx, addr)
	require.NoError(t, err)
	defer client.Close()
	broker := NewRedisBroker(client)

	received := make(chan Envelope, 4)
	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	go broker.Subscribe(subCtx, "node-b", func(env Envelope) { received <- env })
	// Give the subscription a moment to register before publishing.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, broker.Publish(ctx, "node-b", Envelope{Type: CursorLeaveType, ProjectID: "p-self"}))
	require.NoError(t, broker.Publish(ctx, "node-a", Envelope{Type: CursorLeaveType, ProjectID: "p-other", SenderID: "conn-9"}))

	select {
	case env := <-received:
		assert.Equal(t, "p-other", env.ProjectID)
		assert.Equal(t, "conn-9", env.SenderID)
	case <-ctx.Done():
		t.Fatal("no envelope delivered")
	}
}
