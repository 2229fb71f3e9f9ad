package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
)

func event(jobID string, status domain.JobStatus, log string) domain.JobProgress {
	ev := domain.JobProgress{JobID: jobID, Status: status, At: time.Now()}
	if log != "" {
		ev.Logs = []string{log}
	}
	return ev
}

func drain(t *testing.T, sub *Subscription) []domain.JobProgress {
	t.Helper()
	var out []domain.JobProgress
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not end, got %d events", len(out))
		}
	}
}

func TestBrokerStreamEndsAtTerminalEvent(t *testing.T) {
	b := NewBroker(4)
	ctx := context.Background()
	initial := event("job-1", domain.JobStatusProcessing, "")
	sub := b.Subscribe("job-1", &initial)

	b.Publish(ctx, event("job-2", domain.JobStatusProcessing, "other job"))
	b.Publish(ctx, event("job-1", domain.JobStatusProcessing, "step 1"))
	b.Publish(ctx, event("job-1", domain.JobStatusCompleted, ""))

	got := drain(t, sub)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"step 1"}, got[1].Logs)
	assert.Equal(t, domain.JobStatusCompleted, got[2].Status)
	assert.Zero(t, b.Subscribers("job-1"))

	// Closing after the stream ended must not panic.
	sub.Close()
}

func TestBrokerTerminalSnapshotClosesImmediately(t *testing.T) {
	b := NewBroker(1)
	done := event("job-1", domain.JobStatusFailed, "")
	got := drain(t, b.Subscribe("job-1", &done))
	require.Len(t, got, 1)
	assert.Equal(t, domain.JobStatusFailed, got[0].Status)
	assert.Zero(t, b.Subscribers("job-1"))
}

func TestBrokerDropsOldestForSlowConsumer(t *testing.T) {
	b := NewBroker(2)
	ctx := context.Background()
	sub := b.Subscribe("job-1", nil)
	for _, line := range []string{"a", "b", "c", "d"} {
		b.Publish(ctx, event("job-1", domain.JobStatusProcessing, line))
	}
	b.Publish(ctx, event("job-1", domain.JobStatusCancelled, ""))

	got := drain(t, sub)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"d"}, got[0].Logs)
	assert.Equal(t, domain.JobStatusCancelled, got[1].Status)
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	b := NewBroker(2)
	sub := b.Subscribe("job-1", nil)
	assert.Equal(t, 1, b.Subscribers("job-1"))
	sub.Close()
	sub.Close()
	assert.Zero(t, b.Subscribers("job-1"))
	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestRedisRelayForwardsBetweenProcesses(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	logger := zerolog.Nop()
	sender := NewRedisRelay(client, "", logger)
	receiver := NewRedisRelay(client, "", logger)

	local := NewBroker(4)
	sub := local.Subscribe("job-9", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = receiver.Run(ctx, local) }()

	select {
	case <-receiver.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	sender.Publish(ctx, event("job-9", domain.JobStatusProcessing, "remote step"))
	// Events from the receiver itself are ignored.
	receiver.Publish(ctx, event("job-9", domain.JobStatusProcessing, "echo"))
	sender.Publish(ctx, event("job-9", domain.JobStatusCompleted, ""))

	got := drain(t, sub)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"remote step"}, got[0].Logs)
	assert.Equal(t, domain.JobStatusCompleted, got[1].Status)
}

type recorder struct{ events []domain.JobProgress }

func (r *recorder) Publish(_ context.Context, ev domain.JobProgress) { r.events = append(r.events, ev) }

func TestFanoutPublishesToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Fanout{a, nil, b}.Publish(context.Background(), event("j", domain.JobStatusPending, ""))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
