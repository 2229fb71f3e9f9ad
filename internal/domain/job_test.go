package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusCompleted, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestProgressAppendLogsKeepsTail(t *testing.T) {
	var p Progress
	for i := 0; i < MaxProgressLogs+5; i++ {
		p.AppendLogs(fmt.Sprintf("line %d", i), "")
	}
	if len(p.Logs) != MaxProgressLogs {
		t.Fatalf("len(Logs) = %d, want %d", len(p.Logs), MaxProgressLogs)
	}
	if p.Logs[0] != "line 5" {
		t.Fatalf("Logs[0] = %q, want %q", p.Logs[0], "line 5")
	}
}

func TestSafeMessageHidesInternalCause(t *testing.T) {
	internal := errors.New("dial tcp 10.0.0.3:5432: connection refused")
	if got := SafeMessage(internal); got != GenericFailureMessage {
		t.Fatalf("SafeMessage(internal) = %q", got)
	}
	classified := NewError(KindRateLimit, SurfaceJob, "provider is busy", internal)
	wrapped := fmt.Errorf("poll: %w", classified)
	if got := SafeMessage(wrapped); got != "provider is busy" {
		t.Fatalf("SafeMessage(classified) = %q", got)
	}
	if KindOf(wrapped) != KindRateLimit {
		t.Fatalf("KindOf = %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, internal) {
		t.Fatal("classified error should unwrap to its cause")
	}
	if Retryable(KindTimeout) {
		t.Fatal("timeout must not be retryable")
	}
}

func TestParseGenerationType(t *testing.T) {
	if got, ok := ParseGenerationType(" Image-To-Video "); !ok || got != ImageToVideo {
		t.Fatalf("ParseGenerationType = %q, %v", got, ok)
	}
	if _, ok := ParseGenerationType("audio-to-video"); ok {
		t.Fatal("unexpected generation type accepted")
	}
}

func TestOwnsStorageRef(t *testing.T) {
	tests := []struct {
		owner, ref string
		want       bool
	}{
		{"o1", "uploads/o1/a.png", true},
		{"o1", "/generated/o1/job/output.png", true},
		{"o1", "uploads/o2/a.png", false},
		{"o1", "uploads/o1/", false},
		{"o1", "uploads/o1", false},
		{"o1", "o1/a.png", false},
		{"o1", "private/o1/a.png", false},
		{"o1", "uploads/o1/../o2/a.png", false},
		{"o1", "https://cdn.example.com/uploads/o1/a.png", false},
		{"o1", "data:image/png;base64,AAAA", false},
		{"", "uploads//a.png", false},
	}
	for _, tc := range tests {
		if got := OwnsStorageRef(tc.owner, tc.ref); got != tc.want {
			t.Fatalf("OwnsStorageRef(%q, %q) = %v, want %v", tc.owner, tc.ref, got, tc.want)
		}
	}
}
