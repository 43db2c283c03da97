package storage

import (
	"fmt"
	"testing"
	"time"

	"ratelimiter/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// violationAt builds a valid violation for identifier i occurring offset
// after baseTime.
func violationAt(i int, offset time.Duration) *models.Violation {
	v := models.NewViolation(fmt.Sprintf("client-%d", i), "ip", "auth", "sliding_window", 5, 60)
	v.Method = "POST"
	v.Path = "/api/auth/login"
	v.OccurredAt = baseTime.Add(offset)
	return v
}

// exerciseViolationStore runs the behaviour every ViolationStore must share.
func exerciseViolationStore(t *testing.T, s ViolationStore) {
	t.Helper()
	ctx := t.Context()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	empty, err := s.RecentViolations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentViolations on empty store failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no violations, got %d", len(empty))
	}

	for i := range 5 {
		if err := s.RecordViolation(ctx, violationAt(i, time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordViolation %d failed: %v", i, err)
		}
	}

	got, err := s.RecentViolations(ctx, 3)
	if err != nil {
		t.Fatalf("RecentViolations failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(got))
	}
	for i, want := range []string{"client-4", "client-3", "client-2"} {
		if got[i].Identifier != want {
			t.Errorf("violation %d: expected %s, got %s", i, want, got[i].Identifier)
		}
	}

	newest := got[0]
	if !newest.OccurredAt.Equal(baseTime.Add(4 * time.Second)) {
		t.Errorf("expected occurred_at %v, got %v", baseTime.Add(4*time.Second), newest.OccurredAt)
	}
	if newest.Method != "POST" || newest.Path != "/api/auth/login" {
		t.Errorf("request fields not preserved: %s %s", newest.Method, newest.Path)
	}
	if newest.Limit != 5 || newest.RetryAfter != 60 {
		t.Errorf("limit fields not preserved: limit=%d retryAfter=%d", newest.Limit, newest.RetryAfter)
	}

	invalid := violationAt(99, 0)
	invalid.Identifier = ""
	if err := s.RecordViolation(ctx, invalid); err == nil {
		t.Error("expected error recording invalid violation")
	}
}
