package queue

import (
	"context"
	"testing"
)

type fakeRegistrar struct {
	names    []string
	patterns []string
	payloads []AnalyticsPayload
}

func (f *fakeRegistrar) RegisterRecurring(ctx context.Context, name string, pattern string, payload AnalyticsPayload) error {
	f.names = append(f.names, name)
	f.patterns = append(f.patterns, pattern)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestEnsureRecurring(t *testing.T) {
	reg := &fakeRegistrar{}
	s := NewScheduler(reg, nil)

	if err := s.EnsureRecurring(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(reg.names) != 1 {
		t.Fatalf("expected one registration, got %d", len(reg.names))
	}
	if reg.names[0] != RecurringJobName {
		t.Fatalf("name = %s, want %s", reg.names[0], RecurringJobName)
	}
	if reg.patterns[0] != RecurringPattern {
		t.Fatalf("pattern = %s, want %s", reg.patterns[0], RecurringPattern)
	}
	payload := reg.payloads[0]
	if payload.Type != JobTypeRecurring {
		t.Fatalf("payload type = %s, want recurring", payload.Type)
	}
	if payload.UserId != "system" {
		t.Fatalf("payload userId = %s, want system", payload.UserId)
	}
}

func TestEnsureRecurringIdempotent(t *testing.T) {
	reg := &fakeRegistrar{}
	s := NewScheduler(reg, nil)

	for i := 0; i < 3; i++ {
		if err := s.EnsureRecurring(context.Background()); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	// The registrar upserts by name, so repeated calls register the same entry.
	for _, name := range reg.names {
		if name != RecurringJobName {
			t.Fatalf("unexpected registration %s", name)
		}
	}
}
