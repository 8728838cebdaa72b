package youtube

import (
	"errors"
	"testing"
	"time"
)

func TestBudget_Threshold(t *testing.T) {
	b := NewBudget(1000, 50) // 500 usable units

	for i := 0; i < 5; i++ {
		if err := b.Reserve(CostSearch); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if err := b.Reserve(CostVideos); !errors.Is(err, ErrQuotaExhausted) {
		t.Errorf("expected ErrQuotaExhausted, got %v", err)
	}
	if b.Used() != 500 {
		t.Errorf("a refused reservation must not be charged, used=%d", b.Used())
	}
	if b.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", b.Remaining())
	}
}

func TestBudget_Defaults(t *testing.T) {
	b := NewBudget(0, 0)
	if b.dailyLimit != 10000 || b.thresholdPercent != 90 {
		t.Errorf("unexpected defaults %d/%d", b.dailyLimit, b.thresholdPercent)
	}
	if b.Remaining() != 9000 {
		t.Errorf("expected 9000 remaining, got %d", b.Remaining())
	}
}

func TestBudget_ResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 5, 1, 23, 59, 0, 0, time.UTC)
	b := NewBudget(200, 100)
	b.now = func() time.Time { return now }

	if err := b.Reserve(200); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := b.Reserve(1); err == nil {
		t.Fatal("expected budget to be exhausted")
	}

	now = now.Add(2 * time.Minute)
	if err := b.Reserve(1); err != nil {
		t.Errorf("expected a fresh budget on the next UTC day, got %v", err)
	}
}
