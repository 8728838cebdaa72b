package youtube

import (
	"errors"
	"sync"
	"time"

	"github.com/FranksOps/curator/internal/metrics"
)

// ErrQuotaExhausted is returned when a call would cross the daily threshold.
var ErrQuotaExhausted = errors.New("youtube: daily quota threshold reached")

// Unit costs of the calls this package makes.
const (
	CostSearch = 100
	CostVideos = 1
)

// Budget tracks quota units spent by this process in the current UTC day.
type Budget struct {
	mu               sync.Mutex
	dailyLimit       int
	thresholdPercent int
	day              string
	used             int
	now              func() time.Time
}

// NewBudget creates a tracker. Non-positive limits fall back to the API default
// of 10000 units, and an out-of-range threshold to 90 percent.
func NewBudget(dailyLimit, thresholdPercent int) *Budget {
	if dailyLimit <= 0 {
		dailyLimit = 10000
	}
	if thresholdPercent <= 0 || thresholdPercent > 100 {
		thresholdPercent = 90
	}
	return &Budget{
		dailyLimit:       dailyLimit,
		thresholdPercent: thresholdPercent,
		now:              time.Now,
	}
}

// Reserve charges cost units, or returns ErrQuotaExhausted without charging.
func (b *Budget) Reserve(cost int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()

	if b.used+cost > b.threshold() {
		return ErrQuotaExhausted
	}
	b.used += cost
	metrics.QuotaUnitsTotal.Add(float64(cost))
	return nil
}

// Used returns units charged today.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.used
}

// Remaining returns units left before the threshold.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	if r := b.threshold() - b.used; r > 0 {
		return r
	}
	return 0
}

func (b *Budget) threshold() int {
	return b.dailyLimit * b.thresholdPercent / 100
}

// roll resets the counter when the UTC day changes. Callers hold mu.
func (b *Budget) roll() {
	day := b.now().UTC().Format(time.DateOnly)
	if day != b.day {
		b.day = day
		b.used = 0
	}
}
