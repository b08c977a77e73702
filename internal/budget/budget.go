// Package budget tracks monthly token consumption against an advisory budget.
//
// The [Tracker] accumulates the total tokens of every recorded call, resets
// the count when the calendar month changes and emits one [Notification] per
// crossed threshold per month. It never blocks calls.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/salescoach/internal/store"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// DefaultMonthlyBudget is the token budget used when none is configured.
const DefaultMonthlyBudget = 500_000

// DefaultThresholds are the usage percentages that trigger a notification.
var DefaultThresholds = []int{50, 75, 90, 100}

// warningThreshold is the lowest percentage reported at warning level.
const warningThreshold = 90

const statsKey = "token_usage_stats"

// Level is the severity of a [Notification].
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notification reports that usage crossed a threshold.
type Notification struct {
	ID        string    `json:"id"`
	Threshold int       `json:"threshold"`
	Level     Level     `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is the persisted usage state for the current month.
type Stats struct {
	MonthlyBudget      int            `json:"monthlyBudget"`
	UsedInMonth        int            `json:"usedInMonth"`
	LastReset          time.Time      `json:"lastReset"`
	NotifiedThresholds []int          `json:"notifiedThresholds,omitempty"`
	Notifications      []Notification `json:"notifications,omitempty"`
}

// Percent returns the share of the budget consumed, or 0 without a budget.
func (s Stats) Percent() float64 {
	if s.MonthlyBudget <= 0 {
		return 0
	}
	return float64(s.UsedInMonth) / float64(s.MonthlyBudget) * 100
}

// Tracker records usage in a [store.Store].
type Tracker struct {
	store      store.Store
	budget     int
	thresholds []int
	now        func() time.Time
	log        *slog.Logger

	mu sync.Mutex
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithMonthlyBudget sets the budget applied when no stats exist yet.
func WithMonthlyBudget(n int) Option {
	return func(t *Tracker) { t.budget = n }
}

// WithThresholds overrides [DefaultThresholds].
func WithThresholds(p []int) Option {
	return func(t *Tracker) { t.thresholds = slices.Sorted(slices.Values(p)) }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New creates a Tracker persisting to s.
func New(s store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:      s,
		budget:     DefaultMonthlyBudget,
		thresholds: DefaultThresholds,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Stats returns the current month's stats, resetting them first if the
// month has rolled over.
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, changed, err := t.loadLocked(ctx)
	if err != nil {
		return Stats{}, err
	}
	if changed {
		if err := t.saveLocked(ctx, st); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

// Record adds u.TotalTokens to the month and returns the notifications for
// thresholds crossed for the first time this month.
func (t *Tracker) Record(ctx context.Context, u llm.Usage) ([]Notification, error) {
	if u.TotalTokens <= 0 {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st, _, err := t.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	st.UsedInMonth += u.TotalTokens

	var fired []Notification
	if st.MonthlyBudget > 0 {
		pct := st.Percent()
		for _, th := range t.thresholds {
			if pct < float64(th) || slices.Contains(st.NotifiedThresholds, th) {
				continue
			}
			n := t.notification(th)
			fired = append(fired, n)
			st.NotifiedThresholds = append(st.NotifiedThresholds, th)
			st.Notifications = append(st.Notifications, n)
			t.log.Log(ctx, logLevel(n.Level), "budget: threshold reached",
				"threshold", th, "used", st.UsedInMonth, "budget", st.MonthlyBudget)
		}
	}
	if err := t.saveLocked(ctx, st); err != nil {
		return nil, err
	}
	return fired, nil
}

// SetMonthlyBudget changes the budget for the current month. Thresholds
// already notified stay notified.
func (t *Tracker) SetMonthlyBudget(ctx context.Context, n int) (Stats, error) {
	if n < 0 {
		return Stats{}, fmt.Errorf("budget: monthly budget must be >= 0, got %d", n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st, _, err := t.loadLocked(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.MonthlyBudget = n
	if err := t.saveLocked(ctx, st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (t *Tracker) notification(threshold int) Notification {
	level := LevelInfo
	if threshold >= warningThreshold {
		level = LevelWarning
	}
	return Notification{
		ID:        uuid.NewString(),
		Threshold: threshold,
		Level:     level,
		Message:   fmt.Sprintf("Has consumido el %d%% de tu presupuesto de tokens mensual.", threshold),
		Timestamp: t.now(),
	}
}

// loadLocked reads the stats, initialising or resetting them as needed. The
// changed result reports whether the returned value differs from storage.
func (t *Tracker) loadLocked(ctx context.Context) (Stats, bool, error) {
	var st Stats
	ok, err := store.GetJSON(ctx, t.store, statsKey, &st)
	if err != nil {
		return Stats{}, false, fmt.Errorf("budget: load: %w", err)
	}
	now := t.now()
	if !ok {
		return Stats{MonthlyBudget: t.budget, LastReset: now}, true, nil
	}
	last := st.LastReset.In(now.Location())
	if now.Year() != last.Year() || now.Month() != last.Month() {
		return Stats{MonthlyBudget: st.MonthlyBudget, LastReset: now}, true, nil
	}
	return st, false, nil
}

func (t *Tracker) saveLocked(ctx context.Context, st Stats) error {
	if err := store.PutJSON(ctx, t.store, statsKey, st); err != nil {
		return fmt.Errorf("budget: save: %w", err)
	}
	return nil
}

func logLevel(l Level) slog.Level {
	if l == LevelWarning {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
