// Package coach combines the task repository with the advisor: the daily
// quote, the smart-priority plan and per-task breakdowns.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hiroki-koketsu/focusflow/internal/advisor"
	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/hiroki-koketsu/focusflow/internal/repository"
	"github.com/hiroki-koketsu/focusflow/internal/store"
	"github.com/hiroki-koketsu/focusflow/internal/view"
	"golang.org/x/sync/singleflight"
)

// QuoteKey is the store key of the quote-of-the-day cache.
const QuoteKey = "focusflow_quote"

// Tasks is the part of the repository the coach reads.
type Tasks interface {
	Snapshot() repository.Snapshot
	Get(ctx context.Context, id string) (model.Task, bool)
}

// Quote is the cached motivation for one calendar day.
type Quote struct {
	Date  string `json:"date"`
	Quote string `json:"quote"`
}

// Plan is a smart-priority plan and the task revision it was computed from.
// Stale is set when the task list changed while the plan was being produced.
type Plan struct {
	Text     string `json:"plan"`
	Revision uint64 `json:"revision"`
	Stale    bool   `json:"stale"`
}

// Coach serves the advisory features of the dashboard.
type Coach struct {
	tasks   Tasks
	advisor advisor.Advisor
	store   store.Store
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location

	group singleflight.Group

	mu   sync.Mutex
	plan *Plan
}

// Option configures a Coach.
type Option func(*Coach)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coach) { c.now = now }
}

// WithLocation sets the time zone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(c *Coach) { c.loc = loc }
}

// New creates a Coach.
func New(tasks Tasks, adv advisor.Advisor, st store.Store, logger *slog.Logger, opts ...Option) *Coach {
	c := &Coach{
		tasks:   tasks,
		advisor: adv,
		store:   st,
		logger:  logger,
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Today returns the current calendar date.
func (c *Coach) Today() string {
	return model.Today(c.now(), c.loc)
}

// Statistics computes dashboard statistics for today.
func (c *Coach) Statistics() model.Statistics {
	return view.Statistics(c.tasks.Snapshot().Tasks, c.Today())
}

// Motivation returns today's quote, asking the advisor at most once per day.
// Concurrent misses share one request.
func (c *Coach) Motivation(ctx context.Context) string {
	today := c.Today()

	if q, ok := c.cachedQuote(ctx); ok && q.Date == today {
		return q.Quote
	}

	// Shared by every waiter, so one caller leaving must not cancel it.
	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do("quote:"+today, func() (any, error) {
		ctx := flightCtx
		if q, ok := c.cachedQuote(ctx); ok && q.Date == today {
			return q.Quote, nil
		}

		pending := len(view.Filter(c.tasks.Snapshot().Tasks, model.FilterPending))
		quote := c.advisor.DailyMotivation(ctx, pending)

		if err := c.saveQuote(ctx, Quote{Date: today, Quote: quote}); err != nil {
			c.logger.WarnContext(ctx, "failed to cache daily quote", slog.Any("error", err))
		}
		return quote, nil
	})
	return v.(string)
}

// Plan returns the smart-priority plan for the current pending tasks. A plan
// is reused while the task list is unchanged. If the list changes while the
// advisor is answering, the answer is returned marked stale and not kept.
func (c *Coach) Plan(ctx context.Context) Plan {
	snap := c.tasks.Snapshot()

	c.mu.Lock()
	if c.plan != nil && c.plan.Revision == snap.Revision {
		p := *c.plan
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	flightCtx := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do("plan:"+strconv.FormatUint(snap.Revision, 10), func() (any, error) {
		pending := view.Filter(snap.Tasks, model.FilterPending)
		return c.advisor.SmartPriorityPlan(flightCtx, pending), nil
	})
	p := Plan{Text: v.(string), Revision: snap.Revision}

	if ctx.Err() != nil {
		// Nobody is waiting for this answer any more.
		p.Stale = true
		return p
	}
	if current := c.tasks.Snapshot().Revision; current != snap.Revision {
		c.logger.DebugContext(ctx, "discarding plan for outdated task list",
			slog.Uint64("plan_revision", snap.Revision),
			slog.Uint64("current_revision", current),
		)
		p.Stale = true
		return p
	}

	c.mu.Lock()
	c.plan = &p
	c.mu.Unlock()
	return p
}

// Breakdown asks the advisor to split task id into steps. found is false
// when the task does not exist; ok is false when the advisor had no answer.
func (c *Coach) Breakdown(ctx context.Context, id string) (b *model.Breakdown, found, ok bool) {
	task, found := c.tasks.Get(ctx, id)
	if !found {
		return nil, false, false
	}
	b, ok = c.advisor.TaskBreakdown(ctx, task.Title, task.Description)
	return b, true, ok
}

func (c *Coach) cachedQuote(ctx context.Context) (Quote, bool) {
	raw, ok, err := c.store.Get(ctx, QuoteKey)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read daily quote cache", slog.Any("error", err))
		return Quote{}, false
	}
	if !ok {
		return Quote{}, false
	}

	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil || q.Quote == "" {
		return Quote{}, false
	}
	return q, true
}

func (c *Coach) saveQuote(ctx context.Context, q Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return c.store.Set(ctx, QuoteKey, string(data))
}
