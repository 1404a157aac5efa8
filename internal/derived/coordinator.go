// Package derived keeps the validated expense projection in step with the
// canonical finance state and schedules the debounced re-analysis trigger.
package derived

import (
	"sync"
	"time"

	"finboard/internal/core"
	"finboard/internal/finance"
	"finboard/internal/log"
	"finboard/internal/observe"
)

const DefaultDebounce = 100 * time.Millisecond

// Source is the canonical state the coordinator derives from.
type Source interface {
	Snapshot() finance.Snapshot
	Subscribe(fn func(finance.Snapshot)) func()
}

// Projection is the validated expense list derived from one version of
// the rows.
type Projection struct {
	Expenses []core.Expense
	// Key identifies the projection's content; equal keys mean equal
	// expense lists.
	Key     string
	Version uint64
}

func (p Projection) Empty() bool {
	return len(p.Expenses) == 0
}

type Coordinator struct {
	source   Source
	debounce time.Duration
	logger   *log.Logger

	mu          sync.Mutex
	current     Projection
	generation  uint64
	timer       *time.Timer
	lastFired   string
	unsubscribe func()
	closed      bool

	projections observe.Subject[Projection]
	triggers    observe.Subject[Projection]
}

type Option func(*Coordinator)

func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger.WithComponent(log.ComponentDerived)
		}
	}
}

func New(source Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:   source,
		debounce: DefaultDebounce,
		logger:   log.Default(log.ComponentDerived),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current = project(source.Snapshot())
	return c
}

// Start subscribes to the source. The projection present at start-up is
// treated as a change, so a non-empty initial state schedules a trigger.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.unsubscribe != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.unsubscribe = c.source.Subscribe(c.update)
	initial := c.current
	c.current = Projection{}
	c.mu.Unlock()

	c.apply(initial)
}

// Close stops listening and cancels any pending trigger.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Current returns the projection of the latest state.
func (c *Coordinator) Current() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OnProjection registers fn for every change of the projection.
func (c *Coordinator) OnProjection(fn func(Projection)) func() {
	return c.projections.Subscribe(fn)
}

// OnTrigger registers fn for the debounced trigger. fn runs on a timer
// goroutine with the projection current at the time it fires.
func (c *Coordinator) OnTrigger(fn func(Projection)) func() {
	return c.triggers.Subscribe(fn)
}

func (c *Coordinator) update(snap finance.Snapshot) {
	c.apply(project(snap))
}

func (c *Coordinator) apply(next Projection) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := next.Key != c.current.Key
	c.current = next
	if !changed {
		c.mu.Unlock()
		return
	}

	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Any content change re-arms the trigger, even back to the last fired key.
	c.lastFired = ""
	if !next.Empty() {
		gen := c.generation
		c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
	}
	c.mu.Unlock()

	c.projections.Publish(next)
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	p := c.current
	if p.Empty() || p.Key == c.lastFired {
		c.mu.Unlock()
		return
	}
	c.lastFired = p.Key
	c.mu.Unlock()

	c.logger.Debug("Projection settled",
		log.FieldExpenseCount, len(p.Expenses),
		log.FieldOperation, log.OpDetect)
	c.triggers.Publish(p)
}

func project(snap finance.Snapshot) Projection {
	expenses := core.Project(snap.Rows)
	return Projection{
		Expenses: expenses,
		Key:      core.Key(expenses),
		Version:  snap.Version,
	}
}
