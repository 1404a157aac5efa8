// Package dashboard composes the finance state, the derived projection and
// the backend gateway into the operations a dashboard screen performs.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/derived"
	"finboard/internal/finance"
	"finboard/internal/gateway"
	"finboard/internal/history"
	"finboard/internal/log"
	"finboard/internal/observe"
	"finboard/internal/session"
)

const (
	DefaultTrendsTTL    = 5 * time.Minute
	DefaultTrendsMonths = 6
)

var ErrNoExpenses = errors.New("no expenses to analyze")

// API is the backend surface the dashboard uses. *gateway.Client
// implements it.
type API interface {
	Analyze(ctx context.Context, in gateway.AnalyzeRequest) (core.AnalysisResult, error)
	DetectRecurring(ctx context.Context, expenses []core.Expense) (gateway.RecurringSummary, error)

	ListGoals(ctx context.Context) ([]gateway.Goal, error)
	CreateGoal(ctx context.Context, in gateway.GoalInput) error
	UpdateGoal(ctx context.Context, id string, in gateway.GoalUpdate) error
	DeleteGoal(ctx context.Context, id string) error
	GoalSuggestions(ctx context.Context, id string, income float64) (string, error)

	MonthlyTrends(ctx context.Context, months int) ([]gateway.MonthlyTrend, error)
	CategoryTrends(ctx context.Context, months int) (map[string]float64, error)

	Chat(ctx context.Context, message string, chatCtx gateway.ChatContext) (gateway.ChatReply, error)
	ClearChat(ctx context.Context) error

	UploadPDF(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error)
}

type Dashboard struct {
	api     API
	state   *finance.State
	derived *derived.Coordinator
	history *history.Store
	logger  *log.Logger

	trendsMonths int
	trends       *cache.LRUCache[Trends]
	flight       singleflight.Group

	// ctx bounds background work started by the recurring trigger.
	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	mu        sync.Mutex
	result    core.AnalysisResult
	recurring RecurringView
	chat      []Message
	userID    string

	recurringChanges observe.Subject[RecurringView]
}

type Option func(*Dashboard)

func WithLogger(logger *log.Logger) Option {
	return func(d *Dashboard) {
		if logger != nil {
			d.logger = logger.WithComponent(log.ComponentDashboard)
		}
	}
}

// WithTrendsCache replaces the trends cache.
func WithTrendsCache(c *cache.LRUCache[Trends]) Option {
	return func(d *Dashboard) {
		if c != nil {
			d.trends = c
		}
	}
}

func WithTrendsMonths(months int) Option {
	return func(d *Dashboard) {
		if months > 0 {
			d.trendsMonths = months
		}
	}
}

func New(api API, state *finance.State, coord *derived.Coordinator, store *history.Store, opts ...Option) *Dashboard {
	d := &Dashboard{
		api:          api,
		state:        state,
		derived:      coord,
		history:      store,
		logger:       log.Default(log.ComponentDashboard),
		trendsMonths: DefaultTrendsMonths,
		trends:       cache.NewLRUCache[Trends](16, DefaultTrendsTTL),
		chat:         []Message{greeting},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start attaches the dashboard to the coordinator. It must be called
// before the coordinator is started so the initial projection is seen.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	d.cancel()
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.recurring = RecurringView{Key: d.derived.Current().Key}
	d.mu.Unlock()

	d.unsubs = append(d.unsubs,
		d.derived.OnProjection(d.projectionChanged),
		d.derived.OnTrigger(d.detectOnTrigger),
	)
}

// Close detaches from the coordinator and cancels in-flight background
// requests.
func (d *Dashboard) Close() {
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
	d.cancel()
}

// SessionChanged drops per-user data when the signed-in user changes.
func (d *Dashboard) SessionChanged(s session.Session) {
	if s.State == session.StateLoading {
		return
	}
	d.mu.Lock()
	user := s.UserID()
	if user == d.userID {
		d.mu.Unlock()
		return
	}
	d.userID = user
	d.chat = []Message{greeting}
	d.mu.Unlock()

	d.trends.Clear()
	d.logger.Debug("Per-user views reset",
		log.FieldSessionState, string(s.State))
}
