package router

import (
	"context"
	"sync"

	"finboard/internal/log"
	"finboard/internal/observe"
	"finboard/internal/session"
)

const maxRedirects = 4

// StateSource reports the current session.
type StateSource interface {
	Current() session.Session
}

// View is where the user is after the guard has run.
type View struct {
	Path     string
	Route    Route
	Decision Decision
}

// Navigator tracks the current view and re-runs the guard whenever the
// session changes.
type Navigator struct {
	source StateSource
	logger *log.Logger

	mu      sync.Mutex
	current View

	changes observe.Subject[View]
}

func NewNavigator(source StateSource, logger *log.Logger) *Navigator {
	if logger == nil {
		logger = log.Default(log.ComponentRouter)
	}
	return &Navigator{
		source: source,
		logger: logger.WithComponent(log.ComponentRouter),
	}
}

// Current returns the view the user is on.
func (n *Navigator) Current() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Subscribe registers fn for every view change.
func (n *Navigator) Subscribe(fn func(View)) func() {
	return n.changes.Subscribe(fn)
}

// Navigate moves to path, following guard redirects.
func (n *Navigator) Navigate(ctx context.Context, path string) View {
	return n.move(ctx, path)
}

// SessionChanged re-evaluates the current view. It is registered as a
// session subscriber.
func (n *Navigator) SessionChanged(s session.Session) {
	n.mu.Lock()
	path := n.current.Path
	n.mu.Unlock()
	if path == "" {
		return
	}
	n.move(context.Background(), path)
}

// Unauthorized sends the user to the login view if the current view
// needs a session. It is safe to call repeatedly.
func (n *Navigator) Unauthorized(ctx context.Context) {
	n.mu.Lock()
	access := n.current.Route.Access
	n.mu.Unlock()
	if access != Protected {
		return
	}
	n.move(ctx, PathLogin)
}

func (n *Navigator) move(ctx context.Context, path string) View {
	state := n.source.Current().State
	view := resolve(state, path)

	n.mu.Lock()
	changed := view != n.current
	n.current = view
	n.mu.Unlock()

	if view.Path != path {
		n.logger.InfoContext(ctx, "Route guard redirected",
			log.FieldRoute, path,
			log.FieldRedirect, view.Path,
			log.FieldSessionState, string(state))
	}
	if changed {
		n.changes.Publish(view)
	}
	return view
}

func resolve(state session.State, path string) View {
	for i := 0; i < maxRedirects; i++ {
		route, ok := Match(path)
		if !ok {
			return View{Path: path, Decision: Decision{Action: NotFound}}
		}
		decision := Guard(state, route)
		if decision.Action != Redirect {
			return View{Path: route.Path, Route: route, Decision: decision}
		}
		path = decision.Target
	}
	return View{Path: path, Decision: Decision{Action: NotFound}}
}
