package router

import (
	"context"
	"testing"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/session"
)

type fakeSource struct {
	state session.State
}

func (f *fakeSource) Current() session.Session {
	s := session.Session{State: f.state}
	if f.state == session.StateAuthenticated {
		s.User = &core.UserProfile{ID: "u1"}
	}
	return s
}

func TestNavigatorFollowsSession(t *testing.T) {
	src := &fakeSource{state: session.StateLoading}
	nav := NewNavigator(src, log.Discard())
	var views []string
	nav.Subscribe(func(v View) { views = append(views, v.Path+":"+v.Decision.Action.String()) })

	ctx := context.Background()
	if v := nav.Navigate(ctx, "/"); v.Decision.Action != Placeholder {
		t.Fatalf("expected placeholder while loading, got %+v", v)
	}

	src.state = session.StateGuest
	nav.SessionChanged(src.Current())
	if v := nav.Current(); v.Path != "/login" || v.Decision.Action != Render {
		t.Fatalf("expected login view, got %+v", v)
	}

	src.state = session.StateAuthenticated
	nav.SessionChanged(src.Current())
	if v := nav.Current(); v.Path != "/" || v.Decision.Action != Render {
		t.Fatalf("expected dashboard after login, got %+v", v)
	}

	want := []string{"/:placeholder", "/login:render", "/:render"}
	if len(views) != len(want) {
		t.Fatalf("views = %v, want %v", views, want)
	}
	for i := range want {
		if views[i] != want[i] {
			t.Errorf("views[%d] = %q, want %q", i, views[i], want[i])
		}
	}
}

func TestNavigatorUnauthorized(t *testing.T) {
	src := &fakeSource{state: session.StateAuthenticated}
	nav := NewNavigator(src, log.Discard())
	ctx := context.Background()

	nav.Navigate(ctx, "/")
	src.state = session.StateGuest
	nav.Unauthorized(ctx)
	nav.Unauthorized(ctx)
	if v := nav.Current(); v.Path != "/login" {
		t.Fatalf("expected redirect to login, got %+v", v)
	}

	// Verification pages stay put.
	nav.Navigate(ctx, "/verify/abc")
	nav.Unauthorized(ctx)
	if v := nav.Current(); v.Route.Name != "verify" {
		t.Fatalf("expected to stay on verify, got %+v", v)
	}
}

func TestNavigatorUnknownPath(t *testing.T) {
	nav := NewNavigator(&fakeSource{state: session.StateGuest}, log.Discard())
	if v := nav.Navigate(context.Background(), "/nope"); v.Decision.Action != NotFound {
		t.Fatalf("expected not found, got %+v", v)
	}
}
