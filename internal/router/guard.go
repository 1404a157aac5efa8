// Package router decides which view the user may see given the session
// state, and tracks the current view as the session changes.
package router

import (
	"strings"

	"finboard/internal/session"
)

const (
	PathDashboard = "/"
	PathLogin     = "/login"
	PathSignup    = "/signup"
	PathVerify    = "/verify/"
)

// Access is the guard policy attached to a route.
type Access int

const (
	// Open routes never consult the session.
	Open Access = iota
	// Protected routes require an authenticated session.
	Protected
	// PublicOnly routes are for guests; signed-in users are sent home.
	PublicOnly
)

func (a Access) String() string {
	switch a {
	case Protected:
		return "protected"
	case PublicOnly:
		return "public-only"
	default:
		return "open"
	}
}

type Route struct {
	Name   string
	Path   string
	Access Access
	// Param is the trailing path parameter, e.g. the verification token.
	Param string
}

type Action int

const (
	Render Action = iota
	// Placeholder shows a loading indicator while the session resolves.
	Placeholder
	Redirect
	NotFound
)

func (a Action) String() string {
	switch a {
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not-found"
	default:
		return "render"
	}
}

type Decision struct {
	Action Action
	// Target is set for Redirect.
	Target string
}

// Match maps a path to its route.
func Match(path string) (Route, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch path {
	case PathDashboard, "":
		return Route{Name: "dashboard", Path: PathDashboard, Access: Protected}, true
	case PathLogin:
		return Route{Name: "login", Path: PathLogin, Access: PublicOnly}, true
	case PathSignup:
		return Route{Name: "signup", Path: PathSignup, Access: PublicOnly}, true
	}
	if token, ok := strings.CutPrefix(path, PathVerify); ok && token != "" && !strings.Contains(token, "/") {
		return Route{Name: "verify", Path: path, Access: Open, Param: token}, true
	}
	return Route{}, false
}

// Guard is the access decision for route under state.
func Guard(state session.State, route Route) Decision {
	if route.Access == Open {
		return Decision{Action: Render}
	}
	if state == session.StateLoading {
		return Decision{Action: Placeholder}
	}

	authenticated := state == session.StateAuthenticated
	switch {
	case route.Access == Protected && !authenticated:
		return Decision{Action: Redirect, Target: PathLogin}
	case route.Access == PublicOnly && authenticated:
		return Decision{Action: Redirect, Target: PathDashboard}
	}
	return Decision{Action: Render}
}
