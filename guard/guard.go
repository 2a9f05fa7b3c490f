package guard

import (
	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

// Status is the guard's verdict for one state.
type Status int

const (
	// Checking: recovery has not finished; render a loading indicator only.
	Checking Status = iota
	// Unauthorized: redirect to Decision.Redirect; never render content.
	Unauthorized
	// Authorized: render the protected content.
	Authorized
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "checking"
	case Unauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

// Routes is the redirect table.
type Routes struct {
	SignIn  string
	Landing map[session.Role]string
}

// DefaultRoutes returns the stock sign-in and per-role landing routes.
func DefaultRoutes() Routes {
	return Routes{
		SignIn: "/auth/sign-in",
		Landing: map[session.Role]string{
			session.RoleParent: "/parent/home",
			session.RoleStaff:  "/staff/home",
		},
	}
}

// RoutesFromConfig builds Routes from the guard section of the config.
func RoutesFromConfig(cfg goSession.GuardConfig) Routes {
	r := Routes{SignIn: cfg.SignInRoute, Landing: cfg.LandingRoutes()}
	if r.SignIn == "" {
		r.SignIn = DefaultRoutes().SignIn
	}
	return r
}

// LandingFor returns role's landing route, falling back to SignIn.
func (r Routes) LandingFor(role session.Role) string {
	if route, ok := r.Landing[role]; ok && route != "" {
		return route
	}
	return r.SignIn
}

// withDefaults fills an unset sign-in route. A zero Routes becomes
// DefaultRoutes.
func (r Routes) withDefaults() Routes {
	if r.SignIn != "" {
		return r
	}
	if r.Landing == nil {
		return DefaultRoutes()
	}
	r.SignIn = DefaultRoutes().SignIn
	return r
}

// Guard protects one view. Require is the role the view needs; empty means
// any authenticated role. Routes without a sign-in route fall back to
// DefaultRoutes.
type Guard struct {
	Require session.Role
	Routes  Routes
}

// Decision is the result of evaluating a Guard against a state.
type Decision struct {
	Status Status
	// Redirect is set only when Status is Unauthorized.
	Redirect string
	// Session is set only when Status is Authorized.
	Session *session.Session
}

// Evaluate maps st to a decision. It is pure and cheap; call it again on
// every state change rather than caching an earlier verdict.
func (g Guard) Evaluate(st goSession.State) Decision {
	if st.Initializing {
		return Decision{Status: Checking}
	}
	routes := g.Routes.withDefaults()
	if st.Session == nil {
		return Decision{Status: Unauthorized, Redirect: routes.SignIn}
	}
	if g.Require != "" && st.Session.Role != g.Require {
		return Decision{Status: Unauthorized, Redirect: routes.LandingFor(st.Session.Role)}
	}
	return Decision{Status: Authorized, Session: st.Session}
}
