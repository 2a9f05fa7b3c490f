package guard

import (
	"context"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [Middleware].
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

// StateReader is the read side of [Source].
type StateReader interface {
	State() goSession.State
}

// Middleware enforces g on every request using the state read at request
// time. While recovery runs the loading handler answers (nil means 503 with
// Retry-After: 1); unauthorized requests get a 303 to the decision's route;
// authorized requests reach next with the session in the context.
func Middleware(src StateReader, g Guard, loading http.Handler) func(http.Handler) http.Handler {
	if loading == nil {
		loading = http.HandlerFunc(defaultLoading)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Redirect(w, r, g.Routes.withDefaults().SignIn, http.StatusSeeOther)
				return
			}

			d := g.Evaluate(src.State())
			switch d.Status {
			case Checking:
				loading.ServeHTTP(w, r)
			case Unauthorized:
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
			default:
				ctx := context.WithValue(r.Context(), sessionContextKey{}, d.Session)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func defaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", "1")
	http.Error(w, "session check in progress", http.StatusServiceUnavailable)
}
