// Package authoritytest runs an in-process session authority that issues
// HS256 JWT credentials. It backs the Manager, gateway and guard tests and
// the guarded-portal example.
package authoritytest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/goSession/session"
)

const issuer = "authoritytest"

// Profile is what the fake returns from the profile endpoint.
type Profile struct {
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Phone     string       `json:"phone,omitempty"`
	AvatarURL string       `json:"avatarUrl,omitempty"`
	Role      session.Role `json:"role"`
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Server is a fake authority. All methods are safe for concurrent use.
type Server struct {
	srv    *httptest.Server
	secret []byte
	ttl    time.Duration

	mu          sync.Mutex
	profiles    map[string]Profile
	revoked     map[string]bool
	unavailable bool
	bare        bool
	profileGate chan struct{}
	profileSeen chan struct{}

	verifyCalls  atomic.Int64
	logoutCalls  atomic.Int64
	profileCalls atomic.Int64
}

// Option configures a [Server].
type Option func(*Server)

// WithTTL sets the lifetime of issued credentials. Default one hour.
func WithTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithBareProfile makes the profile endpoint answer with a bare object
// instead of {"data": {...}}.
func WithBareProfile() Option {
	return func(s *Server) { s.bare = true }
}

// New starts a Server on a loopback listener. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte(uuid.NewString()),
		ttl:      time.Hour,
		profiles: make(map[string]Profile),
		revoked:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewServer(s.Handler())
	return s
}

// URL is the base URL of the running server.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the listener down. Later calls fail with a transport error.
func (s *Server) Close() { s.srv.Close() }

// Handler serves the authority endpoints, for mounting in another mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/verify-token", s.handleVerify)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /parent/profile", s.handleProfile)
	return mux
}

// SignIn registers a user with a fresh id and returns the session and
// credential a client would receive from the sign-in screen.
func (s *Server) SignIn(p Profile) (session.Session, string, error) {
	if !p.Role.Valid() {
		return session.Session{}, "", session.ErrInvalidRole
	}
	userID := uuid.NewString()

	s.mu.Lock()
	s.profiles[userID] = p
	s.mu.Unlock()

	token, err := s.Issue(userID, p.Role)
	if err != nil {
		return session.Session{}, "", err
	}
	return session.Session{
		UserID: userID,
		Role:   p.Role,
		Profile: session.Profile{
			Name:      p.Name,
			Email:     p.Email,
			Phone:     p.Phone,
			AvatarURL: p.AvatarURL,
		},
	}, token, nil
}

// Issue signs a credential for an existing or ad-hoc user id.
func (s *Server) Issue(userID string, role session.Role) (string, error) {
	now := time.Now()
	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// SetProfile replaces what the profile endpoint returns for userID.
func (s *Server) SetProfile(userID string, p Profile) {
	s.mu.Lock()
	s.profiles[userID] = p
	s.mu.Unlock()
}

// Revoke makes credential fail verification from now on.
func (s *Server) Revoke(credential string) {
	c, err := s.parse(credential)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.revoked[c.ID] = true
	s.mu.Unlock()
}

// SetUnavailable makes every endpoint answer 503.
func (s *Server) SetUnavailable(v bool) {
	s.mu.Lock()
	s.unavailable = v
	s.mu.Unlock()
}

// HoldProfile makes profile requests block until release is called.
// started receives once per request that reached the hold point.
func (s *Server) HoldProfile() (started <-chan struct{}, release func()) {
	gate := make(chan struct{})
	seen := make(chan struct{}, 16)

	s.mu.Lock()
	s.profileGate = gate
	s.profileSeen = seen
	s.mu.Unlock()

	var once sync.Once
	return seen, func() {
		once.Do(func() {
			s.mu.Lock()
			s.profileGate = nil
			s.profileSeen = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// VerifyCalls, LogoutCalls and ProfileCalls count requests served.
func (s *Server) VerifyCalls() int64  { return s.verifyCalls.Load() }
func (s *Server) LogoutCalls() int64  { return s.logoutCalls.Load() }
func (s *Server) ProfileCalls() int64 { return s.profileCalls.Load() }

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.verifyCalls.Add(1)
	if s.isUnavailable(w) {
		return
	}
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)
	if s.isUnavailable(w) {
		return
	}
	c, ok := s.authorize(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.revoked[c.ID] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.profileCalls.Add(1)

	s.mu.Lock()
	gate, seen := s.profileGate, s.profileSeen
	s.mu.Unlock()
	if gate != nil {
		select {
		case seen <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if s.isUnavailable(w) {
		return
	}
	c, ok := s.authorize(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	p, found := s.profiles[c.Subject]
	bare := s.bare
	s.mu.Unlock()
	if !found {
		p = Profile{Role: session.Role(c.Role)}
	}
	if bare {
		writeJSON(w, http.StatusOK, p)
		return
	}
	writeJSON(w, http.StatusOK, map[string]Profile{"data": p})
}

func (s *Server) isUnavailable(w http.ResponseWriter) bool {
	s.mu.Lock()
	down := s.unavailable
	s.mu.Unlock()
	if down {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
	}
	return down
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*claims, bool) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing credential"})
		return nil, false
	}
	c, err := s.parse(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credential"})
		return nil, false
	}
	s.mu.Lock()
	revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if revoked {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "revoked credential"})
		return nil, false
	}
	return c, true
}

func (s *Server) parse(token string) (*claims, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || c.ID == "" || c.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
