package goSession_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authority"
	"github.com/MrEthical07/goSession/authority/authoritytest"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/session"
)

type harness struct {
	fake  *authoritytest.Server
	kv    session.KV
	store *session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := authoritytest.New()
	t.Cleanup(fake.Close)
	kv := session.NewMemoryKV()
	return &harness{fake: fake, kv: kv, store: session.NewStore(kv, "")}
}

func (h *harness) authority(t *testing.T) *authority.Client {
	t.Helper()
	cfg := goSession.DefaultConfig().Authority
	cfg.BaseURL = h.fake.URL()
	cfg.Timeout = 2 * time.Second
	c, err := authority.New(cfg)
	if err != nil {
		t.Fatalf("authority.New: %v", err)
	}
	return c
}

func (h *harness) manager(t *testing.T, configure ...func(*goSession.Builder)) *goSession.Manager {
	t.Helper()
	b := goSession.New().WithKV(h.kv).WithAuthority(h.authority(t))
	for _, fn := range configure {
		fn(b)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func (h *harness) persistedKeys(t *testing.T) map[string]string {
	t.Helper()
	values, err := h.kv.Get(context.Background(), h.store.Keys()...)
	if err != nil {
		t.Fatalf("kv.Get: %v", err)
	}
	return values
}

func (h *harness) signIn(t *testing.T, role session.Role) (session.Session, string) {
	t.Helper()
	sess, token, err := h.fake.SignIn(authoritytest.Profile{Name: "Ana", Email: "ana@example.com", Role: role})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	sess.Dependents = []session.Dependent{{ID: "c1", Name: "Leo"}, {ID: "c2", Name: "Mia"}}
	return sess, token
}

func recovered(t *testing.T, m *goSession.Manager) {
	t.Helper()
	if err := m.RecoverSession(context.Background()); err != nil {
		t.Fatalf("RecoverSession: %v", err)
	}
}

func TestLoginThenRecoverPreservesIdentity(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	fake := authoritytest.New()
	defer fake.Close()
	h := &harness{fake: fake}

	build := func() *goSession.Manager {
		kv := session.NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		m, err := goSession.New().WithKV(kv).WithAuthority(h.authority(t)).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return m
	}

	ctx := context.Background()
	first := build()
	recovered(t, first)

	sess, token, err := fake.SignIn(authoritytest.Profile{Name: "Ana", Role: session.RoleStaff})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if err := first.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	first.Close()

	fake.SetProfile(sess.UserID, authoritytest.Profile{Name: "Ana Maria", Role: session.RoleStaff})

	second := build()
	if !second.IsInitializing() {
		t.Fatal("expected initializing before recovery")
	}
	recovered(t, second)
	if second.IsInitializing() {
		t.Fatal("expected initialization to finish")
	}
	select {
	case <-second.Initialized():
	default:
		t.Fatal("Initialized channel not closed")
	}

	got := second.Session()
	if got == nil {
		t.Fatal("expected recovered session")
	}
	if got.UserID != sess.UserID || got.Role != sess.Role {
		t.Fatalf("recovered %s/%s, want %s/%s", got.UserID, got.Role, sess.UserID, sess.Role)
	}

	// Close waits for the background refresh started by recovery.
	second.Close()
	if name := second.Session().Profile.Name; name != "Ana Maria" {
		t.Fatalf("profile after background refresh = %q", name)
	}
	if fake.VerifyCalls() != 1 {
		t.Fatalf("verify calls = %d, want 1", fake.VerifyCalls())
	}
	if got := second.MetricsSnapshot().Counters[goSession.MetricRecoverVerified]; got != 1 {
		t.Fatalf("recover verified metric = %d", got)
	}
}

func TestRecoverFailureClearsStore(t *testing.T) {
	cases := []struct {
		name     string
		sabotage func(h *harness, token string)
	}{
		{"rejected", func(h *harness, token string) { h.fake.Revoke(token) }},
		{"server error", func(h *harness, _ string) { h.fake.SetUnavailable(true) }},
		{"unreachable", func(h *harness, _ string) { h.fake.Close() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			m := h.manager(t)
			recovered(t, m)
			sess, token := h.signIn(t, session.RoleParent)
			if err := m.Login(ctx, sess, token); err != nil {
				t.Fatalf("Login: %v", err)
			}

			tc.sabotage(h, token)

			restarted := h.manager(t)
			recovered(t, restarted)
			if restarted.Session() != nil {
				t.Fatal("expected no session after failed verification")
			}
			if _, ok, _ := restarted.Credential(ctx); ok {
				t.Fatal("credential key must be absent after failed verification")
			}
			if keys := h.persistedKeys(t); len(keys) != 0 {
				t.Fatalf("persisted keys left behind: %v", keys)
			}
			if restarted.IsInitializing() {
				t.Fatal("initialization must finish")
			}
		})
	}
}

func TestRecoverCorruptLayout(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]string
	}{
		{"credential only", map[string]string{"goSession:credential": "tok"}},
		{"snapshot only", map[string]string{"goSession:session": `{"v":1,"session":{"userId":"u1","role":"parent"}}`}},
		{"undecodable", map[string]string{"goSession:session": "{{{", "goSession:credential": "tok"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if err := h.kv.Set(context.Background(), tc.values); err != nil {
				t.Fatalf("seed: %v", err)
			}

			m := h.manager(t)
			recovered(t, m)
			if m.Session() != nil {
				t.Fatal("corrupt layout must not produce a session")
			}
			if keys := h.persistedKeys(t); len(keys) != 0 {
				t.Fatalf("corrupt layout not cleared: %v", keys)
			}
			if h.fake.VerifyCalls() != 0 {
				t.Fatal("corrupt layout must not be verified remotely")
			}
			if got := m.MetricsSnapshot().Counters[goSession.MetricRecoverCorrupt]; got != 1 {
				t.Fatalf("corrupt metric = %d", got)
			}
		})
	}
}

type faultyKV struct {
	session.KV
	mu        sync.Mutex
	failGet   bool
	failSet   bool
	failClear bool
}

var errBackend = errors.New("backend down")

func (f *faultyKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errBackend
	}
	return f.KV.Get(ctx, keys...)
}

func (f *faultyKV) Set(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.KV.Set(ctx, values)
}

func (f *faultyKV) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	fail := f.failClear
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.KV.Delete(ctx, keys...)
}

func TestRecoverLoadFailureStillInitializes(t *testing.T) {
	h := newHarness(t)
	h.kv = &faultyKV{KV: session.NewMemoryKV(), failGet: true}

	m := h.manager(t)
	err := m.RecoverSession(context.Background())
	if !errors.Is(err, goSession.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if m.IsInitializing() || m.Session() != nil {
		t.Fatal("load failure must end initialized and unauthenticated")
	}
	if err := m.RecoverSession(context.Background()); err != nil {
		t.Fatalf("second RecoverSession must be a no-op, got %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		sess       session.Session
		credential string
	}{
		{"empty credential", session.Session{UserID: "u1", Role: session.RoleParent}, "  "},
		{"missing user", session.Session{Role: session.RoleParent}, "tok"},
		{"unknown role", session.Session{UserID: "u1", Role: "admin"}, "tok"},
	}
	for _, tc := range cases {
		if err := m.Login(ctx, tc.sess, tc.credential); !errors.Is(err, goSession.ErrInvalidSession) {
			t.Fatalf("%s: expected ErrInvalidSession, got %v", tc.name, err)
		}
	}
	if m.Session() != nil {
		t.Fatal("invalid login must not set a session")
	}
}

func TestLoginPersistenceFailureLeavesMemoryUntouched(t *testing.T) {
	h := newHarness(t)
	kv := &faultyKV{KV: session.NewMemoryKV()}
	h.kv = kv
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}

	kv.mu.Lock()
	kv.failSet = true
	kv.mu.Unlock()

	other, otherToken := h.signIn(t, session.RoleStaff)
	err := m.Login(ctx, other, otherToken)
	if !errors.Is(err, goSession.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := m.Session(); got == nil || got.UserID != sess.UserID {
		t.Fatalf("memory changed after failed persist: %+v", got)
	}
	if cred, _, _ := m.Credential(ctx); cred != token {
		t.Fatal("persisted credential changed after failed persist")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout without session: %v", err)
	}
	if m.Session() != nil || len(h.persistedKeys(t)) != 0 {
		t.Fatal("logout without session must leave everything cleared")
	}
	if h.fake.LogoutCalls() != 0 {
		t.Fatal("no remote logout without a credential")
	}

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if m.Session() != nil || len(h.persistedKeys(t)) != 0 {
		t.Fatal("logout must clear memory and all three keys")
	}
	if h.fake.LogoutCalls() != 1 {
		t.Fatalf("remote logout calls = %d, want 1", h.fake.LogoutCalls())
	}
}

func TestLogoutSwallowsRemoteFailure(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.fake.SetUnavailable(true)

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout must swallow remote failure: %v", err)
	}
	if m.Session() != nil || len(h.persistedKeys(t)) != 0 {
		t.Fatal("local state must be cleared despite remote failure")
	}
	if got := m.MetricsSnapshot().Counters[goSession.MetricLogoutRemoteFailure]; got != 1 {
		t.Fatalf("remote failure metric = %d", got)
	}
}

func TestLogoutClearFailureStillClearsMemory(t *testing.T) {
	h := newHarness(t)
	kv := &faultyKV{KV: session.NewMemoryKV()}
	h.kv = kv
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	kv.mu.Lock()
	kv.failClear = true
	kv.mu.Unlock()

	if err := m.Logout(ctx); !errors.Is(err, goSession.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if m.Session() != nil {
		t.Fatal("memory must be cleared even when the store is not")
	}
}

func TestUpdateDependentsReplaces(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	if err := m.UpdateDependents(ctx, nil); !errors.Is(err, goSession.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if n := len(m.Session().Dependents); n != 2 {
		t.Fatalf("seed dependents = %d", n)
	}

	x := session.Dependent{ID: "c9", Name: "Zoe"}
	if err := m.UpdateDependents(ctx, []session.Dependent{x}); err != nil {
		t.Fatalf("UpdateDependents: %v", err)
	}
	got := m.Session().Dependents
	if len(got) != 1 || got[0] != x {
		t.Fatalf("dependents = %+v, want exactly [%+v]", got, x)
	}

	p, err := h.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	persisted, err := session.Decode(p.Snapshot)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(persisted.Dependents) != 1 {
		t.Fatalf("persisted dependents = %d", len(persisted.Dependents))
	}
	if p.Credential != token {
		t.Fatal("dependents update must not touch the credential")
	}
}

func TestUpdateProfileMergesAndPersists(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	name := "Ana B."
	if err := m.UpdateProfile(ctx, session.ProfilePatch{Name: &name}); !errors.Is(err, goSession.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.UpdateProfile(ctx, session.ProfilePatch{Name: &name}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got := m.Session()
	if got.Profile.Name != name || got.Profile.Email != "ana@example.com" {
		t.Fatalf("profile = %+v", got.Profile)
	}

	bad := session.Role("admin")
	if err := m.UpdateProfile(ctx, session.ProfilePatch{Role: &bad}); !errors.Is(err, goSession.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if m.Session().Role != session.RoleParent {
		t.Fatal("rejected patch must not change the role")
	}
}

func TestSessionReturnsPrivateCopy(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(context.Background(), sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	s := m.Session()
	s.Dependents[0].Name = "mutated"
	s.Profile.Name = "mutated"
	if got := m.Session(); got.Dependents[0].Name == "mutated" || got.Profile.Name == "mutated" {
		t.Fatal("Session must not alias Manager state")
	}
}

func TestRefreshInFlightDoesNotResurrectAfterLogout(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}

	started, release := h.fake.HoldProfile()
	errCh := make(chan error, 1)
	go func() { errCh <- m.Refresh(ctx) }()
	<-started

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	release()

	if err := <-errCh; err == nil {
		t.Fatal("refresh racing logout must not report success")
	}
	if m.Session() != nil {
		t.Fatal("refresh resurrected a logged-out session")
	}
	if len(h.persistedKeys(t)) != 0 {
		t.Fatal("refresh rewrote persisted state after logout")
	}
}

func TestRefreshResultDroppedWhenSessionReplaced(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	first, firstToken := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, first, firstToken); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.fake.SetProfile(first.UserID, authoritytest.Profile{Name: "stale", Role: session.RoleParent})

	started, release := h.fake.HoldProfile()
	errCh := make(chan error, 1)
	go func() { errCh <- m.Refresh(ctx) }()
	<-started

	second, secondToken := h.signIn(t, session.RoleStaff)
	if err := m.Login(ctx, second, secondToken); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	release()

	if err := <-errCh; !errors.Is(err, goSession.ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged, got %v", err)
	}
	got := m.Session()
	if got.UserID != second.UserID || got.Profile.Name == "stale" {
		t.Fatalf("stale refresh applied to new session: %+v", got)
	}
	if got := m.MetricsSnapshot().Counters[goSession.MetricRefreshDiscarded]; got != 1 {
		t.Fatalf("discarded metric = %d", got)
	}
}

func TestRefreshFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	if err := m.Refresh(ctx); !errors.Is(err, goSession.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.fake.SetUnavailable(true)

	if err := m.Refresh(ctx); !errors.Is(err, authority.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if m.Session() == nil {
		t.Fatal("refresh failure must not clear the session")
	}
}

func TestGatewayUnauthorizedClearsSession(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	if err := m.Login(ctx, session.Session{UserID: "u1", Role: session.RoleParent}, "tok-A"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cred, ok, err := m.Credential(ctx)
	if err != nil || !ok || cred != "tok-A" {
		t.Fatalf("Credential = %q, %v, %v", cred, ok, err)
	}

	gw, err := gateway.New(api.URL, m, gateway.WithMetrics(m.Metrics()))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	if _, err := gw.Request(ctx, "/parent/children", gateway.Options{}); !errors.Is(err, goSession.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if m.Session() != nil {
		t.Fatal("session must be null after authorization failure")
	}
	if _, ok, _ := m.Credential(ctx); ok {
		t.Fatal("credential must be absent after authorization failure")
	}
}

func TestLateUnauthorizedForReplacedCredentialIsIgnored(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	if err := m.Login(ctx, session.Session{UserID: "u1", Role: session.RoleParent}, "tok-B"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.InvalidateCredential(ctx, "tok-A"); err != nil {
		t.Fatalf("InvalidateCredential: %v", err)
	}
	if m.Session() == nil {
		t.Fatal("a 401 for an older credential must not clear the newer session")
	}
	if err := m.InvalidateCredential(ctx, "tok-B"); err != nil {
		t.Fatalf("InvalidateCredential: %v", err)
	}
	if m.Session() != nil {
		t.Fatal("matching credential must clear the session")
	}
}

func TestLateUnauthorizedWithoutCredentialKeepsNewLogin(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	recovered(t, m)
	ctx := context.Background()

	arrived := make(chan string, 1)
	release := make(chan struct{})
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- r.Header.Get("Authorization")
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	gw, err := gateway.New(api.URL, m)
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := gw.Request(ctx, "/parent/children", gateway.Options{})
		done <- err
	}()

	if auth := <-arrived; auth != "" {
		t.Fatalf("request must go out unauthenticated, got %q", auth)
	}
	if err := m.Login(ctx, session.Session{UserID: "u1", Role: session.RoleParent}, "tok-NEW"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, goSession.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if m.Session() == nil {
		t.Fatal("a 401 for an unauthenticated request must not clear a newer login")
	}
	if cred, ok, err := m.Credential(ctx); err != nil || !ok || cred != "tok-NEW" {
		t.Fatalf("Credential = %q, %v, %v", cred, ok, err)
	}

	if err := m.InvalidateCredential(ctx, ""); err != nil {
		t.Fatalf("InvalidateCredential: %v", err)
	}
	if m.Session() == nil {
		t.Fatal("empty credential must not clear a persisted credential")
	}
}

func TestSubscribeSeesEveryTransition(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []goSession.State
	cancel := m.Subscribe(func(st goSession.State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	recovered(t, m)
	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	cancel()
	if err := m.Login(ctx, sess, token+"x"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("notifications = %d, want 3", len(seen))
	}
	if seen[0].Initializing || seen[0].Authenticated() {
		t.Fatalf("after recovery: %+v", seen[0])
	}
	if !seen[1].Authenticated() {
		t.Fatal("after login: expected session")
	}
	if seen[2].Authenticated() {
		t.Fatal("after logout: expected no session")
	}
}

type recordingRegistrar struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *recordingRegistrar) RegisterPushToken(_ context.Context, credential, token string) error {
	r.mu.Lock()
	r.calls = append(r.calls, [2]string{credential, token})
	r.mu.Unlock()
	return nil
}

func (r *recordingRegistrar) snapshot() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.calls...)
}

func TestPushTokenRotation(t *testing.T) {
	h := newHarness(t)
	reg := &recordingRegistrar{}
	m := h.manager(t, func(b *goSession.Builder) { b.WithPushRegistrar(reg) })
	recovered(t, m)
	ctx := context.Background()

	if err := m.PushTokenRotated(ctx, " "); !errors.Is(err, goSession.ErrInvalidPushToken) {
		t.Fatalf("expected ErrInvalidPushToken, got %v", err)
	}
	if err := m.PushTokenRotated(ctx, "push-1"); err != nil {
		t.Fatalf("PushTokenRotated: %v", err)
	}
	if len(reg.snapshot()) != 0 {
		t.Fatal("no registration without a session")
	}

	sess, token := h.signIn(t, session.RoleParent)
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(reg.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	calls := reg.snapshot()
	if len(calls) != 1 || calls[0] != [2]string{token, "push-1"} {
		t.Fatalf("after login calls = %v", calls)
	}

	if err := m.PushTokenRotated(ctx, "push-2"); err != nil {
		t.Fatalf("PushTokenRotated: %v", err)
	}
	calls = reg.snapshot()
	if len(calls) != 2 || calls[1] != [2]string{token, "push-2"} {
		t.Fatalf("after rotation calls = %v", calls)
	}
}

func TestPushTokenWithoutRegistrar(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t)
	if err := m.PushTokenRotated(context.Background(), "push-1"); !errors.Is(err, goSession.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAuditEventsCarryIdentityNotCredential(t *testing.T) {
	h := newHarness(t)
	sink := goSession.NewChannelSink(16)
	m := h.manager(t, func(b *goSession.Builder) { b.WithAuditSink(sink) })
	recovered(t, m)

	sess, token := h.signIn(t, session.RoleStaff)
	ctx := goSession.WithRequestID(context.Background(), "req-42")
	if err := m.Login(ctx, sess, token); err != nil {
		t.Fatalf("Login: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != "login_success" || !ev.Success {
			t.Fatalf("event = %+v", ev)
		}
		if ev.UserID != sess.UserID || ev.Role != string(session.RoleStaff) {
			t.Fatalf("identity = %s/%s", ev.UserID, ev.Role)
		}
		if ev.ID == "" || ev.Metadata["request_id"] != "req-42" {
			t.Fatalf("id/metadata = %q/%v", ev.ID, ev.Metadata)
		}
		for _, v := range ev.Metadata {
			if v == token {
				t.Fatal("credential leaked into audit metadata")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("no audit event")
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := goSession.New().Build(); err == nil {
		t.Fatal("expected error without kv")
	}
	if _, err := goSession.New().WithKV(session.NewMemoryKV()).Build(); err == nil {
		t.Fatal("expected error without authority")
	}

	h := newHarness(t)
	b := goSession.New().WithKV(h.kv).WithAuthority(h.authority(t))
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer m.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}
