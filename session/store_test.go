package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type kvFactory struct {
	name string
	new  func(t *testing.T) KV
}

func kvBackends() []kvFactory {
	return []kvFactory{
		{name: "memory", new: func(t *testing.T) KV { return NewMemoryKV() }},
		{name: "redis", new: func(t *testing.T) KV {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis start: %v", err)
			}
			t.Cleanup(mr.Close)
			return NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		}},
		{name: "sqlite", new: func(t *testing.T) KV {
			t.Helper()
			kv, err := OpenSQLiteKV(filepath.Join(t.TempDir(), "session.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return kv
		}},
	}
}

func testSession() *Session {
	return &Session{
		UserID: "u-1",
		Role:   RoleParent,
		Profile: Profile{
			Name:  "Ada",
			Email: "ada@example.com",
		},
		Dependents: []Dependent{
			{ID: "c-1", Name: "Lin", BirthDate: "2021-04-02"},
			{ID: "c-2", Name: "Max"},
		},
		IssuedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestStoreSaveLoadClear(t *testing.T) {
	for _, backend := range kvBackends() {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			kv := backend.new(t)
			store := NewStore(kv, "test")
			defer store.Close()

			empty, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load empty: %v", err)
			}
			if empty.HasSnapshot() || empty.HasCredential() {
				t.Fatalf("expected empty store, got %+v", empty)
			}

			loginAt := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
			if err := store.Save(ctx, testSession(), "tok-A", loginAt); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Credential != "tok-A" {
				t.Fatalf("expected credential tok-A, got %q", got.Credential)
			}
			if !got.LoginAt.Equal(loginAt) {
				t.Fatalf("expected login time %v, got %v", loginAt, got.LoginAt)
			}
			sess, err := Decode(got.Snapshot)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if sess.UserID != "u-1" || sess.Role != RoleParent || len(sess.Dependents) != 2 {
				t.Fatalf("unexpected session %+v", sess)
			}

			cred, ok, err := store.Credential(ctx)
			if err != nil || !ok || cred != "tok-A" {
				t.Fatalf("credential: %q %v %v", cred, ok, err)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("second clear: %v", err)
			}

			after, err := kv.Get(ctx, store.Keys()...)
			if err != nil {
				t.Fatalf("get after clear: %v", err)
			}
			if len(after) != 0 {
				t.Fatalf("expected no keys after clear, got %v", after)
			}
		})
	}
}

func TestStoreSaveSnapshotKeepsCredential(t *testing.T) {
	for _, backend := range kvBackends() {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(backend.new(t), "test")
			defer store.Close()

			if err := store.Save(ctx, testSession(), "tok-A", time.Now()); err != nil {
				t.Fatalf("save: %v", err)
			}
			updated := testSession()
			updated.Dependents = updated.Dependents[:1]
			if err := store.SaveSnapshot(ctx, updated); err != nil {
				t.Fatalf("save snapshot: %v", err)
			}

			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Credential != "tok-A" {
				t.Fatalf("credential changed: %q", got.Credential)
			}
			sess, err := Decode(got.Snapshot)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(sess.Dependents) != 1 {
				t.Fatalf("expected 1 dependent, got %d", len(sess.Dependents))
			}
		})
	}
}

func TestStoreSaveRejectsEmptyCredential(t *testing.T) {
	store := NewStore(NewMemoryKV(), "")
	if err := store.Save(context.Background(), testSession(), "", time.Now()); err == nil {
		t.Fatal("expected error for empty credential")
	}
	if store.Keys()[0] != "goSession:session" {
		t.Fatalf("unexpected default key %q", store.Keys()[0])
	}
}

func TestRedisKVUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	store := NewStore(NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()})), "test")
	defer store.Close()
	mr.Close()

	_, err = store.Load(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	err = store.Save(context.Background(), testSession(), "tok", time.Now())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on save, got %v", err)
	}
}

func TestRedisKVKeepsStoreKeysInOneSlot(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	store := NewStore(NewRedisKV(redis.NewClient(&redis.Options{Addr: mr.Addr()})), "test")
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, testSession(), "tok", time.Now()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := mr.Keys()
	want := []string{"{test}:credential", "{test}:login_at", "{test}:session"}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
	if p, err := store.Load(ctx); err != nil || p.Credential != "tok" {
		t.Fatalf("Load = %+v, %v", p, err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("keys after clear = %v", keys)
	}
}

func TestHashTag(t *testing.T) {
	cases := map[string]string{
		"goSession:session":   "{goSession}:session",
		"app:tenant:login_at": "{app:tenant}:login_at",
		"bare":                "bare",
		":leading":            ":leading",
		"{tagged}:session":    "{tagged}:session",
	}
	for in, want := range cases {
		if got := hashTag(in); got != want {
			t.Errorf("hashTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSQLiteKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	kv, err := OpenSQLiteKV(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := NewStore(kv, "app").Save(ctx, testSession(), "tok-durable", time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}
	kv.Close()

	reopened, err := OpenSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	cred, ok, err := NewStore(reopened, "app").Credential(ctx)
	if err != nil || !ok || cred != "tok-durable" {
		t.Fatalf("expected durable credential, got %q %v %v", cred, ok, err)
	}
}
