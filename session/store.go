package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreUnavailable wraps backend read/write failures.
var ErrStoreUnavailable = errors.New("session store unavailable")

// KV is the durable string key-value backend behind a [Store].
//
// Set and Delete must be all-or-nothing across the keys they receive: a
// failed call leaves every key as it was.
type KV interface {
	// Get returns the values present for keys. Missing keys are absent from
	// the map rather than mapped to "".
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

const (
	keySnapshot   = "session"
	keyCredential = "credential"
	keyLoginAt    = "login_at"
)

// Persisted is everything the store holds for one device.
type Persisted struct {
	// Snapshot is the raw encoded session; empty when absent.
	Snapshot []byte
	// Credential is the bearer credential; empty when absent.
	Credential string
	// LoginAt is zero when the key is absent or unparsable.
	LoginAt time.Time
}

// HasSnapshot reports whether a snapshot key was present.
func (p Persisted) HasSnapshot() bool { return len(p.Snapshot) > 0 }

// HasCredential reports whether a credential key was present.
func (p Persisted) HasCredential() bool { return p.Credential != "" }

// Store maps the session layout onto three keys of a [KV] backend.
//
// The Manager is the only intended caller; nothing else should read or write
// these keys.
type Store struct {
	kv     KV
	prefix string
}

// NewStore creates a [Store]. prefix namespaces the three keys as
// "<prefix>:session", "<prefix>:credential" and "<prefix>:login_at".
func NewStore(kv KV, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "goSession"
	}
	return &Store{kv: kv, prefix: prefix}
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

// Keys returns the three backend keys in layout order.
func (s *Store) Keys() []string {
	return []string{s.key(keySnapshot), s.key(keyCredential), s.key(keyLoginAt)}
}

// Load reads all three keys in one backend round-trip.
func (s *Store) Load(ctx context.Context) (Persisted, error) {
	values, err := s.kv.Get(ctx, s.Keys()...)
	if err != nil {
		return Persisted{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := Persisted{
		Snapshot:   []byte(values[s.key(keySnapshot)]),
		Credential: values[s.key(keyCredential)],
	}
	if raw, ok := values[s.key(keyLoginAt)]; ok {
		if t, err := parseLoginAt(raw); err == nil {
			out.LoginAt = t
		}
	}
	return out, nil
}

// Save writes snapshot, credential and login time together.
func (s *Store) Save(ctx context.Context, sess *Session, credential string, loginAt time.Time) error {
	if credential == "" {
		return errors.New("empty credential")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	err = s.kv.Set(ctx, map[string]string{
		s.key(keySnapshot):   string(data),
		s.key(keyCredential): credential,
		s.key(keyLoginAt):    formatLoginAt(loginAt),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SaveSnapshot rewrites only the snapshot key. Callers use it for profile and
// dependents updates while the credential stays unchanged.
func (s *Store) SaveSnapshot(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, map[string]string{s.key(keySnapshot): string(data)}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Credential reads the credential key alone.
func (s *Store) Credential(ctx context.Context) (string, bool, error) {
	values, err := s.kv.Get(ctx, s.key(keyCredential))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	v, ok := values[s.key(keyCredential)]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Clear deletes all three keys. Deleting absent keys is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.Keys()...); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.kv == nil {
		return nil
	}
	return s.kv.Close()
}
