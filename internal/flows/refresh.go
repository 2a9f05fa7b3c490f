package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// ErrStale is returned by a RefreshDeps.Commit when the session generation
// moved while the fetch was in flight.
var ErrStale = errors.New("stale refresh result")

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoSession
	RefreshFailureCredential
	RefreshFailureFetch
	RefreshFailureStale
	RefreshFailureCommit
)

// RefreshResult carries the applied patch or failure metadata.
type RefreshResult struct {
	Failure    RefreshFailureKind
	Err        error
	Generation uint64
	Patch      session.ProfilePatch
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// Current returns the generation of the active session, or ok=false.
	Current    func() (generation uint64, ok bool)
	Credential func(context.Context) (string, bool, error)
	Fetch      func(ctx context.Context, credential string) (session.ProfilePatch, error)
	// Commit applies patch only if generation is still current, returning
	// ErrStale otherwise.
	Commit  func(ctx context.Context, generation uint64, patch session.ProfilePatch) error
	Observe func(time.Duration)
}

// RunRefresh fetches the latest profile and applies it to the session it was
// started for. The session is never cleared here, whatever the failure.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	gen, ok := deps.Current()
	if !ok {
		return RefreshResult{Failure: RefreshFailureNoSession}
	}

	credential, ok, err := deps.Credential(ctx)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureCredential, Err: err, Generation: gen}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureNoSession, Generation: gen}
	}

	start := time.Now()
	patch, err := deps.Fetch(ctx, credential)
	if deps.Observe != nil {
		deps.Observe(time.Since(start))
	}
	if err != nil {
		return RefreshResult{Failure: RefreshFailureFetch, Err: err, Generation: gen}
	}

	if err := deps.Commit(ctx, gen, patch); err != nil {
		if errors.Is(err, ErrStale) {
			return RefreshResult{Failure: RefreshFailureStale, Err: err, Generation: gen, Patch: patch}
		}
		return RefreshResult{Failure: RefreshFailureCommit, Err: err, Generation: gen, Patch: patch}
	}
	return RefreshResult{Generation: gen, Patch: patch}
}
