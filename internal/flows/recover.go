package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// RecoverOutcome classifies how startup recovery ended.
type RecoverOutcome int

const (
	// RecoverEmpty: nothing persisted; the device starts unauthenticated.
	RecoverEmpty RecoverOutcome = iota
	// RecoverVerified: the authority accepted the persisted credential.
	RecoverVerified
	// RecoverRejected: verification failed or could not be completed.
	RecoverRejected
	// RecoverCorrupt: the persisted layout was partial or undecodable.
	RecoverCorrupt
	// RecoverLoadFailed: the store could not be read at all.
	RecoverLoadFailed
)

func (o RecoverOutcome) String() string {
	switch o {
	case RecoverEmpty:
		return "empty"
	case RecoverVerified:
		return "verified"
	case RecoverRejected:
		return "rejected"
	case RecoverCorrupt:
		return "corrupt"
	case RecoverLoadFailed:
		return "load_failed"
	}
	return "unknown"
}

// RecoverResult carries the recovered session or the reason there is none.
type RecoverResult struct {
	Outcome    RecoverOutcome
	Session    *session.Session
	Credential string
	// Err is the load, decode, or verification failure, if any.
	Err error
	// ClearErr is set when wiping the store after a failure also failed.
	ClearErr error
}

// RecoverDeps captures recovery dependencies.
type RecoverDeps struct {
	Load   func(context.Context) (session.Persisted, error)
	Verify func(ctx context.Context, credential string) error
	// Clear wipes persisted state. Called on every non-empty failure path.
	Clear func(context.Context) error
	// Observe, when set, receives the verification latency.
	Observe func(time.Duration)
}

// RunRecover reconstructs a session from the store and verifies it remotely.
// Any ambiguity about validity is resolved as invalid: the store is cleared
// and no session is returned.
func RunRecover(ctx context.Context, deps RecoverDeps) RecoverResult {
	p, err := deps.Load(ctx)
	if err != nil {
		return RecoverResult{
			Outcome:  RecoverLoadFailed,
			Err:      err,
			ClearErr: deps.Clear(ctx),
		}
	}

	if !p.HasSnapshot() && !p.HasCredential() {
		return RecoverResult{Outcome: RecoverEmpty}
	}
	if p.HasSnapshot() != p.HasCredential() {
		return RecoverResult{
			Outcome:  RecoverCorrupt,
			Err:      errors.New("partial session layout"),
			ClearErr: deps.Clear(ctx),
		}
	}

	sess, err := session.Decode(p.Snapshot)
	if err != nil {
		return RecoverResult{
			Outcome:  RecoverCorrupt,
			Err:      err,
			ClearErr: deps.Clear(ctx),
		}
	}
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = p.LoginAt
	}

	start := time.Now()
	err = deps.Verify(ctx, p.Credential)
	if deps.Observe != nil {
		deps.Observe(time.Since(start))
	}
	if err != nil {
		return RecoverResult{
			Outcome:  RecoverRejected,
			Err:      err,
			ClearErr: deps.Clear(ctx),
		}
	}

	return RecoverResult{
		Outcome:    RecoverVerified,
		Session:    sess,
		Credential: p.Credential,
	}
}
