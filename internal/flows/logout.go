package flows

import (
	"context"
	"time"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Credential   func(context.Context) (string, bool, error)
	RemoteLogout func(ctx context.Context, credential string) error
	// Clear wipes the store and the in-memory session as one commit.
	Clear   func(context.Context) error
	Observe func(time.Duration)
}

// LogoutResult reports what happened on each leg. Only ClearErr matters for
// local correctness; the others are diagnostics.
type LogoutResult struct {
	HadCredential bool
	LoadErr       error
	RemoteErr     error
	ClearErr      error
}

// RunLogout asks the authority to drop the credential, then always clears
// local state regardless of how the remote leg went.
func RunLogout(ctx context.Context, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	credential, ok, err := deps.Credential(ctx)
	res.LoadErr = err
	res.HadCredential = ok

	if ok && deps.RemoteLogout != nil {
		start := time.Now()
		res.RemoteErr = deps.RemoteLogout(ctx, credential)
		if deps.Observe != nil {
			deps.Observe(time.Since(start))
		}
	}

	res.ClearErr = deps.Clear(ctx)
	return res
}
