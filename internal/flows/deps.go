package flows

// Deps groups flow dependency sets. The Manager builds this once and
// delegates operations to the matching flow implementation.
type Deps struct {
	Recover RecoverDeps
	Logout  LogoutDeps
	Refresh RefreshDeps
}
