package container

// Initializer is an optional interface that a bean may implement to perform
// additional initialization after all of its dependencies have been injected.
//
// The container calls Initialize() once per created instance, after field
// injection. Reinjection of a live instance does not call it again. If
// Initialize returns an error, the instance is discarded and resolution fails.
type Initializer interface {
	Initialize() error
}
