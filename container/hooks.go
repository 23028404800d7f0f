package container

import (
	"reflect"

	"go.uber.org/zap"
)

// LiteralProvider is a hook invoked when a dependency with a given id is missing.
// - id: the value of the `di.inject` tag for the missing dependency
// - targetType: the type expected for that dependency (e.g., reflect.TypeOf("") for string)
// Returns:
// - value: the literal value to use for injection
// - found: whether a value is available
// - err: any error occurred while sourcing the value (e.g., parsing, I/O)
type LiteralProvider func(id string, targetType reflect.Type) (value any, found bool, err error)

// SetLiteralProvider installs the container's literal provider hook.
// A typical implementation might read env vars, files, flags, or other configuration sources.
func (c *Container) SetLiteralProvider(p LiteralProvider) {
	c.literalProvider.Store(&p)
}

// loadLiteralProvider returns the currently installed literal provider (may be nil).
func (c *Container) loadLiteralProvider() LiteralProvider {
	if p := c.literalProvider.Load(); p != nil {
		return *p
	}
	return nil
}

// Disposer is an optional interface for instances that release resources when
// their context evicts them, either on reload or when the context ends.
type Disposer interface {
	Dispose() error
}

func dispose(instance any, logger *zap.Logger) {
	d, ok := instance.(Disposer)
	if !ok {
		return
	}
	if err := d.Dispose(); err != nil {
		logger.Warn("dispose failed", zap.String("type", reflect.TypeOf(instance).String()), zap.Error(err))
	}
}
