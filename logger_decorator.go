package sage

// ValueInjectionLoggerDecorator automatically injects key-value pairs into all log events.
// The application wraps its logger with one per module so every line a module
// writes carries "module", <name>.
type ValueInjectionLoggerDecorator struct {
	inner        Logger
	injectedArgs []any
}

// NewValueInjectionLoggerDecorator creates a decorator that automatically injects values into log events.
func NewValueInjectionLoggerDecorator(inner Logger, injectedArgs ...any) *ValueInjectionLoggerDecorator {
	return &ValueInjectionLoggerDecorator{
		inner:        inner,
		injectedArgs: injectedArgs,
	}
}

// ModuleLogger returns logger tagged with the module name.
func ModuleLogger(logger Logger, module string) Logger {
	return NewValueInjectionLoggerDecorator(logger, "module", module)
}

func (d *ValueInjectionLoggerDecorator) combineArgs(originalArgs []any) []any {
	if len(d.injectedArgs) == 0 {
		return originalArgs
	}
	if len(originalArgs) == 0 {
		return d.injectedArgs
	}
	combined := make([]any, 0, len(d.injectedArgs)+len(originalArgs))
	combined = append(combined, d.injectedArgs...)
	combined = append(combined, originalArgs...)
	return combined
}

func (d *ValueInjectionLoggerDecorator) Info(msg string, args ...any) {
	d.inner.Info(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Error(msg string, args ...any) {
	d.inner.Error(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Warn(msg string, args ...any) {
	d.inner.Warn(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Debug(msg string, args ...any) {
	d.inner.Debug(msg, d.combineArgs(args)...)
}
