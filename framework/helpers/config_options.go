package helpers

// ConfigOption is one argument of a variadic options list, as accepted by constructors such as
// testsystem.New. It is applied with ApplyOptions.
type ConfigOption[T any] interface {
	// Configure changes target, or returns an error if the option cannot be honored.
	Configure(target *T) error
}

// ConfigOptionFunc lets a plain function be used as a ConfigOption.
type ConfigOptionFunc[T any] func(*T) error

func (f ConfigOptionFunc[T]) Configure(target *T) error { return f(target) }

// ApplyOptions applies options to target in order and stops at the first error. Nil options are
// skipped, so callers can pass optional settings without building a separate slice.
func ApplyOptions[T any, U ConfigOption[T]](target *T, options ...U) error {
	// U lets each package declare its own option type name while sharing this function.
	for _, o := range options {
		if any(o) == nil {
			continue
		}
		if err := o.Configure(target); err != nil {
			return err
		}
	}
	return nil
}
