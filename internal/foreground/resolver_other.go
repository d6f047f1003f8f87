//go:build !darwin

package foreground

// NewResolver returns the platform resolver. Foreground lookup is only
// implemented on macOS.
func NewResolver() Resolver {
	return NopResolver{}
}
