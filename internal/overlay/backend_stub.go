//go:build !windows

package overlay

func DefaultBackend() (Backend, error) {
	return Backend{}, ErrUnsupported
}
