//go:build !windows

package interceptor

import "errors"

const (
	ModeWndProc = "wndproc"
	ModeMsgHook = "msghook"
)

// NewWindowHook is only available on Windows.
func NewWindowHook(string) (WindowHook, error) {
	return nil, errors.New("interceptor: window hooks require windows")
}
