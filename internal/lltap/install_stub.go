//go:build !windows

package lltap

import "errors"

// Install is only available on Windows.
func (t *Taps) Install() error {
	return errors.New("lltap: low-level hooks require windows")
}

func (t *Taps) Close() {}
