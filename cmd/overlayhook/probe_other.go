//go:build !windows

package main

import (
	"overlayhook/internal/config"
	"overlayhook/internal/overlay"
)

func runProbe(*config.Manager, bool) error {
	return overlay.ErrUnsupported
}
