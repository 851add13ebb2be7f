//go:build windows

package overlay

import (
	"os"

	"overlayhook/internal/apihook"
	"overlayhook/internal/input"
	"overlayhook/internal/interceptor"
	"overlayhook/internal/winapi"
)

// DefaultBackend binds an App to user32 of the current process.
func DefaultBackend() (Backend, error) {
	return Backend{
		Platform: winapi.NewPlatform(),
		Patcher:  apihook.NewDetourPatcher("user32.dll"),
		Invoke:   apihook.CallOriginal,
		Originals: func(t *apihook.Table) input.Originals {
			return input.TableOriginals{Table: t}
		},
		Hook:        interceptor.NewWindowHook,
		Cursor:      winapi.NamedCursor,
		TaskMessage: winapi.RegisterWindowMessage("OverlayHook.Task"),
		Process:     winapi.ProcessName(int32(os.Getpid())),
	}, nil
}
