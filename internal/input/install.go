package input

import (
	"errors"
	"fmt"
	"sync/atomic"

	"overlayhook/internal/apihook"
)

// EntryPoints lists the user32 functions redirected to the Redirector.
var EntryPoints = []string{
	"GetAsyncKeyState",
	"GetKeyState",
	"GetKeyboardState",
	"ShowCursor",
	"GetCursorPos",
	"SetCursorPos",
	"GetCursor",
	"SetCursor",
	"GetRawInputData",
	"GetRawInputBuffer",
}

type hookSet struct {
	redirector *Redirector
	table      *apihook.Table
}

// active is read by the replacement callbacks on arbitrary threads.
var active atomic.Pointer[hookSet]

// Install points every entry point at its replacement. Entry points that
// fail stay inert and keep their real behaviour; the joined error lists them.
func Install(table *apihook.Table, r *Redirector) error {
	active.Store(&hookSet{redirector: r, table: table})

	addrs := replacements()
	var errs []error
	for _, name := range EntryPoints {
		addr, ok := addrs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, apihook.ErrUnsupported))
			continue
		}
		if err := table.Install(name, addr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Uninstall restores every entry point. Calls already inside a replacement
// finish against the real functions.
func Uninstall(table *apihook.Table) {
	table.UninstallAll()
	if hs := active.Load(); hs != nil {
		active.Store(&hookSet{table: hs.table})
	}
}
