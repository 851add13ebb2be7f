// Package apihook keeps the table of redirected OS entry points. Each
// binding remembers the pre-redirection address so replacements can call
// through to the real function without re-entering themselves.
package apihook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"overlayhook/internal/logging"
)

var (
	ErrNotFound         = errors.New("entry point not found")
	ErrAlreadyInstalled = errors.New("binding already installed")
	ErrNotInstalled     = errors.New("binding not installed")
	ErrUnsupported      = errors.New("api redirection not supported on this platform")
)

// Patch undoes one redirection.
type Patch interface {
	Restore() error
}

// Trampoline is implemented by patches that rewrite the entry point itself.
// The real function is then reached through the returned address.
type Trampoline interface {
	Trampoline() uintptr
}

// Patcher locates entry points and rewrites the process dispatch to them.
type Patcher interface {
	// Resolve returns the address of the named function in the system library.
	Resolve(name string) (uintptr, error)
	// Patch redirects every dispatch slot pointing at original to replacement.
	Patch(name string, original, replacement uintptr) (Patch, error)
}

// Invoker calls the machine code at fn with the given arguments.
type Invoker func(fn uintptr, args ...uintptr) uintptr

// Binding describes one redirected entry point. Trampoline is zero when the
// entry point itself was left intact.
type Binding struct {
	Name        string
	Original    uintptr
	Replacement uintptr
	Trampoline  uintptr
	Installed   bool
}

type binding struct {
	Binding
	patch Patch
}

// Table owns the redirection bindings. Install and Uninstall are expected to
// run from a single attach/detach sequence; Call and Original are safe from
// any thread.
type Table struct {
	mu       sync.RWMutex
	patcher  Patcher
	invoke   Invoker
	bindings map[string]*binding
	resolved map[string]uintptr
	logger   *zap.Logger
}

// NewTable creates an empty table.
func NewTable(patcher Patcher, invoke Invoker) *Table {
	return &Table{
		patcher:  patcher,
		invoke:   invoke,
		bindings: make(map[string]*binding),
		resolved: make(map[string]uintptr),
		logger:   logging.L("apihook"),
	}
}

// Install redirects name to replacement.
func (t *Table) Install(name string, replacement uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.bindings[name]; ok && b.Installed {
		return fmt.Errorf("%s: %w", name, ErrAlreadyInstalled)
	}

	original, err := t.resolveLocked(name)
	if err != nil {
		t.logger.Warn("entry point unavailable", zap.String(logging.KeyBinding, name), zap.Error(err))
		return err
	}

	patch, err := t.patcher.Patch(name, original, replacement)
	if err != nil {
		t.logger.Warn("redirection failed", zap.String(logging.KeyBinding, name), zap.Error(err))
		return fmt.Errorf("patch %s: %w", name, err)
	}

	b := &binding{
		Binding: Binding{Name: name, Original: original, Replacement: replacement, Installed: true},
		patch:   patch,
	}
	if tp, ok := patch.(Trampoline); ok {
		b.Trampoline = tp.Trampoline()
	}
	t.bindings[name] = b
	t.logger.Debug("redirection installed",
		zap.String(logging.KeyBinding, name),
		zap.Uintptr("original", original),
		zap.Uintptr("replacement", replacement))
	return nil
}

// Uninstall restores the original dispatch for name.
func (t *Table) Uninstall(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uninstallLocked(name)
}

// UninstallAll removes every binding, best effort. Failures are logged.
func (t *Table) UninstallAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range t.bindings {
		if err := t.uninstallLocked(name); err != nil {
			t.logger.Warn("restore failed", zap.String(logging.KeyBinding, name), zap.Error(err))
		}
	}
}

func (t *Table) uninstallLocked(name string) error {
	b, ok := t.bindings[name]
	if !ok || !b.Installed {
		return fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	delete(t.bindings, name)
	if err := b.patch.Restore(); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return nil
}

// Installed reports whether name is currently redirected.
func (t *Table) Installed(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bindings[name]
	return ok && b.Installed
}

// Original returns the pre-redirection address of name, resolving it if
// no binding exists yet. Once an inline patch is installed that address
// leads to the replacement; Call still reaches the real code.
func (t *Table) Original(name string) (uintptr, error) {
	t.mu.RLock()
	if b, ok := t.bindings[name]; ok {
		t.mu.RUnlock()
		return b.Original, nil
	}
	if addr, ok := t.resolved[name]; ok {
		t.mu.RUnlock()
		return addr, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(name)
}

// Call invokes the real name with args, through the trampoline when the
// entry point is rewritten. It returns 0 when the entry point cannot be
// resolved.
func (t *Table) Call(name string, args ...uintptr) uintptr {
	t.mu.RLock()
	b, ok := t.bindings[name]
	t.mu.RUnlock()
	if ok && b.Trampoline != 0 {
		return t.invoke(b.Trampoline, args...)
	}

	addr, err := t.Original(name)
	if err != nil || addr == 0 {
		return 0
	}
	return t.invoke(addr, args...)
}

// Bindings returns a snapshot of the installed bindings ordered by name.
func (t *Table) Bindings() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Binding, 0, len(t.bindings))
	for _, b := range t.bindings {
		out = append(out, b.Binding)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Table) resolveLocked(name string) (uintptr, error) {
	if addr, ok := t.resolved[name]; ok {
		return addr, nil
	}
	addr, err := t.patcher.Resolve(name)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("resolve %s: %w", name, ErrNotFound)
	}
	t.resolved[name] = addr
	return addr, nil
}
