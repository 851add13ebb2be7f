// Package hotkey matches configured key combinations against the real
// keyboard state. The message pump calls CheckHotkeys once per qualifying
// message; threaded mode polls from its own goroutine instead.
package hotkey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"overlayhook/internal/logging"
)

// Hotkey is one configured combination.
type Hotkey struct {
	Name  string `json:"name" mapstructure:"name"`
	Combo string `json:"combo" mapstructure:"combo"`
	// Passthrough lets the triggering key reach the target as well.
	Passthrough bool `json:"passthrough" mapstructure:"passthrough"`
}

// KeyReader reads the physical key state, bypassing any redirection.
type KeyReader interface {
	AsyncKeyState(vk int32) int16
}

// Manager handles hotkey registration and matching.
type Manager struct {
	mu       sync.RWMutex
	hotkeys  []*registeredHotkey
	reader   KeyReader
	onHotkey func(name string)
	logger   *zap.Logger
}

type registeredHotkey struct {
	Hotkey
	parts [][]uint32
	held  bool
}

// NewManager creates a manager reading key state from reader.
func NewManager(reader KeyReader) *Manager {
	return &Manager{reader: reader, logger: logging.L("hotkey")}
}

// OnHotkey sets the callback fired once per press of a registered combo.
// It runs on the checking thread and must not block.
func (m *Manager) OnHotkey(fn func(name string)) {
	m.mu.Lock()
	m.onHotkey = fn
	m.mu.Unlock()
}

// Register adds a hotkey, e.g. {Name: "overlay.toggle", Combo: "Shift+Tab"}.
func (m *Manager) Register(hk Hotkey) error {
	rh, err := compile(hk)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.hotkeys = append(m.hotkeys, rh)
	m.mu.Unlock()
	return nil
}

// SetHotkeys replaces every registered hotkey. Nothing changes on error.
func (m *Manager) SetHotkeys(list []Hotkey) error {
	next := make([]*registeredHotkey, 0, len(list))
	for _, hk := range list {
		rh, err := compile(hk)
		if err != nil {
			return err
		}
		next = append(next, rh)
	}
	m.mu.Lock()
	m.hotkeys = next
	m.mu.Unlock()
	m.logger.Debug("hotkeys replaced", zap.Int("count", len(next)))
	return nil
}

// Clear removes all registered hotkeys.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// Hotkeys returns the registered hotkeys.
func (m *Manager) Hotkeys() []Hotkey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Hotkey, len(m.hotkeys))
	for i, hk := range m.hotkeys {
		out[i] = hk.Hotkey
	}
	return out
}

func compile(hk Hotkey) (*registeredHotkey, error) {
	if hk.Name == "" {
		return nil, fmt.Errorf("hotkey %q: missing name", hk.Combo)
	}
	parts, err := ParseCombo(hk.Combo)
	if err != nil {
		return nil, fmt.Errorf("hotkey %s: %w", hk.Name, err)
	}
	return &registeredHotkey{Hotkey: hk, parts: parts}, nil
}

// CheckHotkeys polls every combo. Callbacks fire on the press edge. The
// result is true while a combo without passthrough is held, meaning the
// current message belongs to the hotkey and must not reach the target.
func (m *Manager) CheckHotkeys() bool {
	var fired []string
	handled := false

	m.mu.Lock()
	for _, hk := range m.hotkeys {
		down := m.comboDown(hk.parts)
		if down && !hk.held {
			fired = append(fired, hk.Name)
		}
		hk.held = down
		if down && !hk.Passthrough {
			handled = true
		}
	}
	cb := m.onHotkey
	m.mu.Unlock()

	for _, name := range fired {
		m.logger.Debug("hotkey triggered", zap.String("name", name))
		if cb != nil {
			cb(name)
		}
	}
	return handled
}

func (m *Manager) comboDown(parts [][]uint32) bool {
	for _, alternatives := range parts {
		pressed := false
		for _, vk := range alternatives {
			if m.reader.AsyncKeyState(int32(vk))&-0x8000 != 0 {
				pressed = true
				break
			}
		}
		if !pressed {
			return false
		}
	}
	return true
}

// Run polls hotkeys every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckHotkeys()
		}
	}
}
