// Package overlay is the attach-time facade: it builds the redirection
// table, the message pump owner, the low-level taps, the hotkey poller and
// the overlay connector, and exposes the calls made by the attach layer.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"overlayhook/internal/apihook"
	"overlayhook/internal/config"
	"overlayhook/internal/hotkey"
	"overlayhook/internal/input"
	"overlayhook/internal/inputstate"
	"overlayhook/internal/interceptor"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/lltap"
	"overlayhook/internal/logging"
	"overlayhook/internal/network"
	"overlayhook/internal/protocol"
	"overlayhook/internal/winapi"
)

const hotkeyPollInterval = 30 * time.Millisecond

// ErrUnsupported is returned by DefaultBackend off Windows.
var ErrUnsupported = errors.New("overlay: interception requires windows")

// Platform is the OS surface shared by the interceptor and the taps.
type Platform interface {
	interceptor.Platform
	ScreenToClient(hwnd uintptr, pt winapi.Point) (winapi.Point, bool)
}

// Backend supplies the OS specific parts of an App.
type Backend struct {
	Platform Platform
	Patcher  apihook.Patcher
	Invoke   apihook.Invoker
	// Originals reaches the real user32 functions through the table.
	Originals func(t *apihook.Table) input.Originals
	// Hook builds the window hook for a hook mode.
	Hook func(mode string) (interceptor.WindowHook, error)
	// Cursor loads a named cursor shape; nil leaves WM_SETCURSOR alone.
	Cursor      func(name string) uintptr
	TaskMessage uint32
	Process     string
}

// App is one attached interception session.
type App struct {
	keys       *keyfilter.Tables
	table      *apihook.Table
	state      *inputstate.State
	redirector *input.Redirector
	ic         *interceptor.Interceptor
	taps       *lltap.Taps
	hotkeys    *hotkey.Manager
	client     *network.Client
	platform   Platform
	threaded   bool
	logger     *zap.Logger

	overlayEnabled atomic.Bool
	graphicsActive atomic.Bool
	windowed       atomic.Bool
	hooked         atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	showMu     sync.Mutex
	cancelShow context.CancelFunc

	destroyOnce sync.Once
	destroyed   chan struct{}
	closeOnce   sync.Once
}

// New builds a detached App from cfg.
func New(cfg *config.Config, b Backend) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	hook, err := b.Hook(cfg.Intercept.HookMode)
	if err != nil {
		return nil, fmt.Errorf("overlay: window hook: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		keys:      keyfilter.New(),
		table:     apihook.NewTable(b.Patcher, b.Invoke),
		threaded:  cfg.Intercept.ThreadedHotkeys,
		logger:    logging.L("overlay"),
		ctx:       ctx,
		cancel:    cancel,
		destroyed: make(chan struct{}),
	}
	orig := b.Originals(a.table)
	a.platform = realInput{Platform: b.Platform, orig: orig}
	a.state = inputstate.New(orig)
	a.client = network.NewClient(network.Options{
		URL:     cfg.Connector.URL,
		Pipe:    cfg.Connector.Pipe,
		Token:   cfg.Connector.Token,
		Process: b.Process,
	})
	a.hotkeys = hotkey.NewManager(orig)
	a.hotkeys.OnHotkey(a.client.SendInGameHotkeyDown)

	a.taps = lltap.New(lltap.Deps{
		Session:   a,
		Target:    a,
		Transport: a.client,
		Platform:  a.platform,
		Keys:      a.keys,
	})

	a.ic = interceptor.New(interceptor.Deps{
		Session:   a,
		Transport: a.client,
		Hotkeys:   a.hotkeys,
		Keys:      a.keys,
		State:     a.state,
		Platform:  a.platform,
		Hook:      hook,
		Taps:      a.taps,
	}, interceptor.Options{
		AutoIntercept:   cfg.Intercept.AutoIntercept,
		ThreadedHotkeys: cfg.Intercept.ThreadedHotkeys,
		WindowedIME:     cfg.Intercept.WindowedIME,
		DebugToggleKey:  debugToggleKey,
		TaskMessage:     b.TaskMessage,
	})
	a.ic.OnDestroy(a.windowDestroyed)
	a.redirector = input.NewRedirector(a.ic, a.client, a.keys, a.state, orig)

	a.client.SetSink(remote{a})
	a.client.SetLocator(locator{a})
	if b.Cursor != nil {
		a.client.SetCursorSetter(func(name string) bool {
			h := b.Cursor(name)
			if h == 0 {
				return false
			}
			orig.SetCursor(h)
			return true
		})
	}
	a.client.OnConnect(a.connected)

	if err := a.ApplyConfig(cfg); err != nil {
		cancel()
		return nil, err
	}
	return a, nil
}

// Run keeps the overlay connector (and the hotkey poller in threaded mode)
// running until ctx is done or the App is closed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.client.Run(gctx) })
	if a.threaded {
		g.Go(func() error {
			a.hotkeys.Run(gctx, hotkeyPollInterval)
			return nil
		})
	}
	return g.Wait()
}

// Close detaches from the window, removes every hook and stops Run.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.ic.Detach()
		a.RemoveHooks()
		a.taps.Close()
		a.cancel()
	})
}

// ApplyConfig replaces the filter tables, hotkeys, overlay keys and mouse
// options. Intercept and connector settings only apply to a new App.
func (a *App) ApplyConfig(cfg *config.Config) error {
	if err := a.hotkeys.SetHotkeys(cfg.Hotkeys); err != nil {
		return fmt.Errorf("overlay: hotkeys: %w", err)
	}
	a.keys.SetRemaps(cfg.FilterRemaps())
	a.keys.SetBlocked(cfg.BlockedKeys())
	a.keys.SetPassed(cfg.PassedKeys())
	a.taps.SetShowHideKeys(config.KeyCode(cfg.Keyboard.ShowKey), config.KeyCode(cfg.Keyboard.HideKey))
	a.taps.SetMenuKey(config.KeyCode(cfg.Keyboard.MenuKey))
	a.client.SetMouseSettings(protocol.MouseSettingsPayload{
		MovingSpeed:         cfg.Mouse.MovingSpeed,
		YAxisInvert:         cfg.Mouse.YAxisInvert,
		SwapButtons:         cfg.Mouse.SwapButtons,
		Numpad5Primary:      cfg.Mouse.Numpad5Primary,
		NumpadPlusSecondary: cfg.Mouse.NumpadPlusSecondary,
	})
	logging.SetLevel(cfg.Logging.Level)
	a.logger.Debug("config applied", zap.Int("hotkeys", len(cfg.Hotkeys)), zap.Int("remaps", len(cfg.Keyboard.Remaps)))
	return nil
}

// InstallHooks redirects every user32 entry point and reports the
// aggregate result to the overlay. Failed entry points stay inert.
func (a *App) InstallHooks() bool {
	err := input.Install(a.table, a.redirector)
	ok := err == nil
	if ok {
		a.logger.Info("input hooks installed", zap.Int("bindings", len(input.EntryPoints)))
	} else {
		a.logger.Warn("some input hooks failed", zap.Error(err))
	}
	a.hooked.Store(ok)
	a.client.SendInputHookInfo(ok)
	return ok
}

// RemoveHooks restores every redirected entry point.
func (a *App) RemoveHooks() {
	input.Uninstall(a.table)
	a.hooked.Store(false)
}

// Bindings lists the redirection table, for diagnostics.
func (a *App) Bindings() []apihook.Binding { return a.table.Bindings() }

// TrySetupGraphicsWindow attaches to hwnd.
func (a *App) TrySetupGraphicsWindow(hwnd uintptr) bool {
	return a.ic.TrySetupGraphicsWindow(hwnd)
}

func (a *App) StartInterception()  { a.ic.StartInterception() }
func (a *App) StopInterception()   { a.ic.StopInterception() }
func (a *App) ToggleInterception() { a.ic.ToggleInterception() }

// Schedule runs fn on the attached window's thread.
func (a *App) Schedule(fn func()) error { return a.ic.Schedule(fn) }

// Intercepting reports whether input currently goes to the overlay.
func (a *App) Intercepting() bool { return a.ic.Intercepting() }

func (a *App) SetKeyRemaps(list []keyfilter.Remap) { a.keys.SetRemaps(list) }
func (a *App) ClearKeyRemaps()                     { a.keys.ClearRemaps() }
func (a *App) SetBlockedKeys(keys []uint32)        { a.keys.SetBlocked(keys) }
func (a *App) ClearBlockedKeys()                   { a.keys.ClearBlocked() }
func (a *App) SetPassedKeys(keys []uint32)         { a.keys.SetPassed(keys) }
func (a *App) ClearPassedKeys()                    { a.keys.ClearPassed() }

// SetMenuKey sets the key pressed before the overlay is shown and shows
// the overlay as soon as the session is ready. A newer call replaces a
// pending show.
func (a *App) SetMenuKey(vk uint32) {
	a.taps.SetMenuKey(vk)

	ctx, cancel := context.WithCancel(a.ctx)
	a.showMu.Lock()
	if a.cancelShow != nil {
		a.cancelShow()
	}
	a.cancelShow = cancel
	a.showMu.Unlock()

	go func() {
		defer cancel()
		a.taps.ShowWhenReady(ctx)
	}()
}

func (a *App) CurrentWindow() uintptr { return a.ic.CurrentWindow() }
func (a *App) IsWindowAttached() bool { return a.ic.IsWindowAttached() }
func (a *App) IsWindowFocused() bool  { return a.ic.IsWindowFocused() }
func (a *App) ClientWidth() int32     { return a.ic.ClientWidth() }
func (a *App) ClientHeight() int32    { return a.ic.ClientHeight() }

// Session mode, set by the attach layer.

func (a *App) SetOverlayEnabled(on bool) { a.overlayEnabled.Store(on) }
func (a *App) SetGraphicsActive(on bool) { a.graphicsActive.Store(on) }
func (a *App) SetWindowed(on bool)       { a.windowed.Store(on) }

func (a *App) OverlayEnabled() bool { return a.overlayEnabled.Load() }
func (a *App) GraphicsActive() bool { return a.graphicsActive.Load() }
func (a *App) IsWindowed() bool     { return a.windowed.Load() }

// Connector exposes the overlay connector.
func (a *App) Connector() *network.Client { return a.client }

// Redirector exposes the replacement policies installed by InstallHooks.
func (a *App) Redirector() *input.Redirector { return a.redirector }

// Done is closed the first time the attached window is destroyed.
func (a *App) Done() <-chan struct{} { return a.destroyed }

func (a *App) connected() {
	a.ic.ResendSetupInfo()
	a.client.SendInputHookInfo(a.hooked.Load())
}

func (a *App) windowDestroyed() {
	a.logger.Info("target window destroyed")
	a.destroyOnce.Do(func() { close(a.destroyed) })
}

// remote applies the overlay's commands. Interception changes run on the
// window thread.
type remote struct{ a *App }

func (r remote) StartInterception() { r.schedule("start", r.a.ic.StartInterception) }
func (r remote) StopInterception()  { r.schedule("stop", r.a.ic.StopInterception) }

func (r remote) schedule(what string, fn func()) {
	if err := r.a.ic.Schedule(fn); err != nil {
		r.a.logger.Warn("interception command dropped", zap.String("command", what), zap.Error(err))
	}
}

func (r remote) SetRemaps(list []keyfilter.Remap)      { r.a.SetKeyRemaps(list) }
func (r remote) SetBlockedKeys(keys []uint32)          { r.a.SetBlockedKeys(keys) }
func (r remote) SetPassedKeys(keys []uint32)           { r.a.SetPassedKeys(keys) }
func (r remote) SetMenuKey(vk uint32)                  { r.a.SetMenuKey(vk) }
func (r remote) SetHotkeys(list []hotkey.Hotkey) error { return r.a.hotkeys.SetHotkeys(list) }

// locator maps screen points into the attached window.
type locator struct{ a *App }

func (l locator) ScreenToClient(pt winapi.Point) (winapi.Point, bool) {
	hwnd := l.a.ic.CurrentWindow()
	if hwnd == 0 {
		return pt, false
	}
	return l.a.platform.ScreenToClient(hwnd, pt)
}

// realInput answers key and cursor queries through the originals, so they
// see the physical state while the entry points are redirected.
type realInput struct {
	Platform
	orig input.Originals
}

func (p realInput) KeyDown(vk uint32) bool {
	return p.orig.AsyncKeyState(int32(vk))&-0x8000 != 0
}

func (p realInput) RealCursorPos() (winapi.Point, bool) { return p.orig.CursorPos() }
