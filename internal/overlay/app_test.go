package overlay

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlayhook/internal/apihook"
	"overlayhook/internal/config"
	"overlayhook/internal/hotkey"
	"overlayhook/internal/input"
	"overlayhook/internal/interceptor"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/taskqueue"
	"overlayhook/internal/winapi"
)

const (
	targetHwnd  = uintptr(0x2000)
	taskMessage = uint32(0xC123)
	f10         = 0x79
)

type sentKey struct {
	vk uint16
	up bool
}

type fakePlatform struct {
	mu     sync.Mutex
	posted []uint32
	keys   []sentKey
}

func (p *fakePlatform) ForegroundWindow() uintptr { return targetHwnd }
func (p *fakePlatform) ClientRect(uintptr) (winapi.Rect, bool) {
	return winapi.Rect{Right: 1280, Bottom: 720}, true
}
func (p *fakePlatform) WindowTitle(uintptr) string          { return "game" }
func (p *fakePlatform) RealCursorPos() (winapi.Point, bool) { return winapi.Point{X: 40, Y: 50}, true }
func (p *fakePlatform) KeyDown(uint32) bool                 { return false }
func (p *fakePlatform) AssociateIME(uintptr)                {}
func (p *fakePlatform) RestoreIME(uintptr)                  {}

func (p *fakePlatform) SendKey(vk uint16, up bool) {
	p.mu.Lock()
	p.keys = append(p.keys, sentKey{vk, up})
	p.mu.Unlock()
}

func (p *fakePlatform) sentKeys() []sentKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentKey(nil), p.keys...)
}

func (p *fakePlatform) PostMessage(_ uintptr, msg uint32, _, _ uintptr) bool {
	p.mu.Lock()
	p.posted = append(p.posted, msg)
	p.mu.Unlock()
	return true
}

func (p *fakePlatform) ScreenToClient(hwnd uintptr, pt winapi.Point) (winapi.Point, bool) {
	if hwnd != targetHwnd {
		return pt, false
	}
	return winapi.Point{X: pt.X - 100, Y: pt.Y - 10}, true
}

type nopPatch struct{}

func (nopPatch) Restore() error { return nil }

type fakePatcher struct{}

func (fakePatcher) Resolve(string) (uintptr, error) { return 0x7000, nil }
func (fakePatcher) Patch(string, uintptr, uintptr) (apihook.Patch, error) {
	return nopPatch{}, nil
}

// fakeOriginals is the real user32 surface with only 'A' held down.
type fakeOriginals struct {
	mu      sync.Mutex
	counter int32
	handle  uintptr
}

func (o *fakeOriginals) ShowCursor(show bool) int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if show {
		o.counter++
	} else {
		o.counter--
	}
	return o.counter
}
func (o *fakeOriginals) CursorPos() (winapi.Point, bool) { return winapi.Point{X: 5, Y: 6}, true }
func (o *fakeOriginals) Cursor() uintptr                 { return o.handle }
func (o *fakeOriginals) SetCursor(h uintptr) uintptr {
	prev := o.handle
	o.handle = h
	return prev
}
func (o *fakeOriginals) AsyncKeyState(vk int32) int16 {
	if vk == 'A' {
		return -0x8000
	}
	return 0
}
func (o *fakeOriginals) KeyState(vk int32) int16                               { return o.AsyncKeyState(vk) }
func (o *fakeOriginals) KeyboardState(*[256]byte) bool                         { return true }
func (o *fakeOriginals) SetCursorPos(int32, int32) bool                        { return true }
func (o *fakeOriginals) DefRawInputProc([]uintptr, uint32)                     {}
func (o *fakeOriginals) RawInputBuffer(unsafe.Pointer, *uint32, uint32) uint32 { return 0 }
func (o *fakeOriginals) RawInputData(uintptr, uint32, unsafe.Pointer, *uint32, uint32) uint32 {
	return 0
}

// fakeHook remembers the router so tests can play the window procedure.
type fakeHook struct {
	mode   string
	router interceptor.Router
}

func (h *fakeHook) Hook(_ uintptr, r interceptor.Router) error {
	h.router = r
	return nil
}

func (h *fakeHook) Unhook() error {
	h.router = nil
	return nil
}

type fixture struct {
	app      *App
	platform *fakePlatform
	hook     *fakeHook
	cfg      *config.Config
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Connector.URL = "ws://127.0.0.1:1/overlay"
	cfg.Keyboard.Remaps = []config.RemapConfig{{From: "Q", To: "W", Enabled: true}}
	cfg.Keyboard.Blocked = []string{"F5"}
	cfg.Keyboard.Passed = []string{"SHIFT"}
	cfg.Keyboard.MenuKey = "ESC"
	cfg.Mouse.MovingSpeed = 2.5
	return cfg
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{platform: &fakePlatform{}, hook: &fakeHook{}, cfg: cfg}
	app, err := New(cfg, Backend{
		Platform: f.platform,
		Patcher:  fakePatcher{},
		Invoke:   func(uintptr, ...uintptr) uintptr { return 0 },
		Originals: func(*apihook.Table) input.Originals {
			return &fakeOriginals{}
		},
		Hook: func(mode string) (interceptor.WindowHook, error) {
			f.hook.mode = mode
			return f.hook, nil
		},
		TaskMessage: taskMessage,
		Process:     "game.exe",
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	f.app = app
	return f
}

func (f *fixture) attach(t *testing.T) {
	t.Helper()
	f.app.SetOverlayEnabled(true)
	require.True(t, f.app.TrySetupGraphicsWindow(targetHwnd))
	require.NotNil(t, f.hook.router)
}

func (f *fixture) pumpTasks() interceptor.Verdict {
	return f.hook.router.Route(interceptor.Message{
		Hwnd: targetHwnd, Msg: taskMessage, WParam: taskqueue.MagicWParam, LParam: taskqueue.TaskLParam,
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Intercept.HookMode = "inline"
	_, err := New(cfg, Backend{})
	assert.Error(t, err)
}

func TestNewReportsHookError(t *testing.T) {
	boom := errors.New("no hook")
	_, err := New(config.DefaultConfig(), Backend{
		Hook: func(string) (interceptor.WindowHook, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestConfigApplied(t *testing.T) {
	f := newFixture(t, testConfig())

	assert.Equal(t, "wndproc", f.hook.mode)
	assert.Equal(t, uint32(winapi.VK_ESCAPE), f.app.taps.MenuKey())
	assert.Equal(t, float32(2.5), f.app.Connector().MovingSpeed())

	class, target := f.app.keys.Classify('Q')
	assert.Equal(t, keyfilter.ClassRemapped, class)
	assert.Equal(t, uint32('W'), target)
	class, _ = f.app.keys.Classify(0x74)
	assert.Equal(t, keyfilter.ClassBlocked, class)
	class, _ = f.app.keys.Classify(0xA0)
	assert.Equal(t, keyfilter.ClassPassed, class)

	assert.Equal(t, []hotkey.Hotkey{{Name: "overlay.toggle", Combo: "Shift+Tab"}}, f.app.hotkeys.Hotkeys())
}

func TestApplyConfigRejectsBadHotkey(t *testing.T) {
	f := newFixture(t, testConfig())
	cfg := testConfig()
	cfg.Hotkeys = []hotkey.Hotkey{{Name: "x", Combo: "Shift+Nope"}}

	assert.Error(t, f.app.ApplyConfig(cfg))
	assert.Len(t, f.app.hotkeys.Hotkeys(), 1, "previous hotkeys kept")
}

func TestFilterTableSetters(t *testing.T) {
	f := newFixture(t, testConfig())

	f.app.ClearKeyRemaps()
	f.app.ClearBlockedKeys()
	f.app.ClearPassedKeys()
	class, _ := f.app.keys.Classify('Q')
	assert.Equal(t, keyfilter.ClassNone, class)

	f.app.SetBlockedKeys([]uint32{'Q'})
	f.app.SetPassedKeys([]uint32{'Q'})
	class, _ = f.app.keys.Classify('Q')
	assert.Equal(t, keyfilter.ClassBlocked, class)
}

func TestAttachAndWindowState(t *testing.T) {
	f := newFixture(t, testConfig())
	assert.False(t, f.app.IsWindowAttached())

	f.attach(t)
	assert.Equal(t, targetHwnd, f.app.CurrentWindow())
	assert.True(t, f.app.IsWindowAttached())
	assert.True(t, f.app.IsWindowFocused())
	assert.Equal(t, int32(1280), f.app.ClientWidth())
	assert.Equal(t, int32(720), f.app.ClientHeight())
	assert.False(t, f.app.TrySetupGraphicsWindow(targetHwnd+1))
}

func TestRemoteStartRunsOnWindowThread(t *testing.T) {
	f := newFixture(t, testConfig())
	f.attach(t)
	cmds := remote{f.app}

	cmds.StartInterception()
	assert.False(t, f.app.Intercepting(), "not before the window thread runs the task")

	v := f.pumpTasks()
	assert.True(t, v.Handled)
	assert.True(t, f.app.Intercepting())

	cmds.StopInterception()
	f.pumpTasks()
	assert.False(t, f.app.Intercepting())
}

func TestRemoteStartWithoutWindowIsDropped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.app.SetOverlayEnabled(true)

	remote{f.app}.StartInterception()
	assert.False(t, f.app.Intercepting())
}

func TestRemoteSettersReachTables(t *testing.T) {
	f := newFixture(t, testConfig())
	cmds := remote{f.app}

	cmds.SetRemaps([]keyfilter.Remap{{From: 'A', To: 'B', Enabled: true}})
	cmds.SetBlockedKeys([]uint32{'C'})
	cmds.SetPassedKeys([]uint32{'D'})
	require.NoError(t, cmds.SetHotkeys([]hotkey.Hotkey{{Name: "menu", Combo: "F10"}}))

	class, target := f.app.keys.Classify('A')
	assert.Equal(t, keyfilter.ClassRemapped, class)
	assert.Equal(t, uint32('B'), target)
	class, _ = f.app.keys.Classify('C')
	assert.Equal(t, keyfilter.ClassBlocked, class)
	class, _ = f.app.keys.Classify('D')
	assert.Equal(t, keyfilter.ClassPassed, class)
	assert.Equal(t, "menu", f.app.hotkeys.Hotkeys()[0].Name)
}

func TestInterceptionBlocksKeyQueries(t *testing.T) {
	f := newFixture(t, testConfig())
	f.attach(t)
	r := f.app.Redirector()
	assert.NotZero(t, r.AsyncKeyState('A'))

	f.app.StartInterception()
	assert.True(t, f.app.Intercepting())
	assert.Zero(t, r.AsyncKeyState('A'))

	f.app.ToggleInterception()
	assert.False(t, f.app.Intercepting())
}

func TestOwnQueriesSeePhysicalInput(t *testing.T) {
	f := newFixture(t, testConfig())
	f.attach(t)
	f.app.StartInterception()
	require.True(t, f.app.Intercepting())

	assert.True(t, f.app.platform.KeyDown('A'))
	assert.False(t, f.app.platform.KeyDown('B'))
	pt, ok := f.app.platform.RealCursorPos()
	assert.True(t, ok)
	assert.Equal(t, winapi.Point{X: 5, Y: 6}, pt)
}

func TestLocatorFollowsAttachedWindow(t *testing.T) {
	f := newFixture(t, testConfig())
	loc := locator{f.app}

	_, ok := loc.ScreenToClient(winapi.Point{X: 150, Y: 30})
	assert.False(t, ok)

	f.attach(t)
	pt, ok := loc.ScreenToClient(winapi.Point{X: 150, Y: 30})
	assert.True(t, ok)
	assert.Equal(t, winapi.Point{X: 50, Y: 20}, pt)
}

func TestSessionFlags(t *testing.T) {
	f := newFixture(t, testConfig())
	assert.False(t, f.app.OverlayEnabled())

	f.app.SetOverlayEnabled(true)
	f.app.SetGraphicsActive(true)
	f.app.SetWindowed(true)
	assert.True(t, f.app.OverlayEnabled())
	assert.True(t, f.app.GraphicsActive())
	assert.True(t, f.app.IsWindowed())
}

func TestSetMenuKeyShowsWhenReady(t *testing.T) {
	f := newFixture(t, testConfig())

	f.app.SetMenuKey(f10)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.platform.sentKeys(), "session not ready yet")

	f.app.SetOverlayEnabled(true)
	f.app.SetGraphicsActive(true)
	require.Eventually(t, func() bool { return len(f.platform.sentKeys()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []sentKey{{f10, false}, {f10, true}}, f.platform.sentKeys())
}

func TestWindowDestroyClosesDone(t *testing.T) {
	f := newFixture(t, testConfig())
	f.attach(t)

	f.hook.router.Route(interceptor.Message{Hwnd: targetHwnd, Msg: winapi.WM_DESTROY})

	select {
	case <-f.app.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	assert.False(t, f.app.IsWindowAttached())
}

func TestInstallHooksReportsAggregate(t *testing.T) {
	f := newFixture(t, testConfig())

	ok := f.app.InstallHooks()
	assert.Equal(t, runtime.GOOS == "windows", ok)

	f.app.RemoveHooks()
	for _, b := range f.app.Bindings() {
		assert.False(t, b.Installed, b.Name)
	}
}

func TestRunStopsOnClose(t *testing.T) {
	f := newFixture(t, testConfig())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(context.Background()) }()

	f.app.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
