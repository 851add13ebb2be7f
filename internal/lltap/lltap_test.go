package lltap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlayhook/internal/keyfilter"
	"overlayhook/internal/winapi"
)

const target = uintptr(0x42)

type fakeSession struct{ enabled, graphics bool }

func (s *fakeSession) OverlayEnabled() bool { return s.enabled }
func (s *fakeSession) GraphicsActive() bool { return s.graphics }

type fakeTarget struct{ intercepting bool }

func (fakeTarget) CurrentWindow() uintptr { return target }
func (f fakeTarget) Intercepting() bool   { return f.intercepting }

type fakeTransport struct {
	mu                      sync.Mutex
	hotkeys                 []string
	swap, numpad5, numpadPl bool
}

func (f *fakeTransport) SendInGameHotkeyDown(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotkeys = append(f.hotkeys, name)
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hotkeys...)
}

func (f *fakeTransport) SwapMouseButtons() bool    { return f.swap }
func (f *fakeTransport) Numpad5Primary() bool      { return f.numpad5 }
func (f *fakeTransport) NumpadPlusSecondary() bool { return f.numpadPl }

type posted struct {
	msg    uint32
	wParam uintptr
	lParam uintptr
}

type key struct {
	vk uint16
	up bool
}

type fakePlatform struct {
	mu         sync.Mutex
	foreground uintptr
	keys       []key
	posts      []posted
	// inject, when set, delivers each sent key back to the taps the way
	// SendInput does.
	inject func(vk uint16, up bool)
}

func (p *fakePlatform) ForegroundWindow() uintptr { return p.foreground }
func (p *fakePlatform) SendKey(vk uint16, up bool) {
	p.mu.Lock()
	p.keys = append(p.keys, key{vk, up})
	inject := p.inject
	p.mu.Unlock()
	if inject != nil {
		inject(vk, up)
	}
}
func (p *fakePlatform) sentKeys() []key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]key(nil), p.keys...)
}
func (p *fakePlatform) PostMessage(_ uintptr, msg uint32, wParam, lParam uintptr) bool {
	p.posts = append(p.posts, posted{msg, wParam, lParam})
	return true
}
func (p *fakePlatform) RealCursorPos() (winapi.Point, bool) {
	return winapi.Point{X: 110, Y: 220}, true
}

// ScreenToClient places the client area at (100, 200).
func (p *fakePlatform) ScreenToClient(_ uintptr, pt winapi.Point) (winapi.Point, bool) {
	return winapi.Point{X: pt.X - 100, Y: pt.Y - 200}, true
}

type fixture struct {
	taps      *Taps
	session   *fakeSession
	target    *fakeTarget
	transport *fakeTransport
	platform  *fakePlatform
	keys      *keyfilter.Tables
}

func newFixture() *fixture {
	f := &fixture{
		session:   &fakeSession{enabled: true, graphics: true},
		target:    &fakeTarget{},
		transport: &fakeTransport{},
		platform:  &fakePlatform{foreground: target},
		keys:      keyfilter.New(),
	}
	f.taps = New(Deps{Session: f.session, Target: f.target, Transport: f.transport, Platform: f.platform, Keys: f.keys})
	f.taps.hold = time.Millisecond
	return f
}

func TestInactiveTapsPassEverything(t *testing.T) {
	f := newFixture()
	f.keys.SetBlocked([]uint32{0x41})
	f.transport.swap = true

	f.platform.foreground = 0x99
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x41, 0))
	assert.False(t, f.taps.Mouse(winapi.WM_LBUTTONDOWN, winapi.Point{}, 0))

	f.platform.foreground = target
	f.session.graphics = false
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x41, 0))
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_HOME, 0))
	assert.Empty(t, f.transport.sent())
}

func TestBlockedPassedRemapped(t *testing.T) {
	f := newFixture()
	f.keys.SetBlocked([]uint32{0x41})
	f.keys.SetPassed([]uint32{0x42})
	f.keys.SetRemaps([]keyfilter.Remap{{From: 0x42, To: 0x44, Enabled: true}, {From: 0x43, To: 0x45, Enabled: true}})

	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x41, 0), "blocked key consumed")
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x42, 0), "passed key skips remap")
	assert.True(t, f.taps.Keyboard(winapi.WM_SYSKEYDOWN, 0x43, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYUP, 0x43, 0))
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x46, 0))

	assert.Equal(t, []key{{0x45, false}, {0x45, true}}, f.platform.sentKeys())
}

func TestInjectedRemapTargetsAreNotFilteredAgain(t *testing.T) {
	f := newFixture()
	f.keys.SetRemaps([]keyfilter.Remap{
		{From: 0x41, To: 0x42, Enabled: true},
		{From: 0x42, To: 0x41, Enabled: true},
		{From: 0x43, To: 0x44, Enabled: true},
	})
	f.keys.SetBlocked([]uint32{0x44})

	var reentered []bool
	f.platform.inject = func(vk uint16, up bool) {
		msg := uint32(winapi.WM_KEYDOWN)
		if up {
			msg = winapi.WM_KEYUP
		}
		reentered = append(reentered, f.taps.Keyboard(msg, uint32(vk), winapi.InjectTag))
	}

	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x41, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYUP, 0x41, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x43, 0))

	assert.Equal(t, []key{{0x42, false}, {0x42, true}, {0x44, false}}, f.platform.sentKeys())
	assert.Equal(t, []bool{false, false, false}, reentered, "injected keys reach the target")
}

func TestFiltersIdleWhileIntercepting(t *testing.T) {
	f := newFixture()
	f.keys.SetBlocked([]uint32{0x41})
	f.target.intercepting = true

	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, 0x41, 0))
}

func TestNumpadMouseButtons(t *testing.T) {
	f := newFixture()
	f.transport.numpad5 = true

	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_NUMPAD5, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYUP, winapi.VK_NUMPAD5, 0))
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_ADD, 0), "secondary disabled")

	f.transport.numpadPl = true
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_ADD, 0))

	at := winapi.MakeLParam(10, 20)
	assert.Equal(t, []posted{
		{winapi.WM_LBUTTONDOWN, winapi.MK_LBUTTON, at},
		{winapi.WM_LBUTTONUP, 0, at},
		{winapi.WM_RBUTTONDOWN, winapi.MK_RBUTTON, at},
	}, f.platform.posts)
}

func TestMouseSwap(t *testing.T) {
	f := newFixture()
	pt := winapi.Point{X: 150, Y: 260}

	assert.False(t, f.taps.Mouse(winapi.WM_LBUTTONDOWN, pt, 0), "swap disabled")

	f.transport.swap = true
	assert.True(t, f.taps.Mouse(winapi.WM_LBUTTONDOWN, pt, 0))
	assert.True(t, f.taps.Mouse(winapi.WM_RBUTTONUP, pt, 0))
	assert.False(t, f.taps.Mouse(winapi.WM_MOUSEMOVE, pt, 0))
	assert.False(t, f.taps.Mouse(winapi.WM_LBUTTONDOWN, pt, winapi.InjectTag), "tagged synthetic events pass")

	at := winapi.MakeLParam(50, 60)
	assert.Equal(t, []posted{
		{winapi.WM_RBUTTONDOWN, winapi.MK_RBUTTON, at},
		{winapi.WM_LBUTTONUP, 0, at},
	}, f.platform.posts)
}

func TestShowHideKeys(t *testing.T) {
	f := newFixture()

	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_END, 0))
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYUP, winapi.VK_END, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_HOME, 0))

	require.Eventually(t, func() bool { return len(f.transport.sent()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{HotkeyHide, HotkeyShow}, f.transport.sent())
	assert.Empty(t, f.platform.sentKeys(), "no menu key configured")

	f.taps.SetShowHideKeys(winapi.VK_F12, 0)
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_HOME, 0))
	assert.False(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_END, 0))
	assert.True(t, f.taps.Keyboard(winapi.WM_KEYDOWN, winapi.VK_F12, 0))
}

func TestShowOverlayPressesMenuKey(t *testing.T) {
	f := newFixture()
	f.taps.SetMenuKey(winapi.VK_ESCAPE)

	f.taps.ShowOverlay()

	require.Eventually(t, func() bool { return len(f.transport.sent()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []key{{winapi.VK_ESCAPE, false}, {winapi.VK_ESCAPE, true}}, f.platform.sentKeys())
	assert.Equal(t, []string{HotkeyShow}, f.transport.sent())
}

func TestShowWhenReady(t *testing.T) {
	f := newFixture()
	f.session.graphics = false

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f.taps.ShowWhenReady(ctx)
	assert.Empty(t, f.transport.sent(), "gives up when the context ends")

	f.session.graphics = true
	f.taps.ShowWhenReady(context.Background())
	require.Eventually(t, func() bool { return len(f.transport.sent()) == 1 }, time.Second, time.Millisecond)
}

func TestGuardRecovers(t *testing.T) {
	f := newFixture()
	assert.False(t, f.taps.guard(func() bool { panic("boom") }))
	assert.True(t, f.taps.guard(func() bool { return true }))
}
