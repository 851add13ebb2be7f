package network

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overlayhook/internal/hotkey"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/protocol"
	"overlayhook/internal/winapi"
)

type sinkState struct {
	started int
	stopped int
	remaps  []keyfilter.Remap
	blocked []uint32
	passed  []uint32
	menuKey uint32
	hotkeys []hotkey.Hotkey
}

type fakeSink struct {
	mu sync.Mutex
	st sinkState
}

func (s *fakeSink) update(fn func(st *sinkState)) {
	s.mu.Lock()
	fn(&s.st)
	s.mu.Unlock()
}

func (s *fakeSink) StartInterception()            { s.update(func(st *sinkState) { st.started++ }) }
func (s *fakeSink) StopInterception()             { s.update(func(st *sinkState) { st.stopped++ }) }
func (s *fakeSink) SetRemaps(r []keyfilter.Remap) { s.update(func(st *sinkState) { st.remaps = r }) }
func (s *fakeSink) SetBlockedKeys(k []uint32)     { s.update(func(st *sinkState) { st.blocked = k }) }
func (s *fakeSink) SetPassedKeys(k []uint32)      { s.update(func(st *sinkState) { st.passed = k }) }
func (s *fakeSink) SetMenuKey(vk uint32)          { s.update(func(st *sinkState) { st.menuKey = vk }) }
func (s *fakeSink) SetHotkeys(l []hotkey.Hotkey) error {
	s.update(func(st *sinkState) { st.hotkeys = l })
	return nil
}

func (s *fakeSink) snapshot() sinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// overlayServer is a stand-in overlay process.
type overlayServer struct {
	*httptest.Server
	conns  chan *websocket.Conn
	texts  chan protocol.Message
	frames chan []byte
	auth   chan string
}

func newOverlayServer(t *testing.T) *overlayServer {
	t.Helper()
	s := &overlayServer{
		conns:  make(chan *websocket.Conn, 4),
		texts:  make(chan protocol.Message, 64),
		frames: make(chan []byte, 64),
		auth:   make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.auth <- r.Header.Get("Authorization")
		s.conns <- conn
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				s.frames <- data
				continue
			}
			var msg protocol.Message
			if json.Unmarshal(data, &msg) == nil {
				s.texts <- msg
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *overlayServer) url() string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func (s *overlayServer) nextText(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case m := <-s.texts:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message from client")
		return protocol.Message{}
	}
}

func (s *overlayServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func command(t *testing.T, conn *websocket.Conn, typ protocol.MessageType, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func startClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("client did not stop")
		}
	})
}

func TestHelloAndNotifications(t *testing.T) {
	srv := newOverlayServer(t)
	c := NewClient(Options{URL: srv.url(), Token: "secret", Process: "game.exe"})
	startClient(t, c)

	assert.Equal(t, "Bearer secret", <-srv.auth)
	srv.nextConn(t)

	hello := srv.nextText(t)
	require.Equal(t, protocol.TypeHello, hello.Type)
	var hp protocol.HelloPayload
	require.NoError(t, hello.Decode(&hp))
	assert.Equal(t, c.SessionID(), hp.SessionID)
	assert.Equal(t, os.Getpid(), hp.PID)
	assert.Equal(t, "game.exe", hp.Process)

	require.Eventually(t, c.Connected, 5*time.Second, 5*time.Millisecond)
	c.SendGraphicsWindowSetupInfo(0x10, 800, 600, true, true)
	c.SendInGameHotkeyDown("overlay.show")
	c.SendInputIntercept()

	setup := srv.nextText(t)
	assert.Equal(t, protocol.TypeWindowSetup, setup.Type)
	var wp protocol.WindowPayload
	require.NoError(t, setup.Decode(&wp))
	assert.Equal(t, protocol.WindowPayload{Window: 0x10, Width: 800, Height: 600, Focused: true, Hooked: true}, wp)

	hk := srv.nextText(t)
	assert.Equal(t, protocol.TypeHotkeyDown, hk.Type)
	assert.JSONEq(t, `{"name":"overlay.show"}`, string(hk.Payload))

	assert.Equal(t, protocol.TypeInterceptStarted, srv.nextText(t).Type)
}

func TestCommandsReachSink(t *testing.T) {
	srv := newOverlayServer(t)
	sink := &fakeSink{}
	c := NewClient(Options{URL: srv.url()})
	c.SetSink(sink)
	startClient(t, c)

	conn := srv.nextConn(t)
	srv.nextText(t)

	command(t, conn, protocol.TypeIntercept, protocol.InterceptPayload{Start: true})
	command(t, conn, protocol.TypeKeyRemap, protocol.RemapPayload{Remaps: []protocol.RemapEntry{{From: 'Q', To: 'W', Enabled: true}}})
	command(t, conn, protocol.TypeKeyBlock, protocol.KeysPayload{Keys: []uint32{0x74}})
	command(t, conn, protocol.TypeKeyPass, protocol.KeysPayload{Keys: []uint32{0x10}})
	command(t, conn, protocol.TypeMenuKey, protocol.MenuKeyPayload{Key: winapi.VK_ESCAPE})
	command(t, conn, protocol.TypeHotkeyInfo, protocol.HotkeyInfoPayload{Hotkeys: []protocol.HotkeyEntry{{Name: "toggle", Combo: "Shift+Tab"}}})
	command(t, conn, protocol.TypeMouseSettings, protocol.MouseSettingsPayload{MovingSpeed: 2, YAxisInvert: true, SwapButtons: true})
	command(t, conn, protocol.TypeIntercept, protocol.InterceptPayload{Start: false})

	require.Eventually(t, func() bool { return sink.snapshot().stopped == 1 }, 5*time.Second, 5*time.Millisecond)
	got := sink.snapshot()
	assert.Equal(t, 1, got.started)
	assert.Equal(t, []keyfilter.Remap{{From: 'Q', To: 'W', Enabled: true}}, got.remaps)
	assert.Equal(t, []uint32{0x74}, got.blocked)
	assert.Equal(t, []uint32{0x10}, got.passed)
	assert.Equal(t, uint32(winapi.VK_ESCAPE), got.menuKey)
	assert.Equal(t, []hotkey.Hotkey{{Name: "toggle", Combo: "Shift+Tab"}}, got.hotkeys)

	assert.Equal(t, float32(2), c.MovingSpeed())
	assert.True(t, c.YAxisInvert())
	assert.True(t, c.SwapMouseButtons())
	assert.False(t, c.Numpad5Primary())
}

func TestReconnectRunsOnConnectAgain(t *testing.T) {
	srv := newOverlayServer(t)
	c := NewClient(Options{URL: srv.url(), ReconnectDelay: 10 * time.Millisecond})
	var connects atomic.Int32
	c.OnConnect(func() { connects.Add(1) })
	startClient(t, c)

	first := srv.nextConn(t)
	first.Close()

	srv.nextConn(t)
	require.Eventually(t, func() bool { return connects.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	hellos := 0
	for hellos < 2 {
		if srv.nextText(t).Type == protocol.TypeHello {
			hellos++
		}
	}
}

func TestForwardedInputFrames(t *testing.T) {
	srv := newOverlayServer(t)
	c := NewClient(Options{URL: srv.url()})
	startClient(t, c)
	srv.nextConn(t)
	srv.nextText(t)
	require.Eventually(t, c.Connected, 5*time.Second, 5*time.Millisecond)

	assert.True(t, c.ProcessKeyboardMessage(winapi.WM_KEYDOWN, 0x41, 0))

	select {
	case data := <-srv.frames:
		f, err := protocol.DecodeFrame(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.FrameKeyboard, f.Type)
		assert.Equal(t, uint32(winapi.WM_KEYDOWN), f.Msg)
		assert.Equal(t, uint64(0x41), f.WParam)
		assert.Equal(t, uint32(1), f.Seq)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame")
	}
}

func TestRunWithoutEndpoint(t *testing.T) {
	assert.ErrorIs(t, NewClient(Options{}).Run(context.Background()), ErrNoEndpoint)
}

func TestOfflineMessagesAreDropped(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1"})
	c.SendInputStopIntercept()
	c.SendInputHookInfo(true)
	assert.Equal(t, uint64(2), c.Dropped())
}

type offsetLocator struct{ dx, dy int32 }

func (l offsetLocator) ScreenToClient(pt winapi.Point) (winapi.Point, bool) {
	return winapi.Point{X: pt.X - l.dx, Y: pt.Y - l.dy}, true
}

func overlayState(c *Client, focus uint32, windows ...protocol.OverlayWindow) {
	msg, _ := protocol.NewMessage(protocol.TypeOverlayState, protocol.OverlayStatePayload{Windows: windows, FocusID: focus})
	c.handleMessage(msg)
}

func TestHitTesting(t *testing.T) {
	c := NewClient(Options{URL: "ws://unused"})
	c.SetLocator(offsetLocator{dx: 100, dy: 100})
	overlayState(c, 3,
		protocol.OverlayWindow{ID: 1, X: 0, Y: 0, Width: 200, Height: 200},
		protocol.OverlayWindow{ID: 2, X: 50, Y: 50, Width: 50, Height: 50},
		protocol.OverlayWindow{ID: 9, X: 0, Y: 0, Width: 1000, Height: 1000, Transparent: true},
	)

	assert.Equal(t, uint32(3), c.FocusWindowID())

	assert.True(t, c.ProcessNCHitTest(winapi.WM_NCHITTEST, 0, winapi.MakeLParam(160, 160), false))
	assert.Equal(t, uint32(2), c.HoverWindowID(), "top-most window wins")

	assert.True(t, c.ProcessNCHitTest(winapi.WM_NCHITTEST, 0, winapi.MakeLParam(110, 110), false))
	assert.Equal(t, uint32(1), c.HoverWindowID())

	assert.False(t, c.ProcessNCHitTest(winapi.WM_NCHITTEST, 0, winapi.MakeLParam(400, 400), false))
	assert.Zero(t, c.HoverWindowID())
}

func TestMousePressKeepsOverlayCapture(t *testing.T) {
	c := NewClient(Options{URL: "ws://unused"})
	overlayState(c, 0, protocol.OverlayWindow{ID: 1, X: 0, Y: 0, Width: 100, Height: 100})

	assert.False(t, c.ProcessMouseMessage(winapi.WM_MOUSEMOVE, 0, winapi.MakeLParam(300, 300), false))
	assert.True(t, c.ProcessMouseMessage(winapi.WM_LBUTTONDOWN, winapi.MK_LBUTTON, winapi.MakeLParam(10, 10), false))
	assert.True(t, c.IsMousePressingOnOverlayWindow())

	assert.True(t, c.ProcessMouseMessage(winapi.WM_MOUSEMOVE, 0, winapi.MakeLParam(300, 300), false), "drag leaves the window")
	assert.True(t, c.ProcessMouseMessage(winapi.WM_LBUTTONUP, 0, winapi.MakeLParam(300, 300), false))
	assert.False(t, c.IsMousePressingOnOverlayWindow())
	assert.False(t, c.ProcessMouseMessage(winapi.WM_LBUTTONUP, 0, winapi.MakeLParam(300, 300), true))
}

func TestSetCursor(t *testing.T) {
	c := NewClient(Options{URL: "ws://unused"})
	var applied []string
	c.SetCursorSetter(func(name string) bool {
		applied = append(applied, name)
		return true
	})

	assert.False(t, c.ProcessSetCursor(), "no cursor requested yet")

	msg, err := protocol.NewMessage(protocol.TypeCursor, protocol.CursorPayload{Name: "ibeam"})
	require.NoError(t, err)
	c.handleMessage(msg)

	assert.True(t, c.ProcessSetCursor())
	assert.Equal(t, []string{"ibeam"}, applied)
}

func TestMouseSettingsDefaults(t *testing.T) {
	c := NewClient(Options{URL: "ws://unused"})
	assert.Equal(t, float32(1), c.MovingSpeed())

	c.SetMouseSettings(protocol.MouseSettingsPayload{MovingSpeed: -1, Numpad5Primary: true, NumpadPlusSecondary: true})
	assert.Equal(t, float32(1), c.MovingSpeed())
	assert.True(t, c.Numpad5Primary())
	assert.True(t, c.NumpadPlusSecondary())
}

func TestStreamLinkFraming(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	left, right := newStreamLink(a), newStreamLink(b)

	go func() {
		left.Write(kindText, []byte(`{"type":"hello"}`))
		left.Write(kindBinary, []byte{1, 2, 3})
	}()

	kind, data, err := right.Read()
	require.NoError(t, err)
	assert.Equal(t, kindText, kind)
	assert.Equal(t, `{"type":"hello"}`, string(data))

	kind, data, err = right.Read()
	require.NoError(t, err)
	assert.Equal(t, kindBinary, kind)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.NoError(t, right.Ping())
}
