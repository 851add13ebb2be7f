// Package network is the overlay connector: it reports the target window's
// lifecycle to the overlay process, forwards input while the overlay owns
// it, and answers the message pump's synchronous queries from cached
// overlay state.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"overlayhook/internal/hotkey"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/logging"
	"overlayhook/internal/protocol"
	"overlayhook/internal/winapi"
)

const (
	defaultQueueSize      = 256
	defaultReconnectDelay = 5 * time.Second
)

var ErrNoEndpoint = errors.New("network: no url or pipe configured")

// CommandSink receives the commands sent by the overlay.
type CommandSink interface {
	StartInterception()
	StopInterception()
	SetRemaps(remaps []keyfilter.Remap)
	SetBlockedKeys(keys []uint32)
	SetPassedKeys(keys []uint32)
	SetMenuKey(vk uint32)
	SetHotkeys(list []hotkey.Hotkey) error
}

// Locator converts screen coordinates to the target's client coordinates.
type Locator interface {
	ScreenToClient(pt winapi.Point) (winapi.Point, bool)
}

type Options struct {
	URL   string
	Pipe  string
	Token string
	// Process names the hooked executable in the hello message
	Process        string
	QueueSize      int
	ReconnectDelay time.Duration
}

type outbound struct {
	kind frameKind
	data []byte
}

// Client is the overlay connector.
type Client struct {
	opts      Options
	sessionID string
	send      chan outbound
	seq       atomic.Uint32
	dropped   atomic.Uint64
	connected atomic.Bool
	logger    *zap.Logger

	hooksMu   sync.RWMutex
	sink      CommandSink
	locator   Locator
	setCursor func(name string) bool
	onConnect func()

	stateMu  sync.RWMutex
	windows  []protocol.OverlayWindow
	cursor   string
	focusID  atomic.Uint32
	hoverID  atomic.Uint32
	pressing atomic.Bool

	speedBits  atomic.Uint32
	invertY    atomic.Bool
	swap       atomic.Bool
	numpad5    atomic.Bool
	numpadPlus atomic.Bool
}

// NewClient creates a disconnected client; Run connects it.
func NewClient(opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	c := &Client{
		opts:      opts,
		sessionID: uuid.NewString(),
		send:      make(chan outbound, opts.QueueSize),
		logger:    logging.L("network"),
	}
	c.speedBits.Store(math.Float32bits(1))
	return c
}

func (c *Client) SetSink(s CommandSink) {
	c.hooksMu.Lock()
	c.sink = s
	c.hooksMu.Unlock()
}

func (c *Client) SetLocator(l Locator) {
	c.hooksMu.Lock()
	c.locator = l
	c.hooksMu.Unlock()
}

// SetCursorSetter installs the function applying a named cursor shape.
func (c *Client) SetCursorSetter(fn func(name string) bool) {
	c.hooksMu.Lock()
	c.setCursor = fn
	c.hooksMu.Unlock()
}

// OnConnect registers fn to run after every (re)connection handshake.
func (c *Client) OnConnect(fn func()) {
	c.hooksMu.Lock()
	c.onConnect = fn
	c.hooksMu.Unlock()
}

func (c *Client) SessionID() string { return c.sessionID }
func (c *Client) Connected() bool   { return c.connected.Load() }

// Dropped counts messages discarded because the client was offline or the
// queue was full.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Run keeps the client connected until ctx ends, retrying after each
// failure.
func (c *Client) Run(ctx context.Context) error {
	if c.opts.URL == "" && c.opts.Pipe == "" {
		return ErrNoEndpoint
	}
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost", zap.Error(err), zap.Duration("retry_in", c.opts.ReconnectDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Client) dial() (link, error) {
	if c.opts.Pipe != "" {
		return dialPipe(c.opts.Pipe)
	}
	return dialWebsocket(c.opts.URL, c.opts.Token)
}

func (c *Client) session(ctx context.Context) error {
	l, err := c.dial()
	if err != nil {
		return err
	}
	defer l.Close()

	hello, err := encodeMessage(protocol.TypeHello, protocol.HelloPayload{
		SessionID: c.sessionID,
		Token:     c.opts.Token,
		PID:       os.Getpid(),
		Process:   c.opts.Process,
	})
	if err != nil {
		return err
	}
	if err := l.Write(kindText, hello); err != nil {
		return err
	}

	c.discardQueued()
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("connected", zap.String("session", c.sessionID))

	c.hooksMu.RLock()
	onConnect := c.onConnect
	c.hooksMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(l) })
	g.Go(func() error { return c.writePump(gctx, l) })
	g.Go(func() error {
		<-gctx.Done()
		l.Close()
		return nil
	})
	return g.Wait()
}

func (c *Client) discardQueued() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func (c *Client) readPump(l link) error {
	for {
		kind, data, err := l.Read()
		if err != nil {
			return err
		}
		if kind != kindText {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid message", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump(ctx context.Context, l link) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case out := <-c.send:
			if err := l.Write(out.kind, out.data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := l.Ping(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) handleMessage(msg protocol.Message) {
	c.hooksMu.RLock()
	sink := c.sink
	c.hooksMu.RUnlock()

	log := c.logger.With(zap.String("type", string(msg.Type)))
	var err error
	switch msg.Type {
	case protocol.TypeIntercept:
		var p protocol.InterceptPayload
		if err = msg.Decode(&p); err == nil && sink != nil {
			if p.Start {
				sink.StartInterception()
			} else {
				sink.StopInterception()
			}
		}

	case protocol.TypeKeyRemap:
		var p protocol.RemapPayload
		if err = msg.Decode(&p); err == nil && sink != nil {
			remaps := make([]keyfilter.Remap, 0, len(p.Remaps))
			for _, r := range p.Remaps {
				remaps = append(remaps, keyfilter.Remap{From: r.From, To: r.To, Enabled: r.Enabled})
			}
			sink.SetRemaps(remaps)
		}

	case protocol.TypeKeyBlock, protocol.TypeKeyPass:
		var p protocol.KeysPayload
		if err = msg.Decode(&p); err == nil && sink != nil {
			if msg.Type == protocol.TypeKeyBlock {
				sink.SetBlockedKeys(p.Keys)
			} else {
				sink.SetPassedKeys(p.Keys)
			}
		}

	case protocol.TypeMenuKey:
		var p protocol.MenuKeyPayload
		if err = msg.Decode(&p); err == nil && sink != nil {
			sink.SetMenuKey(p.Key)
		}

	case protocol.TypeHotkeyInfo:
		var p protocol.HotkeyInfoPayload
		if err = msg.Decode(&p); err == nil && sink != nil {
			list := make([]hotkey.Hotkey, 0, len(p.Hotkeys))
			for _, h := range p.Hotkeys {
				list = append(list, hotkey.Hotkey{Name: h.Name, Combo: h.Combo, Passthrough: h.Passthrough})
			}
			err = sink.SetHotkeys(list)
		}

	case protocol.TypeMouseSettings:
		var p protocol.MouseSettingsPayload
		if err = msg.Decode(&p); err == nil {
			c.SetMouseSettings(p)
		}

	case protocol.TypeOverlayState:
		var p protocol.OverlayStatePayload
		if err = msg.Decode(&p); err == nil {
			c.stateMu.Lock()
			c.windows = p.Windows
			c.stateMu.Unlock()
			c.focusID.Store(p.FocusID)
		}

	case protocol.TypeCursor:
		var p protocol.CursorPayload
		if err = msg.Decode(&p); err == nil {
			c.stateMu.Lock()
			c.cursor = p.Name
			c.stateMu.Unlock()
		}

	default:
		log.Debug("unhandled message")
		return
	}

	if err != nil {
		log.Warn("command failed", zap.Error(err))
		return
	}
	log.Debug("command applied")
}

// SetMouseSettings replaces the mouse options. A non-positive speed means 1.
func (c *Client) SetMouseSettings(p protocol.MouseSettingsPayload) {
	speed := p.MovingSpeed
	if speed <= 0 {
		speed = 1
	}
	c.speedBits.Store(math.Float32bits(speed))
	c.invertY.Store(p.YAxisInvert)
	c.swap.Store(p.SwapButtons)
	c.numpad5.Store(p.Numpad5Primary)
	c.numpadPlus.Store(p.NumpadPlusSecondary)
}

func (c *Client) MovingSpeed() float32      { return math.Float32frombits(c.speedBits.Load()) }
func (c *Client) YAxisInvert() bool         { return c.invertY.Load() }
func (c *Client) SwapMouseButtons() bool    { return c.swap.Load() }
func (c *Client) Numpad5Primary() bool      { return c.numpad5.Load() }
func (c *Client) NumpadPlusSecondary() bool { return c.numpadPlus.Load() }

func encodeMessage(t protocol.MessageType, payload any) ([]byte, error) {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// enqueue never blocks: offline or overflowing messages are dropped.
func (c *Client) enqueue(kind frameKind, data []byte) {
	if !c.connected.Load() {
		c.dropped.Add(1)
		return
	}
	select {
	case c.send <- outbound{kind: kind, data: data}:
	default:
		c.dropped.Add(1)
		c.logger.Debug("send queue full, message dropped")
	}
}

func (c *Client) notify(t protocol.MessageType, payload any) {
	raw, err := encodeMessage(t, payload)
	if err != nil {
		c.logger.Error("marshal notification", zap.String("type", string(t)), zap.Error(err))
		return
	}
	c.enqueue(kindText, raw)
}

func (c *Client) sendFrame(typ uint8, msg uint32, wParam, lParam uintptr) {
	c.enqueue(kindBinary, protocol.EncodeFrame(&protocol.Frame{
		Type:      typ,
		Seq:       c.seq.Add(1),
		Timestamp: time.Now().UnixNano(),
		Msg:       msg,
		WParam:    uint64(wParam),
		LParam:    int64(lParam),
	}))
}
