// Package logging wires zap for the whole module. Component loggers handed
// out before Init keep working and pick up the configured core once Init runs,
// which matters because hooks are installed before the config is read.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared across components.
const (
	KeyComponent = "component"
	KeyWindow    = "hwnd"
	KeyMessage   = "msg"
	KeyKey       = "vk"
	KeyBinding   = "binding"
)

// switchableCore forwards to whichever core Init installed last.
type switchableCore struct {
	current *atomic.Pointer[zapcore.Core]
	fields  []zapcore.Field
}

func (c *switchableCore) base() zapcore.Core {
	core := *c.current.Load()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c *switchableCore) Enabled(lvl zapcore.Level) bool {
	return (*c.current.Load()).Enabled(lvl)
}

func (c *switchableCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &switchableCore{current: c.current, fields: merged}
}

func (c *switchableCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *switchableCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.base().Write(ent, fields)
}

func (c *switchableCore) Sync() error {
	return (*c.current.Load()).Sync()
}

var (
	activeCore atomic.Pointer[zapcore.Core]
	rootCore   = &switchableCore{current: &activeCore}
	root       = zap.New(rootCore)
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	core := newCore("console", os.Stderr)
	activeCore.Store(&core)
}

// Init configures the global logger.
// format: "json" or "console" (default "console")
// lvl: "debug", "info", "warn", "error" (default "info")
// output: nil means stderr
func Init(lvl, format string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	level.SetLevel(parseLevel(lvl))
	core := newCore(format, output)
	activeCore.Store(&core)
}

// InitFile logs to a size-rotated file. The returned closer releases the file.
func InitFile(lvl, format, path string) (io.Closer, error) {
	w, err := NewRotatingWriter(path, 10, 3)
	if err != nil {
		return nil, err
	}
	Init(lvl, format, w)
	return w, nil
}

// SetLevel changes the level without touching the sink.
func SetLevel(lvl string) {
	level.SetLevel(parseLevel(lvl))
}

// L returns a logger tagged with the given component name.
func L(component string) *zap.Logger {
	return root.With(zap.String(KeyComponent, component))
}

// Sync flushes buffered entries.
func Sync() {
	_ = root.Sync()
}

func newCore(format string, output io.Writer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(output), level)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
