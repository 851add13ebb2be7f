// Package winapi holds the Win32 message, key and hook constants shared by
// the interception layer, plus the concrete user32/imm32 bindings on Windows.
package winapi

// Window messages
const (
	WM_NULL        = 0x0000
	WM_DESTROY     = 0x0002
	WM_SIZE        = 0x0005
	WM_SETFOCUS    = 0x0007
	WM_KILLFOCUS   = 0x0008
	WM_CLOSE       = 0x0010
	WM_QUIT        = 0x0012
	WM_SETCURSOR   = 0x0020
	WM_NCHITTEST   = 0x0084
	WM_INPUT       = 0x00FF
	WM_KEYFIRST    = 0x0100
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_CHAR        = 0x0102
	WM_DEADCHAR    = 0x0103
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105
	WM_SYSCHAR     = 0x0106
	WM_SYSDEADCHAR = 0x0107
	WM_KEYLAST     = 0x0109
	WM_MOUSEFIRST  = 0x0200
	WM_MOUSEMOVE   = 0x0200
	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208
	WM_MOUSEWHEEL  = 0x020A
	WM_MOUSEHWHEEL = 0x020E
	WM_MOUSELAST   = 0x020E
	WM_USER        = 0x0400
)

// Hit-test results
const (
	HTNOWHERE = 0
	HTCLIENT  = 1
)

// Virtual keys used by the interception layer
const (
	VK_LBUTTON  = 0x01
	VK_RBUTTON  = 0x02
	VK_MBUTTON  = 0x04
	VK_BACK     = 0x08
	VK_TAB      = 0x09
	VK_RETURN   = 0x0D
	VK_SHIFT    = 0x10
	VK_CONTROL  = 0x11
	VK_MENU     = 0x12
	VK_PAUSE    = 0x13
	VK_CAPITAL  = 0x14
	VK_ESCAPE   = 0x1B
	VK_SPACE    = 0x20
	VK_PRIOR    = 0x21
	VK_NEXT     = 0x22
	VK_END      = 0x23
	VK_HOME     = 0x24
	VK_LEFT     = 0x25
	VK_UP       = 0x26
	VK_RIGHT    = 0x27
	VK_DOWN     = 0x28
	VK_INSERT   = 0x2D
	VK_DELETE   = 0x2E
	VK_LWIN     = 0x5B
	VK_RWIN     = 0x5C
	VK_NUMPAD0  = 0x60
	VK_NUMPAD5  = 0x65
	VK_NUMPAD9  = 0x69
	VK_MULTIPLY = 0x6A
	VK_ADD      = 0x6B
	VK_SUBTRACT = 0x6D
	VK_DECIMAL  = 0x6E
	VK_DIVIDE   = 0x6F
	VK_F1       = 0x70
	VK_F12      = 0x7B
	VK_LSHIFT   = 0xA0
	VK_RSHIFT   = 0xA1
	VK_LCONTROL = 0xA2
	VK_RCONTROL = 0xA3
	VK_LMENU    = 0xA4
	VK_RMENU    = 0xA5
)

// Mouse key-state flags carried in wParam of button messages
const (
	MK_LBUTTON = 0x0001
	MK_RBUTTON = 0x0002
	MK_MBUTTON = 0x0010
)

// Hook ids and codes
const (
	WH_CALLWNDPROC    = 4
	WH_GETMESSAGE     = 3
	WH_CALLWNDPROCRET = 12
	WH_KEYBOARD_LL    = 13
	WH_MOUSE_LL       = 14
	HC_ACTION         = 0
	PM_NOREMOVE       = 0
	PM_REMOVE         = 1
)

// InjectTag is the dwExtraInfo carried by input this process synthesizes.
// Hooks and window procedures pass tagged input through untouched.
const InjectTag uintptr = 0x4F564C59

// Raw input
const (
	RIM_TYPEMOUSE    = 0
	RIM_TYPEKEYBOARD = 1
	RID_INPUT        = 0x10000003
	RID_HEADER       = 0x10000005
)

// Point is a POINT in screen or client coordinates.
type Point struct {
	X, Y int32
}

// Rect is a RECT.
type Rect struct {
	Left, Top, Right, Bottom int32
}

func (r Rect) Width() int32  { return r.Right - r.Left }
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Contains reports whether p lies inside r, right and bottom edges excluded.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// MakeLParam packs two 16-bit coordinates the way MAKELPARAM does.
func MakeLParam(x, y int32) uintptr {
	return uintptr(uint32(uint16(x)) | uint32(uint16(y))<<16)
}

// PointFromLParam unpacks signed coordinates (GET_X_LPARAM / GET_Y_LPARAM).
func PointFromLParam(l uintptr) Point {
	return Point{X: int32(int16(uint16(l))), Y: int32(int16(uint16(l >> 16)))}
}

// LoWord returns the low-order word of v.
func LoWord(v uintptr) uint16 { return uint16(v) }

// IsKeyMessage reports key down/up messages, including the system-key variants.
func IsKeyMessage(msg uint32) bool {
	switch msg {
	case WM_KEYDOWN, WM_KEYUP, WM_SYSKEYDOWN, WM_SYSKEYUP:
		return true
	}
	return false
}

// IsKeyUp reports WM_KEYUP and WM_SYSKEYUP.
func IsKeyUp(msg uint32) bool {
	return msg == WM_KEYUP || msg == WM_SYSKEYUP
}

// IsKeyboardMessage covers the whole WM_KEYFIRST..WM_KEYLAST range.
func IsKeyboardMessage(msg uint32) bool {
	return msg >= WM_KEYFIRST && msg <= WM_KEYLAST
}

// IsMouseMessage covers the WM_MOUSEFIRST..WM_MOUSELAST range.
func IsMouseMessage(msg uint32) bool {
	return msg >= WM_MOUSEFIRST && msg <= WM_MOUSELAST
}

// System cursor resource ids, keyed by the names the overlay sends.
var systemCursors = map[string]uint16{
	"arrow":       32512,
	"ibeam":       32513,
	"wait":        32514,
	"cross":       32515,
	"sizenwse":    32642,
	"sizenesw":    32643,
	"sizewe":      32644,
	"sizens":      32645,
	"sizeall":     32646,
	"no":          32648,
	"hand":        32649,
	"appstarting": 32650,
	"help":        32651,
}

// CursorID returns the IDC_* id of a named system cursor.
func CursorID(name string) (uint16, bool) {
	id, ok := systemCursors[name]
	return id, ok
}
