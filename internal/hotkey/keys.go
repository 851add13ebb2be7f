package hotkey

import (
	"fmt"
	"strconv"
	"strings"
)

// vkCodeToName names a virtual key the way combos are written, e.g. "CTRL", "F5".
func vkCodeToName(vk uint32) string {
	switch vk {
	case 0x11, 0xA2, 0xA3:
		return "CTRL"
	case 0x12, 0xA4, 0xA5:
		return "ALT"
	case 0x10, 0xA0, 0xA1:
		return "SHIFT"
	case 0x5B, 0x5C:
		return "WIN"
	case 0x01:
		return "MOUSE1"
	case 0x02:
		return "MOUSE3"
	case 0x04:
		return "MOUSE2"
	case 0x05:
		return "MOUSE4"
	case 0x06:
		return "MOUSE5"
	case 0x20:
		return "SPACE"
	case 0x0D:
		return "ENTER"
	case 0x1B:
		return "ESC"
	case 0x08:
		return "BACKSPACE"
	case 0x09:
		return "TAB"
	case 0x14:
		return "CAPSLOCK"
	case 0x21:
		return "PAGEUP"
	case 0x22:
		return "PAGEDOWN"
	case 0x23:
		return "END"
	case 0x24:
		return "HOME"
	case 0x25:
		return "LEFT"
	case 0x26:
		return "UP"
	case 0x27:
		return "RIGHT"
	case 0x28:
		return "DOWN"
	case 0x2C:
		return "PRINTSCREEN"
	case 0x2D:
		return "INSERT"
	case 0x2E:
		return "DELETE"
	case 0x13:
		return "PAUSE"
	case 0x91:
		return "SCROLLLOCK"
	case 0x6A:
		return "NUMPAD*"
	case 0x6B:
		return "NUMPAD+"
	case 0x6D:
		return "NUMPAD-"
	case 0x6E:
		return "NUMPAD."
	case 0x6F:
		return "NUMPAD/"
	case 0xC0:
		return "`"
	}

	if vk >= 0x41 && vk <= 0x5A {
		return string(rune(vk))
	}
	if vk >= 0x30 && vk <= 0x39 {
		return string(rune(vk))
	}
	if vk >= 0x60 && vk <= 0x69 {
		return fmt.Sprintf("NUMPAD%d", vk-0x60)
	}
	if vk >= 0x70 && vk <= 0x87 {
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	return ""
}

// KeyName is the exported form of vkCodeToName, falling back to hex.
func KeyName(vk uint32) string {
	if name := vkCodeToName(vk); name != "" {
		return name
	}
	return fmt.Sprintf("0x%02X", vk)
}

var aliases = map[string]string{
	"CONTROL": "CTRL",
	"MENU":    "ALT",
	"META":    "WIN",
	"CMD":     "WIN",
	"RETURN":  "ENTER",
	"ESCAPE":  "ESC",
	"DEL":     "DELETE",
	"INS":     "INSERT",
	"PGUP":    "PAGEUP",
	"PGDN":    "PAGEDOWN",
}

// nameToVKs is the inverse of vkCodeToName. Modifiers map to the generic
// code first, which GetAsyncKeyState reports for either side.
var nameToVKs = func() map[string][]uint32 {
	m := make(map[string][]uint32)
	for vk := uint32(1); vk < 0xFF; vk++ {
		if name := vkCodeToName(vk); name != "" {
			m[name] = append(m[name], vk)
		}
	}
	return m
}()

// ParseKey turns a key name (or a numeric code such as "0x24") into the
// virtual keys that satisfy it.
func ParseKey(name string) ([]uint32, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if vks, ok := nameToVKs[key]; ok {
		return vks, nil
	}
	if n, err := strconv.ParseUint(key, 0, 8); err == nil && n > 0 {
		return []uint32{uint32(n)}, nil
	}
	return nil, fmt.Errorf("unknown key %q", name)
}

// ParseCombo splits "Ctrl+Shift+F1" into its keys. "NUMPAD+" survives as a
// single key because an empty part after a '+' is folded back into it.
func ParseCombo(combo string) ([][]uint32, error) {
	raw := strings.Split(strings.TrimSpace(combo), "+")
	var parts []string
	for i := 0; i < len(raw); i++ {
		p := strings.TrimSpace(raw[i])
		if p == "" && len(parts) > 0 && i == len(raw)-1 {
			parts[len(parts)-1] += "+"
			continue
		}
		if p == "" {
			return nil, fmt.Errorf("malformed combo %q", combo)
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty combo")
	}

	keys := make([][]uint32, 0, len(parts))
	for _, p := range parts {
		vks, err := ParseKey(p)
		if err != nil {
			return nil, fmt.Errorf("combo %q: %w", combo, err)
		}
		keys = append(keys, vks)
	}
	return keys, nil
}
