// Package tray puts the probe harness in the notification area: a small
// menu whose items call back into the running session.
package tray

import (
	"encoding/binary"
	"sync"
)

// Item is one menu entry. A nil *Item in the menu is a separator.
type Item struct {
	Title     string
	Tooltip   string
	Checkable bool
	OnClick   func()
}

// Tray is built before Run; items cannot be added afterwards.
type Tray struct {
	title   string
	tooltip string

	mu      sync.Mutex
	items   []*Item
	checked map[int]bool
	native  map[int]nativeItem

	ready    chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		checked: make(map[int]bool),
		native:  make(map[int]nativeItem),
		ready:   make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// AddItem appends a clickable entry and returns its id.
func (t *Tray) AddItem(title, tooltip string, onClick func()) int {
	return t.add(&Item{Title: title, Tooltip: tooltip, OnClick: onClick})
}

// AddCheckbox appends an entry with a check mark.
func (t *Tray) AddCheckbox(title, tooltip string, checked bool, onClick func()) int {
	id := t.add(&Item{Title: title, Tooltip: tooltip, Checkable: true, OnClick: onClick})
	t.mu.Lock()
	t.checked[id] = checked
	t.mu.Unlock()
	return id
}

func (t *Tray) AddSeparator() {
	t.mu.Lock()
	t.items = append(t.items, nil)
	t.mu.Unlock()
}

func (t *Tray) add(it *Item) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, it)
	return len(t.items) - 1
}

// SetChecked updates a checkbox entry; other ids are ignored.
func (t *Tray) SetChecked(id int, checked bool) {
	t.mu.Lock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil || !t.items[id].Checkable {
		t.mu.Unlock()
		return
	}
	t.checked[id] = checked
	n := t.native[id]
	t.mu.Unlock()

	if n != nil {
		n.setChecked(checked)
	}
}

func (t *Tray) Checked(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checked[id]
}

// Ready is closed once the menu is shown.
func (t *Tray) Ready() <-chan struct{} { return t.ready }

// Done is closed when the tray has exited.
func (t *Tray) Done() <-chan struct{} { return t.quit }

// click runs the callback of item id.
func (t *Tray) click(id int) {
	t.mu.Lock()
	var fn func()
	if id >= 0 && id < len(t.items) && t.items[id] != nil {
		fn = t.items[id].OnClick
	}
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Tray) exited() {
	t.quitOnce.Do(func() { close(t.quit) })
}

// nativeItem is the platform menu entry behind an Item.
type nativeItem interface {
	setChecked(bool)
}

// icon builds a 16x16 32-bit ICO filled with one ARGB color.
func icon(argb uint32) []byte {
	const (
		size      = 16
		header    = 6 + 16
		dib       = 40
		pixels    = size * size * 4
		maskBytes = size * 4 // 1bpp rows padded to 32 bits
	)
	buf := make([]byte, header+dib+pixels+maskBytes)

	binary.LittleEndian.PutUint16(buf[2:], 1) // type: icon
	binary.LittleEndian.PutUint16(buf[4:], 1) // image count

	entry := buf[6:22]
	entry[0], entry[1] = size, size
	binary.LittleEndian.PutUint16(entry[4:], 1)  // planes
	binary.LittleEndian.PutUint16(entry[6:], 32) // bpp
	binary.LittleEndian.PutUint32(entry[8:], dib+pixels+maskBytes)
	binary.LittleEndian.PutUint32(entry[12:], header)

	bmp := buf[header:]
	binary.LittleEndian.PutUint32(bmp[0:], dib)
	binary.LittleEndian.PutUint32(bmp[4:], size)
	binary.LittleEndian.PutUint32(bmp[8:], size*2) // color and mask halves
	binary.LittleEndian.PutUint16(bmp[12:], 1)
	binary.LittleEndian.PutUint16(bmp[14:], 32)
	binary.LittleEndian.PutUint32(bmp[20:], pixels)

	px := bmp[dib : dib+pixels]
	for i := 0; i < len(px); i += 4 {
		binary.LittleEndian.PutUint32(px[i:], argb)
	}
	return buf
}
