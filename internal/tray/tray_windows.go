//go:build windows

package tray

import "github.com/getlantern/systray"

const iconColor = 0xFF2E7D32

type menuItem struct{ *systray.MenuItem }

func (m menuItem) setChecked(on bool) {
	if on {
		m.Check()
	} else {
		m.Uncheck()
	}
}

// Run shows the tray and blocks until Stop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.exited)
}

func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(icon(iconColor))

	t.mu.Lock()
	items := append([]*Item(nil), t.items...)
	t.mu.Unlock()

	for id, it := range items {
		if it == nil {
			systray.AddSeparator()
			continue
		}
		mi := systray.AddMenuItem(it.Title, it.Tooltip)
		if it.Checkable {
			item := menuItem{mi}
			t.mu.Lock()
			t.native[id] = item
			checked := t.checked[id]
			t.mu.Unlock()
			item.setChecked(checked)
		}
		go t.listen(id, mi)
	}
	close(t.ready)
}

func (t *Tray) listen(id int, mi *systray.MenuItem) {
	for {
		select {
		case <-mi.ClickedCh:
			t.click(id)
		case <-t.quit:
			return
		}
	}
}
