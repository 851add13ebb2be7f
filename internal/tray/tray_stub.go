//go:build !windows

package tray

// Run marks the tray ready and blocks until Stop; there is no
// notification area to draw in.
func (t *Tray) Run() {
	close(t.ready)
	<-t.quit
}

func (t *Tray) Stop() {
	t.exited()
}
