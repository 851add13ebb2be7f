package lltap

import "go.uber.org/zap"

// guard runs a tap decision and lets the event through if it panics.
func (t *Taps) guard(decide func() bool) (consume bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tap panicked", zap.Any("panic", r))
			consume = false
		}
	}()
	return decide()
}
