package winapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLParamPacking(t *testing.T) {
	l := MakeLParam(-5, 300)
	assert.Equal(t, Point{X: -5, Y: 300}, PointFromLParam(l))
}

func TestMessageClasses(t *testing.T) {
	assert.True(t, IsKeyMessage(WM_SYSKEYDOWN))
	assert.False(t, IsKeyMessage(WM_CHAR))
	assert.True(t, IsKeyboardMessage(WM_CHAR))
	assert.True(t, IsKeyUp(WM_SYSKEYUP))
	assert.True(t, IsMouseMessage(WM_MOUSEWHEEL))
	assert.False(t, IsMouseMessage(WM_INPUT))
}

func TestCursorID(t *testing.T) {
	id, ok := CursorID("ibeam")
	assert.True(t, ok)
	assert.Equal(t, uint16(32513), id)

	_, ok = CursorID("sparkles")
	assert.False(t, ok)
}
