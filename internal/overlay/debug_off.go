//go:build !overlaydebug

package overlay

const debugToggleKey = 0
