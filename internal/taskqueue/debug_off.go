//go:build !overlaydebug

package taskqueue

const debugBuild = false
