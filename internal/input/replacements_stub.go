//go:build !windows

package input

func replacements() map[string]uintptr {
	return nil
}
