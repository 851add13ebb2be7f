//go:build !windows

package apihook

// IATPatcher is unavailable off Windows; every operation reports ErrUnsupported.
type IATPatcher struct {
	Library string
}

func NewIATPatcher(library string) *IATPatcher {
	return &IATPatcher{Library: library}
}

func CallOriginal(fn uintptr, args ...uintptr) uintptr {
	return 0
}

func (p *IATPatcher) Resolve(name string) (uintptr, error) {
	return 0, ErrUnsupported
}

func (p *IATPatcher) Patch(name string, original, replacement uintptr) (Patch, error) {
	return nil, ErrUnsupported
}

// DetourPatcher is unavailable off Windows.
type DetourPatcher struct {
	*IATPatcher
}

func NewDetourPatcher(library string) *DetourPatcher {
	return &DetourPatcher{IATPatcher: NewIATPatcher(library)}
}
