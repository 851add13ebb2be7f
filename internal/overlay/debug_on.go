//go:build overlaydebug

package overlay

import "overlayhook/internal/winapi"

const debugToggleKey = winapi.VK_F1
