//go:build windows

package network

import (
	"fmt"
	"time"

	"github.com/Microsoft/go-winio"
)

const pipeDialTimeout = 3 * time.Second

func dialPipe(name string) (link, error) {
	timeout := pipeDialTimeout
	conn, err := winio.DialPipe(name, &timeout)
	if err != nil {
		return nil, fmt.Errorf("dial pipe %s: %w", name, err)
	}
	return newStreamLink(conn), nil
}
