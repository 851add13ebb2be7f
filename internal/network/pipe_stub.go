//go:build !windows

package network

import "errors"

func dialPipe(string) (link, error) {
	return nil, errors.New("network: named pipes require windows")
}
