//go:build !unix

package util

import (
	"fmt"
	"net"
)

// NewListenerFromFD is only supported on unix systems.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	return nil, fmt.Errorf("inherited listener FD %d: socket activation is not supported on this platform", fd)
}

func closeFD(uintptr) {}
