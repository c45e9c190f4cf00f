package netutil

import (
	"net"

	"github.com/mdlayher/vsock"
)

func (a *VSockAddr) Dial() (net.Conn, error) {
	return vsock.Dial(a.ContextID, a.Port, nil)
}
