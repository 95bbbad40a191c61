package runtime

import (
	"context"
	"net"
)

const fallbackIP = "127.0.0.1"

// Native runs commands directly on the host.
type Native struct {
	vols volumes
}

// NewNative returns the null runtime.
func NewNative() *Native { return &Native{} }

// AddVolume records the path; the host sees every path already.
func (n *Native) AddVolume(path string) { n.vols.add(path) }

// Start does nothing.
func (n *Native) Start(context.Context) error { return nil }

// Command returns args unchanged.
func (n *Native) Command(args []string, _ bool) []string { return args }

// IPAddress returns the address of the interface holding the default route.
// UDP connect sends no packets; it only selects a source address.
func (n *Native) IPAddress(ctx context.Context) string {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", "10.254.254.254:1")
	if err != nil {
		return fallbackIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return fallbackIP
	}
	return addr.IP.String()
}

// Close does nothing.
func (n *Native) Close(context.Context) error { return nil }
