package ipc

import (
	"context"
	"net"
	"os"
	"runtime"
)

// EndpointNetwork picks the net.Listen/net.Dial network for a local
// control/helper endpoint. Every non-Windows OS binds a literal unix
// socket path, matching DefaultSocketPath. Windows named-pipe transport
// would need github.com/Microsoft/go-winio, dropped per DESIGN.md, so
// Windows instead binds loopback TCP; callers configure a "host:port"
// string for HelperSocketPath/ControlSocketPath on that platform.
func EndpointNetwork() string {
	if runtime.GOOS == "windows" {
		return "tcp"
	}
	return "unix"
}

// ListenEndpoint opens a listener at endpoint. On unix-domain-socket
// platforms it first removes a stale socket file left behind by a
// killed process, the same cleanup the teacher's socket setup does
// before binding.
func ListenEndpoint(endpoint string) (net.Listener, error) {
	network := EndpointNetwork()
	if network == "unix" {
		os.Remove(endpoint)
	}
	return net.Listen(network, endpoint)
}

// DialEndpoint connects to endpoint using the platform-appropriate
// network.
func DialEndpoint(ctx context.Context, endpoint string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, EndpointNetwork(), endpoint)
}
