package viz

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType   = "_rxtap._tcp"
	ServiceDomain = "local."
)

// Advertise registers the status server over mDNS. The returned func
// withdraws the registration.
func Advertise(instance string, port int, text []string) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("registering %s on port %d: %w", ServiceType, port, err)
	}
	return server.Shutdown, nil
}
