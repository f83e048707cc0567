// Package discovery advertises this source adapter's admin surface on
// the local network via mDNS, so a companion UI can find it without a
// fixed address.
package discovery

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/mdns"
)

// Server wraps an mDNS responder advertising this adapter instance.
type Server struct {
	server *mdns.Server
}

// Start begins advertising the adapter's admin HTTP surface on the local
// network via mDNS. The service is registered as "_localtagfs._tcp" with
// TXT records naming the two library services it fronts.
func Start(port int, instanceName string) (*Server, error) {
	if instanceName == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "localtagfs-source"
		}
		instanceName = h
	}

	service, err := mdns.NewMDNSService(
		instanceName,
		"_localtagfs._tcp",
		"",
		"",
		port,
		nil,
		[]string{"services=music,videos", "version=0.1.0"},
	)
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	slog.Info("mdns advertising", "name", instanceName, "service", "_localtagfs._tcp", "port", port)
	return &Server{server: server}, nil
}

// Shutdown stops the mDNS responder.
func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
		slog.Info("mdns stopped")
	}
}
