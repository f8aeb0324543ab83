// Package discovery announces the controller on the local network via mDNS.
package discovery

import (
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const serviceType = "_http._tcp"

// Service is an mDNS registration for the controller's HTTP API.
type Service struct {
	log      *zap.Logger
	instance string
	port     int
	server   *zeroconf.Server
}

// New prepares an mDNS service announcement. Call Register to publish it.
func New(log *zap.Logger, instance string, port int) *Service {
	return &Service{
		log:      log,
		instance: instance,
		port:     port,
	}
}

// Register publishes the service on all multicast-capable interfaces.
func (s *Service) Register() error {
	server, err := zeroconf.Register(
		s.instance,
		serviceType,
		"local.",
		s.port,
		[]string{"device=gardener", "api=v1"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("mDNS registration failed: %w", err)
	}
	s.server = server

	s.log.Info("mDNS service registered",
		zap.String("instance", s.instance),
		zap.String("type", serviceType),
		zap.Int("port", s.port),
	)
	return nil
}

// Shutdown withdraws the announcement. Safe to call without Register.
func (s *Service) Shutdown() {
	if s.server == nil {
		return
	}
	s.server.Shutdown()
	s.server = nil
	s.log.Info("mDNS service withdrawn")
}

// ListenPort extracts the port from an HTTP listen address like ":8080"
// or "0.0.0.0:8080". Returns 0 when the address has no usable port.
func ListenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return 0
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0
	}
	if port < 1 || port > 65535 {
		return 0
	}
	return port
}
