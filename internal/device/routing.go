package device

import "github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"

// Route describes how one endpoint is reached.
type Route struct {
	// Transport selects the carrier: config.TransportStream or
	// config.TransportBroker. Endpoints without a route default to the
	// stream.
	Transport string

	// LocalAddress is the controller's LAN address for the fast path.
	// Empty disables the fast path for this endpoint.
	LocalAddress string
}

// transportFor resolves the transport carrying an endpoint.
func (m *Manager) transportFor(endpoint string) Transport {
	m.routeMu.RLock()
	route, ok := m.routes[endpoint]
	m.routeMu.RUnlock()

	if ok && route.Transport == config.TransportBroker {
		return m.broker
	}
	return m.stream
}

// localAddress returns the endpoint's LAN address, or "" when the fast
// path does not apply.
func (m *Manager) localAddress(endpoint string) string {
	m.routeMu.RLock()
	defer m.routeMu.RUnlock()
	return m.routes[endpoint].LocalAddress
}

// SetRoute records how an endpoint is reached. Safe to call at any
// time; commands in flight keep the transport they resolved.
func (m *Manager) SetRoute(endpoint string, route Route) {
	m.routeMu.Lock()
	m.routes[endpoint] = route
	m.routeMu.Unlock()
}
