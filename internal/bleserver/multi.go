package bleserver

import (
	"sync"

	"gymnasticon/internal/gatt"
)

// MultiBleServer fans a single calibrated measurement out to several
// adapters' Server instances. Start/Stop are partial-success: an
// individual adapter failing to start does not prevent the others
// from running, and all per-adapter errors are returned together.
type MultiBleServer struct {
	servers []*Server
}

// NewMulti wraps one Server per adapter.
func NewMulti(servers ...*Server) *MultiBleServer {
	return &MultiBleServer{servers: servers}
}

// Start starts every underlying server, collecting (not
// short-circuiting on) individual failures. Servers that fail to start
// are dropped from the set, so later notifications reach only the
// running ones.
func (m *MultiBleServer) Start() []error {
	var errs []error
	running := make([]*Server, 0, len(m.servers))
	for _, s := range m.servers {
		if err := s.Start(); err != nil {
			errs = append(errs, err)
			continue
		}
		running = append(running, s)
	}
	m.servers = running
	return errs
}

// Stop stops every underlying server in parallel, collecting (not
// short-circuiting on) individual failures, mirroring the
// Promise.allSettled shutdown semantics of C12.
func (m *MultiBleServer) Stop() []error {
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, s := range m.servers {
		wg.Add(1)
		go func(s *Server) {
			defer wg.Done()
			if err := s.Stop(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errs
}

// NotifyPower fans a power measurement out to every running server.
func (m *MultiBleServer) NotifyPower(powerW int16, crankRevs uint16, crankEventTime1024 uint16) {
	for _, s := range m.servers {
		_ = s.NotifyPower(powerW, crankRevs, crankEventTime1024)
	}
}

// NotifyCSC fans a CSC measurement out to every running server.
func (m *MultiBleServer) NotifyCSC(in gatt.CSCInput) {
	for _, s := range m.servers {
		_ = s.NotifyCSC(in)
	}
}

// NotifyHeartRate fans a heart-rate measurement out to every running
// server.
func (m *MultiBleServer) NotifyHeartRate(bpm uint8) {
	for _, s := range m.servers {
		_ = s.NotifyHeartRate(bpm)
	}
}

// EnsureCscCapabilities upgrades every running server's CSC Feature
// characteristic to wheel+crank, the first time wheel data becomes
// available (spec.md §4.7).
func (m *MultiBleServer) EnsureCscCapabilities() {
	for _, s := range m.servers {
		_ = s.EnsureCscCapabilities()
	}
}
