package config

import "sync/atomic"

// Shared holds the live configuration. Request handlers call Load on every
// request, so a reload takes effect without restarting the server.
// Listen address, database, storage, MCP and metrics mounts are read once
// at startup.
type Shared struct {
	current atomic.Pointer[Config]
}

func NewShared(cfg *Config) *Shared {
	s := &Shared{}
	s.current.Store(cfg)
	return s
}

// Load returns the current configuration. Callers must not modify it.
func (s *Shared) Load() *Config {
	return s.current.Load()
}

// Store replaces the current configuration.
func (s *Shared) Store(cfg *Config) {
	s.current.Store(cfg)
}
