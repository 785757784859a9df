package app

import (
	"sync"
)

// DeviceRegistry indexes the simulated devices by serial number.
type DeviceRegistry struct {
	mu    sync.RWMutex
	order []string
	store map[string]*Thermostat
}

func NewDeviceRegistery() *DeviceRegistry {
	return &DeviceRegistry{store: make(map[string]*Thermostat)}
}

// Store keeps the first device registered under a serial number.
func (r *DeviceRegistry) Store(t *Thermostat) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sn := t.Device().SerialNumber()
	if _, exists := r.store[sn]; exists {
		return false
	}
	r.store[sn] = t
	r.order = append(r.order, sn)
	return true
}

func (r *DeviceRegistry) Get(sn string) (*Thermostat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.store[sn]
	return val, ok
}

// List returns devices in registration order.
func (r *DeviceRegistry) List() []*Thermostat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Thermostat, 0, len(r.order))
	for _, sn := range r.order {
		out = append(out, r.store[sn])
	}
	return out
}
