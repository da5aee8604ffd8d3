package bus

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// Role tags what kind of entity a registered path stands for.
type Role uint8

const (
	// RoleRoot marks the fallback device root; no device is bound to it.
	RoleRoot Role = iota
	// RoleDevice marks a concrete device path.
	RoleDevice
	// RoleManager marks the manager path.
	RoleManager
)

// DeviceContext is the per-path state attached at registration time.
// ScanEnable caches the last known page/inquiry scan bitmask so mode
// queries need no hardware round trip.
type DeviceContext struct {
	DeviceID   int
	Role       Role
	ScanEnable uint8
}

type regEntry struct {
	ctx   *DeviceContext
	table *ServiceTable
}

// Registry associates object paths with device contexts and their service
// tables. Exact registrations shadow fallback (prefix) registrations.
// A path is registered iff its context exists here; all access happens on
// the adapter's event loop.
type Registry struct {
	exact    map[dbus.ObjectPath]*regEntry
	fallback map[dbus.ObjectPath]*regEntry
}

func NewRegistry() *Registry {
	return &Registry{
		exact:    make(map[dbus.ObjectPath]*regEntry),
		fallback: make(map[dbus.ObjectPath]*regEntry),
	}
}

// Register binds path to a fresh context. With fallback set the entry
// answers for any not-yet-registered descendant of path as well.
func (r *Registry) Register(path dbus.ObjectPath, role Role, devID int, table *ServiceTable, fallback bool) error {
	if !path.IsValid() {
		return errors.Errorf("invalid object path %q", path)
	}

	m := r.exact
	if fallback {
		m = r.fallback
	}
	if _, dup := m[path]; dup {
		return errors.Errorf("path %q already registered", path)
	}

	m[path] = &regEntry{
		ctx:   &DeviceContext{DeviceID: devID, Role: role},
		table: table,
	}
	return nil
}

// Unregister removes path. The context is released unconditionally; a
// missing path is still reported as an error.
func (r *Registry) Unregister(path dbus.ObjectPath) error {
	if e, ok := r.exact[path]; ok {
		e.ctx = nil
		delete(r.exact, path)
		return nil
	}
	if e, ok := r.fallback[path]; ok {
		e.ctx = nil
		delete(r.fallback, path)
		return nil
	}
	return errors.Errorf("path %q not registered", path)
}

// Lookup resolves path to its context and table: exact match first, then
// the longest fallback prefix.
func (r *Registry) Lookup(path dbus.ObjectPath) (*DeviceContext, *ServiceTable, bool) {
	if e, ok := r.exact[path]; ok {
		return e.ctx, e.table, true
	}

	var best dbus.ObjectPath
	var bestEntry *regEntry
	for p, e := range r.fallback {
		if p != path && !strings.HasPrefix(string(path), string(p)+"/") {
			continue
		}
		if len(p) > len(best) {
			best, bestEntry = p, e
		}
	}
	if bestEntry == nil {
		return nil, nil, false
	}
	return bestEntry.ctx, bestEntry.table, true
}

// DevicePaths lists every exact-registered path whose role is RoleDevice.
func (r *Registry) DevicePaths() []dbus.ObjectPath {
	var out []dbus.ObjectPath
	for p, e := range r.exact {
		if e.ctx.Role == RoleDevice {
			out = append(out, p)
		}
	}
	return out
}

// Clear drops every registration; used on connection teardown.
func (r *Registry) Clear() {
	r.exact = make(map[dbus.ObjectPath]*regEntry)
	r.fallback = make(map[dbus.ObjectPath]*regEntry)
}
