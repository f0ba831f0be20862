// Package capability answers whether a BlueZ adapter is multi-role
// capable (able to scan and advertise concurrently), by reading
// org.bluez.Adapter1.Roles once at startup, falling back to a static
// whitelist when BlueZ's D-Bus API is unreachable (spec.md §5, §9).
package capability

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezDest     = "org.bluez"
	bluezRoot     = "/"
	adapterPrefix = "/org/bluez/"
)

// staticMultiRoleWhitelist lists controller names known to support
// central+peripheral concurrency even when the D-Bus Roles property is
// unavailable (older BlueZ releases did not expose it).
var staticMultiRoleWhitelist = map[string]bool{
	"hci0": true,
}

// Prober reads adapter capability from a live BlueZ session bus
// connection.
type Prober struct {
	conn *dbus.Conn
}

// NewProber opens a connection to the system bus. Callers must call
// Close when done.
func NewProber() (*Prober, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("capability: connect system bus: %w", err)
	}
	return &Prober{conn: conn}, nil
}

// Close releases the underlying D-Bus connection.
func (p *Prober) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// IsMultiRoleCapable reports whether the named adapter (e.g. "hci0")
// supports both the "central" and "peripheral" roles concurrently, per
// org.bluez.Adapter1.Roles. Falls back to staticMultiRoleWhitelist on
// any D-Bus error.
func (p *Prober) IsMultiRoleCapable(name string) bool {
	roles, err := p.roles(name)
	if err != nil {
		return staticMultiRoleWhitelist[name]
	}
	hasCentral, hasPeripheral := false, false
	for _, r := range roles {
		switch r {
		case "central":
			hasCentral = true
		case "peripheral":
			hasPeripheral = true
		}
	}
	return hasCentral && hasPeripheral
}

func (p *Prober) roles(name string) ([]string, error) {
	path := dbus.ObjectPath(adapterPrefix + name)
	var variant dbus.Variant
	err := p.conn.Object(bluezDest, path).
		Call("org.freedesktop.DBus.Properties.Get", 0, "org.bluez.Adapter1", "Roles").
		Store(&variant)
	if err != nil {
		return nil, fmt.Errorf("capability: Adapter1.Roles for %s: %w", name, err)
	}
	roles, ok := variant.Value().([]string)
	if !ok {
		return nil, fmt.Errorf("capability: unexpected Roles value type for %s", name)
	}
	return roles, nil
}

// DiscoverAdapterNames enumerates the BlueZ adapter object names (e.g.
// "hci0", "hci1") currently managed by bluetoothd.
func (p *Prober) DiscoverAdapterNames() ([]string, error) {
	var out map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := p.conn.Object(bluezDest, dbus.ObjectPath(bluezRoot))
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&out); err != nil {
		return nil, fmt.Errorf("capability: GetManagedObjects: %w", err)
	}
	var names []string
	for path := range out {
		s := string(path)
		if strings.HasPrefix(s, adapterPrefix) && strings.Count(s, "/") == 2 {
			names = append(names, strings.TrimPrefix(s, adapterPrefix))
		}
	}
	return names, nil
}
