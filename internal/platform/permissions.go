package platform

import (
	"golang.org/x/sys/unix"

	"github.com/shaunagostinho/locationhelper/internal/location"
)

// Permissions answers permission checks from the device settings. Fine
// location additionally needs read access to the receiver's device node.
type Permissions struct {
	store      *SettingsStore
	devicePath string // Empty for receivers without a device node
}

// NewPermissions creates a permission checker. devicePath may be empty.
func NewPermissions(store *SettingsStore, devicePath string) *Permissions {
	return &Permissions{store: store, devicePath: devicePath}
}

func (p *Permissions) CheckGranted(perm location.Permission) bool {
	if !p.store.Get().IsGranted(perm) {
		return false
	}
	if perm == location.PermissionFineLocation && p.devicePath != "" {
		return unix.Access(p.devicePath, unix.R_OK) == nil
	}
	return true
}

// Grant adds perm to the granted list.
func (p *Permissions) Grant(perm location.Permission) error {
	_, err := p.store.Update(func(d *DeviceSettings) {
		if !d.IsGranted(perm) {
			d.Granted = append(d.Granted, perm)
		}
	})
	return err
}

// Revoke removes perm from the granted list.
func (p *Permissions) Revoke(perm location.Permission) error {
	_, err := p.store.Update(func(d *DeviceSettings) {
		kept := d.Granted[:0]
		for _, g := range d.Granted {
			if g != perm {
				kept = append(kept, g)
			}
		}
		d.Granted = kept
	})
	return err
}
