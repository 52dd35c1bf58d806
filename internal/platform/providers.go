package platform

import "github.com/shaunagostinho/locationhelper/internal/location"

// Providers reports provider switches from the device settings.
type Providers struct {
	store       *SettingsStore
	hasReceiver bool
}

// NewProviders creates a provider checker. hasReceiver is false when no GNSS
// receiver is configured at all.
func NewProviders(store *SettingsStore, hasReceiver bool) *Providers {
	return &Providers{store: store, hasReceiver: hasReceiver}
}

func (p *Providers) IsProviderEnabled(provider string) bool {
	switch provider {
	case location.ProviderGPS:
		return p.hasReceiver && p.store.Get().GPSEnabled
	case location.ProviderPassive:
		return true
	default:
		return false
	}
}
