// Package dnssd is the Bonjour/DNS-SD publication interface (spec §6):
// advertising the accessory's `_hap._tcp` service and keeping its TXT
// records current as the accessory's config/state numbers change.
package dnssd

// TXTRecords are the `_hap._tcp` TXT record fields (spec §6): md (model),
// pv (protocol version, "1.1"), id (device ID), c# (config number), s#
// (state number, always "1" on IP), ff (feature flags), ci (category), sf
// (status flags), and the optional sh (base64 setup hash).
type TXTRecords struct {
	Model           string
	ProtocolVersion string
	DeviceID        string
	ConfigNumber    int
	StateNumber     int
	FeatureFlags    int
	Category        int
	StatusFlags     int
	SetupHash       string
}

// Publisher is the narrow interface the accessory server depends on to
// announce and keep current its Bonjour/DNS-SD service record.
type Publisher interface {
	Publish(port int, txt TXTRecords) error
	UpdateTXT(txt TXTRecords) error
	Unpublish() error
}

// NoopPublisher discards every call; useful where a test or a BLE-only
// accessory has no IP transport to advertise.
type NoopPublisher struct{}

func (NoopPublisher) Publish(port int, txt TXTRecords) error { return nil }
func (NoopPublisher) UpdateTXT(txt TXTRecords) error         { return nil }
func (NoopPublisher) Unpublish() error                       { return nil }

var _ Publisher = NoopPublisher{}
