package main

import (
	"github.com/sirupsen/logrus"

	"github.com/hkadk/hapcore/internal/hap/ble/advertiser"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hapconfig"
	"github.com/hkadk/hapcore/internal/platform/bleperiph"
	"github.com/hkadk/hapcore/internal/platform/dnssd"
)

// refreshParams carries everything refreshAdvertising needs to rebuild
// and re-broadcast the accessory's BLE/Bonjour presence, called both on
// State()-change and on every setup-code refresh tick (spec §5 "Dynamic
// setup code refresh").
type refreshParams struct {
	logger        *logrus.Logger
	cfg           *hapconfig.Config
	backing       store.Store
	setupMgr      *setupinfo.Manager
	ble           *bleperiph.Adapter
	publisher     dnssd.Publisher
	accessoryName string
	categoryID    uint16
	paired        bool
}

// refreshAdvertising rebuilds the regular BLE advertisement and the
// Bonjour TXT record from the current store/setup-info state (spec
// §4.C11, §6).
func refreshAdvertising(p refreshParams) {
	deviceID, _, err := store.GetDeviceID(p.backing)
	if err != nil {
		p.logger.WithError(err).Warn("hapd: failed to read device ID")
		return
	}
	cn, err := store.GetConfigurationNumber(p.backing)
	if err != nil {
		p.logger.WithError(err).Warn("hapd: failed to read configuration number")
		return
	}
	gsn, err := store.GetGSN(p.backing)
	if err != nil {
		p.logger.WithError(err).Warn("hapd: failed to read GSN")
		return
	}

	status := advertiser.StatusFlags(0)
	if !p.paired {
		status = advertiser.StatusNotPaired
	}

	if p.ble != nil {
		var did [6]byte
		copy(did[:], deviceID)
		var setupHash *[4]byte
		if !p.paired {
			h := advertiser.SetupHash(p.cfg.SetupID, deviceIDString(deviceID))
			setupHash = &h
		}
		adv := advertiser.EncodeRegular(advertiser.RegularParams{
			DeviceID:            did,
			AccessoryCategoryID: p.categoryID,
			GSN:                 gsn.Value,
			ConfigNumber:        cn,
			Status:              status,
		}, setupHash)
		if err := p.ble.Advertise(adv); err != nil {
			p.logger.WithError(err).Warn("hapd: failed to start BLE advertising")
		}
	}

	if p.cfg.EnableIP {
		if err := p.publisher.Publish(p.cfg.IPPort, dnssd.TXTRecords{
			Model:           p.accessoryName,
			DeviceID:        deviceIDString(deviceID),
			ConfigNumber:    int(cn),
			Category:        int(p.categoryID),
			ProtocolVersion: "1.1",
		}); err != nil {
			p.logger.WithError(err).Warn("hapd: failed to publish Bonjour record")
		}
	}
}
