// Package bleperiph is the concrete BLE peripheral-manager adapter (spec
// §6 "Bluetooth LE peripheral manager"), built on github.com/go-ble/ble's
// Linux/HCI stack — the same library the teacher uses for its central-role
// device connections, generalized here to the peripheral/GATT-server role
// the HAP accessory plays.
package bleperiph

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/sirupsen/logrus"

	"github.com/hkadk/hapcore/internal/hap/herr"
)

// Manager is the interface the accessory server depends on (spec §6): one
// advertisement at a time, a GATT table built from CharacteristicSpecs,
// and indication delivery per instance ID.
type Manager interface {
	Advertise(advBytes []byte) error
	StopAdvertising() error
	Configure(services []ServiceSpec, hooks Hooks) error
	SendIndication(iid uint64) error
	Disconnect(connHandle uint64) error
	Close() error
}

// CharacteristicSpec binds one GATT characteristic UUID to the
// engine-level instance ID the rest of the stack addresses it by.
type CharacteristicSpec struct {
	UUID ble.UUID
	IID  uint64
}

// ServiceSpec is one GATT service and its characteristics.
type ServiceSpec struct {
	UUID            ble.UUID
	Characteristics []CharacteristicSpec
}

// Hooks are the callbacks the GATT table dispatches into (spec §6
// onGattWrite/onGattRead/onConnect/onDisconnect).
type Hooks struct {
	OnConnect    func(connHandle uint64)
	OnDisconnect func(connHandle uint64)
	OnWrite      func(iid uint64, data []byte)
	OnRead       func(iid uint64) []byte
}

// newDevice and addService are package-level seams so tests can substitute
// a fake HCI device and GATT registry without touching real hardware,
// mirroring the teacher's swappable DeviceFactory var.
var (
	newDevice        = func() (ble.Device, error) { return linux.NewDevice() }
	addService       = ble.AddService
	advertiseMfgData = ble.AdvertiseMfgData
)

// Adapter implements Manager over a Linux HCI device.
type Adapter struct {
	logger *logrus.Logger
	device ble.Device

	mu         sync.Mutex
	advCancel  context.CancelFunc
	notifyChan map[uint64]chan []byte
	onRead     func(iid uint64) []byte
}

// New opens the local Linux HCI device and returns an Adapter bound to it.
// logger may be nil, in which case logging is suppressed.
func New(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	d, err := newDevice()
	if err != nil {
		return nil, herr.Wrap("bleperiph.New", herr.KindUnknown, err)
	}
	ble.SetDefaultDevice(d)
	return &Adapter{logger: logger, device: d, notifyChan: make(map[uint64]chan []byte)}, nil
}

// Configure builds the GATT table from services and wires hooks into the
// go-ble request/response handlers.
func (a *Adapter) Configure(services []ServiceSpec, hooks Hooks) error {
	a.mu.Lock()
	a.onRead = hooks.OnRead
	a.mu.Unlock()

	for _, svcSpec := range services {
		svc := ble.NewService(svcSpec.UUID)
		for _, charSpec := range svcSpec.Characteristics {
			iid := charSpec.IID
			char := svc.NewCharacteristic(charSpec.UUID)

			char.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				if hooks.OnWrite != nil {
					hooks.OnWrite(iid, req.Data())
				}
			}))

			char.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				if hooks.OnRead != nil {
					_, _ = rsp.Write(hooks.OnRead(iid))
				}
			}))

			char.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				ch := a.notifierChannel(iid)
				for {
					select {
					case <-n.Context().Done():
						return
					case data := <-ch:
						if _, err := n.Write(data); err != nil {
							return
						}
					}
				}
			}))
		}
		if err := addService(svc); err != nil {
			return herr.Wrap("bleperiph.Configure", herr.KindUnknown, err)
		}
	}
	return nil
}

func (a *Adapter) notifierChannel(iid uint64) chan []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.notifyChan[iid]
	if !ok {
		ch = make(chan []byte, 1)
		a.notifyChan[iid] = ch
	}
	return ch
}

// Advertise broadcasts advBytes, a manufacturer-specific AD structure
// (spec §4.C11): the first two bytes are the little-endian company ID,
// the remainder is the Apple sub-type/length/body payload go-ble nests
// under that company ID.
func (a *Adapter) Advertise(advBytes []byte) error {
	if len(advBytes) < 2 {
		return herr.New("bleperiph.Advertise", herr.KindInvalidData, "advertisement payload too short")
	}
	companyID := binary.LittleEndian.Uint16(advBytes[0:2])
	payload := advBytes[2:]

	if err := a.StopAdvertising(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.advCancel = cancel
	a.mu.Unlock()

	go func() {
		if err := advertiseMfgData(ctx, companyID, payload); err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Warn("ble advertising stopped with an error")
		}
	}()
	return nil
}

// StopAdvertising cancels any in-flight advertisement.
func (a *Adapter) StopAdvertising() error {
	a.mu.Lock()
	cancel := a.advCancel
	a.advCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// SendIndication pushes iid's current value (read via the Hooks.OnRead
// callback) to any subscribed notifier.
func (a *Adapter) SendIndication(iid uint64) error {
	a.mu.Lock()
	onRead := a.onRead
	a.mu.Unlock()
	if onRead == nil {
		return herr.New("bleperiph.SendIndication", herr.KindInvalidState, "no read hook configured")
	}
	ch := a.notifierChannel(iid)
	value := onRead(iid)
	select {
	case ch <- value:
	default:
		// A stale unread value sits in the buffered slot; replace it so
		// the notifier always serves the freshest state.
		select {
		case <-ch:
		default:
		}
		ch <- value
	}
	return nil
}

// Disconnect is not exposed by go-ble's peripheral role on a per-handle
// basis; accessory shutdown instead stops advertising so no new
// connections are accepted, per StopAdvertising.
func (a *Adapter) Disconnect(connHandle uint64) error {
	return fmt.Errorf("bleperiph: explicit per-connection disconnect is not supported by the underlying adapter")
}

// Close stops advertising and releases the HCI device.
func (a *Adapter) Close() error {
	_ = a.StopAdvertising()
	if a.device == nil {
		return nil
	}
	return a.device.Stop()
}

// NewForTest builds an Adapter without opening a real HCI device, for
// exercising the dispatch logic (SendIndication, Advertise payload
// validation) independent of hardware.
func NewForTest(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger, notifyChan: make(map[uint64]chan []byte)}, nil
}

// SetOnReadForTest installs a read hook without going through Configure.
func (a *Adapter) SetOnReadForTest(fn func(iid uint64) []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRead = fn
}

// NotifierChannelForTest exposes a characteristic's notification channel.
func (a *Adapter) NotifierChannelForTest(iid uint64) chan []byte {
	return a.notifierChannel(iid)
}
