// Package procedure implements the HAP-BLE procedure (spec §4.C10): binding
// a session to one characteristic for the duration of one transaction,
// dispatching its opcode, and enforcing the procedure timeout.
package procedure

import (
	"time"

	"github.com/hkadk/hapcore/internal/hap/ble/advertiser"
	"github.com/hkadk/hapcore/internal/hap/ble/pdu"
	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
)

// Deadline is how long a procedure may run before the owning session is
// invalidated with link termination.
const Deadline = 10 * time.Second

// TimedWriteTTL is how long a CharacteristicTimedWrite's stored body
// remains eligible for a matching CharacteristicExecuteWrite.
const TimedWriteTTL = 10 * time.Second

// Descriptor is the set of signature-read fields for one characteristic
// (spec §4.C10 bullet 1).
type Descriptor struct {
	CharacteristicType string
	ServiceType        string
	Permissions        []string
	Format             string
	ValidRange         []byte // optional, raw TLV payload
	Step               []byte
	ValidValues        []byte
	LinkedServices     []uint64
}

// Characteristic is the application-side object a procedure dispatches
// reads/writes/configuration to. Implemented by the accessory server's
// characteristic registry.
type Characteristic struct {
	IID uint64

	Descriptor Descriptor

	AdminOnly            bool
	RequiresSecureSession bool
	DropsSecuritySession  bool // Pair-Setup / Pair-Verify / Pairing-Features
	SupportsEvents        bool

	Read  func() ([]byte, pdu.Status)
	Write func(value []byte) pdu.Status

	BroadcastEnabled  bool
	BroadcastInterval uint16
}

// Registry resolves an IID to its characteristic, used by a Procedure to
// dispatch opcodes.
type Registry interface {
	Lookup(iid uint64) (*Characteristic, bool)
}

// AuthContext reports what sess is currently allowed to do, independent of
// the target characteristic's own permission bits.
type AuthContext struct {
	Secure bool
	Admin  bool
}

// ProtocolDeps bundles the dependencies opcode 0x08 (ProtocolConfiguration)
// needs beyond the characteristic registry: the crypto suite for
// broadcast-key derivation, the persistent store for GSN/CN/broadcast-
// parameter state, and the pairing records used to resolve the bound
// session's controller LTPK (spec §4.C10 "ProtocolConfiguration",
// §4.C11 "Broadcast parameters"). CharacteristicConfiguration (opcode
// 0x07) also persists through Store.
type ProtocolDeps struct {
	Suite    hcrypto.Suite
	Store    store.Store
	Pairings *store.PairingStore
}

// Procedure is bound to exactly one (session, characteristic, transaction)
// triple for its lifetime.
type Procedure struct {
	sess     *session.Session
	registry Registry
	deadline time.Time
	deps     ProtocolDeps

	iid  uint64
	char *Characteristic

	timedWriteBody  []byte
	timedWriteStart time.Time
	hasTimedWrite   bool
}

// Attach binds a procedure to sess and the characteristic named by iid.
// Returns an error if the session is already terminal (spec §4.C10: the
// terminal flag is consulted on attach and before every dispatch).
func Attach(now time.Time, sess *session.Session, registry Registry, iid uint64, deps ProtocolDeps) (*Procedure, error) {
	if sess.BLE != nil && sess.BLE.IsTerminal {
		return nil, herr.New("procedure.Attach", herr.KindInvalidState, "session is terminal")
	}
	char, ok := registry.Lookup(iid)
	if !ok {
		return nil, herr.New("procedure.Attach", herr.KindInvalidData, "unknown characteristic IID")
	}
	p := &Procedure{sess: sess, registry: registry, deadline: now.Add(Deadline), deps: deps, iid: iid, char: char}
	if sess.BLE != nil {
		sess.BLE.ProcedureDeadline = p.deadline
	}
	return p, nil
}

// Expired reports whether now is past the procedure's deadline. The caller
// must invalidate the session with link termination when this returns
// true (spec §4.C10 "Procedure timeout").
func (p *Procedure) Expired(now time.Time) bool {
	return now.After(p.deadline)
}

// Dispatch processes one reassembled request against the bound
// characteristic and returns the response status and body.
func (p *Procedure) Dispatch(now time.Time, auth AuthContext, opcode pdu.Opcode, body []byte) (pdu.Status, []byte, error) {
	if p.sess.BLE != nil && p.sess.BLE.IsTerminal {
		return pdu.StatusInvalidRequest, nil, herr.New("procedure.Dispatch", herr.KindInvalidState, "session is terminal")
	}
	if p.char.DropsSecuritySession && opcode == pdu.OpcodeCharacteristicWrite {
		// Writing to Pair-Setup/Pair-Verify/Pairing-Features implicitly
		// drops any existing secure session before the write executes
		// (spec §4.C10 "State-session invariant").
		p.sess.Invalidate(false, nil)
	}

	switch opcode {
	case pdu.OpcodeServiceSignatureRead, pdu.OpcodeCharacteristicSignatureRead:
		return p.dispatchSignatureRead()
	case pdu.OpcodeCharacteristicRead:
		return p.dispatchRead(auth)
	case pdu.OpcodeCharacteristicWrite:
		return p.dispatchWrite(auth, body)
	case pdu.OpcodeCharacteristicTimedWrite:
		return p.dispatchTimedWrite(now, auth, body)
	case pdu.OpcodeCharacteristicExecuteWrite:
		return p.dispatchExecuteWrite(now, auth)
	case pdu.OpcodeCharacteristicConfiguration:
		return p.dispatchConfiguration(auth, body)
	case pdu.OpcodeProtocolConfiguration:
		return p.dispatchProtocolConfiguration(auth, body)
	case pdu.OpcodeToken, pdu.OpcodeTokenUpdate:
		// MFi Hardware Auth software-token exchange (spec Table 5-4,
		// original_source/HAP/HAPMFiTokenAuth.c) requires an Apple-
		// licensed MFi authentication coprocessor to produce the
		// token; this implementation has no such hardware to back it,
		// so the opcode is acknowledged as unsupported rather than
		// faked.
		return pdu.StatusUnsupportedPDU, nil, nil
	case pdu.OpcodeInfo:
		// HAP-Info-Response (Table 5-9, original_source/HAP/
		// HAPAccessory+Info.c) restates accessory metadata already
		// carried by the regular advertisement and the attribute
		// database for accessories that lack a GATT read path to
		// either; this repo has no attribute-database component
		// (DESIGN.md "Reference accessory daemon") to source a model
		// name/feature-flags response from.
		return pdu.StatusUnsupportedPDU, nil, nil
	default:
		return pdu.StatusUnsupportedPDU, nil, nil
	}
}

func (p *Procedure) authorize(auth AuthContext) pdu.Status {
	if p.char.RequiresSecureSession && !auth.Secure {
		return pdu.StatusInsufficientAuthentication
	}
	if p.char.AdminOnly && !auth.Admin {
		return pdu.StatusInsufficientAuthorization
	}
	return pdu.StatusSuccess
}

func (p *Procedure) dispatchSignatureRead() (pdu.Status, []byte, error) {
	buf := make([]byte, 256)
	w := tlv8.NewWriter(buf)
	d := p.char.Descriptor
	_ = w.Append(0x04, []byte(d.CharacteristicType)) // kTLVHAPParamValue_Type
	if d.ServiceType != "" {
		_ = w.Append(0x05, []byte(d.ServiceType))
	}
	for _, perm := range d.Permissions {
		_ = w.Append(0x0A, []byte(perm))
	}
	if d.Format != "" {
		_ = w.Append(0x0C, []byte(d.Format))
	}
	if len(d.ValidRange) > 0 {
		_ = w.Append(0x0D, d.ValidRange)
	}
	if len(d.Step) > 0 {
		_ = w.Append(0x0E, d.Step)
	}
	if len(d.ValidValues) > 0 {
		_ = w.Append(0x11, d.ValidValues)
	}
	return pdu.StatusSuccess, w.Bytes(), nil
}

func (p *Procedure) dispatchRead(auth AuthContext) (pdu.Status, []byte, error) {
	if st := p.authorize(auth); st != pdu.StatusSuccess {
		return st, nil, nil
	}
	if p.char.Read == nil {
		return pdu.StatusInvalidRequest, nil, nil
	}
	value, st := p.char.Read()
	if st != pdu.StatusSuccess {
		return st, nil, nil
	}
	buf := make([]byte, len(value)+8)
	w := tlv8.NewWriter(buf)
	_ = w.Append(0x02, value) // kTLVHAPParamValue_Value
	return pdu.StatusSuccess, w.Bytes(), nil
}

func (p *Procedure) dispatchWrite(auth AuthContext, body []byte) (pdu.Status, []byte, error) {
	if st := p.authorize(auth); st != pdu.StatusSuccess {
		return st, nil, nil
	}
	value, ok := extractValue(body)
	if !ok || p.char.Write == nil {
		return pdu.StatusInvalidRequest, nil, nil
	}
	return p.char.Write(value), nil, nil
}

func (p *Procedure) dispatchTimedWrite(now time.Time, auth AuthContext, body []byte) (pdu.Status, []byte, error) {
	if st := p.authorize(auth); st != pdu.StatusSuccess {
		return st, nil, nil
	}
	value, ok := extractValue(body)
	if !ok {
		return pdu.StatusInvalidRequest, nil, nil
	}
	p.timedWriteBody = value
	p.timedWriteStart = now
	p.hasTimedWrite = true
	return pdu.StatusSuccess, nil, nil
}

func (p *Procedure) dispatchExecuteWrite(now time.Time, auth AuthContext) (pdu.Status, []byte, error) {
	if !p.hasTimedWrite || now.Sub(p.timedWriteStart) > TimedWriteTTL {
		p.hasTimedWrite = false
		return pdu.StatusUnsupportedPDU, nil, nil
	}
	if st := p.authorize(auth); st != pdu.StatusSuccess {
		p.hasTimedWrite = false
		return st, nil, nil
	}
	body := p.timedWriteBody
	p.hasTimedWrite = false
	if p.char.Write == nil {
		return pdu.StatusInvalidRequest, nil, nil
	}
	return p.char.Write(body), nil, nil
}

func (p *Procedure) dispatchConfiguration(auth AuthContext, body []byte) (pdu.Status, []byte, error) {
	if !auth.Admin {
		return pdu.StatusInsufficientAuthorization, nil, nil
	}
	r, err := tlv8.NewReader(body)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, nil
	}
	if enabled, ok := r.GetByte(0x01); ok { // kTLVHAPParamCharacteristicConfig_Properties
		p.char.BroadcastEnabled = enabled != 0
	}
	if interval, ok := r.Get(0x02); ok && len(interval) == 2 { // BroadcastInterval
		p.char.BroadcastInterval = uint16(interval[0]) | uint16(interval[1])<<8
	}
	if p.deps.Store != nil {
		cfg := store.CharacteristicConfig{BroadcastEnabled: p.char.BroadcastEnabled, BroadcastInterval: p.char.BroadcastInterval}
		if err := store.SetCharacteristicConfig(p.deps.Store, p.char.IID, cfg); err != nil {
			return pdu.StatusInvalidRequest, nil, err
		}
	}
	buf := make([]byte, 8)
	w := tlv8.NewWriter(buf)
	_ = w.Append(0x01, boolByte(p.char.BroadcastEnabled))
	return pdu.StatusSuccess, w.Bytes(), nil
}

// Protocol Configuration request/response TLV types (spec §4.C10,
// grounded on original_source/HAP/HAPBLEProtocol+Configuration.c).
const (
	tlvProtoReqGenerateBroadcastEncryptionKey byte = 0x01
	tlvProtoReqGetAllParams                   byte = 0x02
	tlvProtoReqSetAdvertisingIdentifier       byte = 0x03

	tlvProtoRespCurrentStateNumber     byte = 0x01
	tlvProtoRespCurrentConfigNumber    byte = 0x02
	tlvProtoRespAdvertisingIdentifier  byte = 0x03
	tlvProtoRespBroadcastEncryptionKey byte = 0x04
)

// broadcastKeyInfo is the HKDF "info" string the accessory-side key
// derivation and the controller agree on (spec §4.C11 "Broadcast Encryption
// Key Generation").
const broadcastKeyInfo = "Broadcast-Encryption-Key"

// dispatchProtocolConfiguration handles opcode 0x08 (spec §4.C10
// "ProtocolConfiguration — generate broadcast key, get-all-params, or set
// advertising identifier; requires secure admin session"). A single
// round trip both applies any requested mutation and, when Get-All-Params
// is present, returns the current GSN/CN/advertising-identifier/
// broadcast-key state.
func (p *Procedure) dispatchProtocolConfiguration(auth AuthContext, body []byte) (pdu.Status, []byte, error) {
	if !auth.Secure || !auth.Admin {
		return pdu.StatusInsufficientAuthorization, nil, nil
	}
	r, err := tlv8.NewReader(body)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, nil
	}
	_, generateKey := r.Get(tlvProtoReqGenerateBroadcastEncryptionKey)
	_, getAll := r.Get(tlvProtoReqGetAllParams)
	advertisingID, hasAdvertisingID := r.Get(tlvProtoReqSetAdvertisingIdentifier)
	if hasAdvertisingID && len(advertisingID) != 6 {
		return pdu.StatusInvalidRequest, nil, nil
	}

	params, err := store.GetBroadcastParameters(p.deps.Store)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, err
	}

	switch {
	case generateKey:
		key, derr := p.deriveBroadcastKey()
		if derr != nil {
			return pdu.StatusInvalidRequest, nil, derr
		}
		gsn, gerr := store.GetGSN(p.deps.Store)
		if gerr != nil {
			return pdu.StatusInvalidRequest, nil, gerr
		}
		params.KeyExpirationGSN = store.ComputeKeyExpirationGSN(gsn.Value)
		params.Key = key
		if hasAdvertisingID {
			params.HasAdvertisingID = true
			copy(params.AdvertisingID[:], advertisingID)
		}
		if err := store.SetBroadcastParameters(p.deps.Store, params); err != nil {
			return pdu.StatusInvalidRequest, nil, err
		}
	case hasAdvertisingID:
		params.HasAdvertisingID = true
		copy(params.AdvertisingID[:], advertisingID)
		if err := store.SetBroadcastParameters(p.deps.Store, params); err != nil {
			return pdu.StatusInvalidRequest, nil, err
		}
	}

	if !getAll {
		return pdu.StatusSuccess, nil, nil
	}
	return p.protocolConfigurationResponse(params)
}

// deriveBroadcastKey computes the BLE broadcast encryption key (spec
// §4.C11 "Broadcast Encryption Key Generation"): HKDF-SHA512 over the
// bound session's Pair Verify shared secret (cv_KEY), salted with the
// controller's long-term Ed25519 public key, info "Broadcast-Encryption-
// Key", 32 bytes of output.
func (p *Procedure) deriveBroadcastKey() ([32]byte, error) {
	rec, ok := p.deps.Pairings.Get(p.sess.PairingID)
	if !ok {
		return [32]byte{}, herr.New("procedure.deriveBroadcastKey", herr.KindInvalidState, "no pairing record for session")
	}
	raw, err := p.deps.Suite.HKDFSHA512(p.sess.CVKey[:], rec.PublicKey, []byte(broadcastKeyInfo), 32)
	if err != nil {
		return [32]byte{}, herr.Wrap("procedure.deriveBroadcastKey", herr.KindUnknown, err)
	}
	var key [32]byte
	copy(key[:], raw)
	return key, nil
}

func (p *Procedure) protocolConfigurationResponse(params store.BroadcastParameters) (pdu.Status, []byte, error) {
	gsn, err := store.GetGSN(p.deps.Store)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, err
	}
	cn, err := store.GetConfigurationNumber(p.deps.Store)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, err
	}
	deviceID, _, err := store.GetDeviceID(p.deps.Store)
	if err != nil {
		return pdu.StatusInvalidRequest, nil, err
	}
	var devID [6]byte
	copy(devID[:], deviceID)

	buf := make([]byte, 64)
	w := tlv8.NewWriter(buf)
	_ = w.Append(tlvProtoRespCurrentStateNumber, []byte{byte(gsn.Value), byte(gsn.Value >> 8)})
	_ = w.Append(tlvProtoRespCurrentConfigNumber, []byte{advertiser.WrapConfigNumber(cn)})
	advID := params.AdvertisingIDOrDeviceID(devID)
	_ = w.Append(tlvProtoRespAdvertisingIdentifier, advID[:])
	if params.KeyExpirationGSN != 0 {
		_ = w.Append(tlvProtoRespBroadcastEncryptionKey, params.Key[:])
	}
	return pdu.StatusSuccess, w.Bytes(), nil
}

func extractValue(body []byte) ([]byte, bool) {
	if len(body) == 0 {
		return nil, false
	}
	r, err := tlv8.NewReader(body)
	if err != nil {
		return nil, false
	}
	v, ok := r.Get(0x02) // kTLVHAPParamValue_Value
	return v, ok
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
