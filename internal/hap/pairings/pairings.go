// Package pairings implements the Add/Remove/List Pairings sub-protocol
// (spec §4.C7): the admin-only procedures a paired controller uses to
// manage the accessory's set of known controllers after Pair Setup has
// completed. All three operations share one TLV request/response shape,
// distinguished by the Method TLV.
package pairings

import (
	"crypto/ed25519"

	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/pairproto"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hap/tlv8"
)

// Engine runs Add/Remove/List Pairings. Not safe for concurrent use.
type Engine struct {
	pairings *store.PairingStore
	backing  store.Store
	sessions *session.Table
}

// NewEngine constructs a Pairings engine bound to the shared pairing store
// and the server's live session table, needed to enforce "removing the
// last admin invalidates every session" (spec §4.C7).
func NewEngine(pairings *store.PairingStore, backing store.Store, sessions *session.Table) *Engine {
	return &Engine{pairings: pairings, backing: backing, sessions: sessions}
}

// Handle processes one Add/Remove/List Pairings request from sess and
// returns the TLV response. disconnect is called once per session ID
// invalidated as a side effect (only possible for Remove, when the last
// admin pairing is removed).
func (e *Engine) Handle(sess *session.Session, body []byte, disconnect func(session.ID)) ([]byte, error) {
	r, err := tlv8.NewReader(body)
	if err != nil {
		return nil, herr.Wrap("pairings.Handle", herr.KindInvalidData, err)
	}
	st, ok := r.GetByte(pairproto.TypeState)
	if !ok || st != 1 {
		return nil, herr.New("pairings.Handle", herr.KindInvalidData, "expected state 1 request")
	}
	methodByte, ok := r.GetByte(pairproto.TypeMethod)
	if !ok {
		return nil, herr.New("pairings.Handle", herr.KindInvalidData, "missing method TLV")
	}

	if !e.isAdmin(sess) {
		return e.errorResponse(pairproto.ErrorAuthentication), nil
	}

	switch pairproto.Method(methodByte) {
	case pairproto.MethodAddPairing:
		return e.handleAdd(r)
	case pairproto.MethodRemovePairing:
		return e.handleRemove(sess, r, disconnect)
	case pairproto.MethodListPairings:
		return e.handleList()
	default:
		return e.errorResponse(pairproto.ErrorUnknown), nil
	}
}

func (e *Engine) isAdmin(sess *session.Session) bool {
	if !sess.Active || sess.IsTransient {
		return false
	}
	rec, ok := e.pairings.Get(sess.PairingID)
	if !ok {
		return false
	}
	return rec.IsAdmin()
}

func (e *Engine) errorResponse(code pairproto.ErrorCode) []byte {
	buf := make([]byte, 16)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{2})
	_ = w.Append(pairproto.TypeError, []byte{byte(code)})
	return w.Bytes()
}

func (e *Engine) handleAdd(r *tlv8.Reader) ([]byte, error) {
	identifier, ok := r.Get(pairproto.TypeIdentifier)
	if !ok {
		return e.errorResponse(pairproto.ErrorUnknown), nil
	}
	ltpk, ok := r.Get(pairproto.TypePublicKey)
	if !ok || len(ltpk) != ed25519.PublicKeySize {
		return e.errorResponse(pairproto.ErrorUnknown), nil
	}
	permByte, _ := r.GetByte(pairproto.TypePermissions)

	rec := store.PairingRecord{
		IdentifierLen: uint8(len(identifier)),
		PublicKey:     append(ed25519.PublicKey(nil), ltpk...),
		Permissions:   permByte,
	}
	copy(rec.Identifier[:], identifier)

	id, existing, found := e.pairings.FindByIdentifier(identifier)
	if !found {
		var err error
		id, err = e.pairings.NextFreeID()
		if err != nil {
			return e.errorResponse(pairproto.ErrorMaxPeers), nil
		}
	} else {
		_ = existing // Add on an existing identifier updates permissions/LTPK in place.
	}
	if err := e.pairings.Add(id, rec); err != nil {
		return nil, herr.Wrap("pairings.handleAdd", herr.KindUnknown, err)
	}

	return e.okResponse(), nil
}

func (e *Engine) handleRemove(sess *session.Session, r *tlv8.Reader, disconnect func(session.ID)) ([]byte, error) {
	identifier, ok := r.Get(pairproto.TypeIdentifier)
	if !ok {
		return e.errorResponse(pairproto.ErrorUnknown), nil
	}

	id, _, found := e.pairings.FindByIdentifier(identifier)
	if !found {
		// Removing an unknown pairing is a success no-op (spec §4.C7).
		return e.okResponse(), nil
	}
	e.pairings.Remove(id)

	if e.pairings.CountAdmins() == 0 {
		// The last admin was just removed: every remaining pairing (if any)
		// becomes unreachable without an admin to manage it, so the whole
		// Pairings domain resets and every live session is invalidated,
		// including the one that issued this request (spec §4.C7, §7).
		_ = e.pairings.RemoveAll()
		_ = store.ExpireBroadcastKey(e.backing)
		if e.sessions != nil {
			e.sessions.InvalidateAll(nil, disconnect)
		}
		_ = sess // already invalidated as part of InvalidateAll above
	}

	return e.okResponse(), nil
}

func (e *Engine) handleList() ([]byte, error) {
	list := e.pairings.List()
	buf := make([]byte, 64+len(list)*96)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{2})
	for i, p := range list {
		if i > 0 {
			_ = w.Append(pairproto.TypeSeparator, nil)
		}
		_ = w.Append(pairproto.TypeIdentifier, p.Record.Identifier[:p.Record.IdentifierLen])
		_ = w.Append(pairproto.TypePublicKey, p.Record.PublicKey)
		_ = w.Append(pairproto.TypePermissions, []byte{p.Record.Permissions})
	}
	return w.Bytes(), nil
}

func (e *Engine) okResponse() []byte {
	buf := make([]byte, 16)
	w := tlv8.NewWriter(buf)
	_ = w.Append(pairproto.TypeState, []byte{2})
	return w.Bytes()
}
