// Package server implements the accessory server lifecycle (spec
// §4.C14): the {Idle, Running, Stopping} state machine driving start()
// and stop(), wiring together the store, session table, pairing engines,
// setup-info manager, and event dispatcher that the rest of the engine
// is built from.
package server

import (
	"time"

	"github.com/sirupsen/logrus"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/event"
	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/hap/pairings"
	"github.com/hkadk/hapcore/internal/hap/pairsetup"
	"github.com/hkadk/hapcore/internal/hap/pairverify"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
	"github.com/hkadk/hapcore/internal/hap/store"
)

// State is one point in the accessory server's lifecycle (spec §4.C14).
type State uint8

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

// SafeToDisconnectTimeout is the bound on waiting for an in-flight BLE
// procedure to finish before forcing the disconnect. Stop itself does not
// wait; applying this bound is left to Stop's caller.
const SafeToDisconnectTimeout = 10 * time.Second

// Config carries the identity fields start() needs to bring the
// accessory up: the accessory category for advertising/setup-payload
// purposes, and the setup-info mode.
type Config struct {
	AccessoryCategoryID uint16
	SetupInfoMode       setupinfo.Mode
}

// Server owns every piece of mutable engine state (spec §9 "Global
// mutable state": the AccessoryServer is a value owned by main, never a
// package-level global).
type Server struct {
	logger *logrus.Logger
	config Config

	store    store.Store
	pairings *store.PairingStore
	sessions *session.Table

	PairSetup  *pairsetup.Engine
	PairVerify *pairverify.Engine
	Pairings   *pairings.Engine
	SetupInfo  *setupinfo.Manager
	Events     *event.Dispatcher

	state     State
	isPaired  bool
	onUpdated func(state State, paired bool)
}

// New constructs a Server wired to backing, with a fresh session table
// and pairing engines sharing backing's pairing store. logger may be nil,
// in which case logging is suppressed.
func New(logger *logrus.Logger, suite hcrypto.Suite, creds pairsetup.Credentials, identity pairsetup.Identity, backing store.Store, config Config) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(noopWriter{})
	}

	pairingStore, err := store.NewPairingStore(backing)
	if err != nil {
		return nil, herr.Wrap("server.New", herr.KindUnknown, err)
	}
	sessions := session.NewTable()

	setupMgr, err := setupinfo.NewManager(config.SetupInfoMode)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:     logger,
		config:     config,
		store:      backing,
		pairings:   pairingStore,
		sessions:   sessions,
		PairSetup:  pairsetup.NewEngine(suite, creds, identity, pairingStore, backing),
		PairVerify: pairverify.NewEngine(suite, pairverify.Identity{PairingID: identity.PairingID, LTSK: identity.LTSK, LTPK: identity.LTPK}, pairingStore),
		Pairings:   pairings.NewEngine(pairingStore, backing, sessions),
		SetupInfo:  setupMgr,
		Events:     event.NewDispatcher(0),
		state:      Idle,
	}
	return s, nil
}

// OnUpdatedState registers the callback invoked whenever State() or
// IsPaired() changes (spec §4.C14 "handleUpdatedState").
func (s *Server) OnUpdatedState(cb func(state State, paired bool)) {
	s.onUpdated = cb
}

func (s *Server) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.logger.WithField("state", state.String()).Info("accessory server state changed")
	s.notifyUpdated()
}

func (s *Server) notifyUpdated() {
	if s.onUpdated != nil {
		s.onUpdated(s.state, s.isPaired)
	}
}

// State returns the server's current lifecycle state.
func (s *Server) State() State { return s.state }

// IsPaired reports whether at least one admin controller is paired.
func (s *Server) IsPaired() bool { return s.isPaired }

// Sessions returns the live session table, shared by the transport
// adapters driving request dispatch.
func (s *Server) Sessions() *session.Table { return s.sessions }

// Store returns the backing persistent key-value store.
func (s *Server) Store() store.Store { return s.store }

// refreshPairedState recomputes isPaired from the pairing store and fires
// handleUpdatedState if it changed.
func (s *Server) refreshPairedState() {
	paired := s.pairings.CountAdmins() > 0
	if paired != s.isPaired {
		s.isPaired = paired
		s.notifyUpdated()
	}
}

// Start brings the accessory server up (spec §4.C14 "start()"): checks
// that an LTSK is already stored (it does not generate one; Start fails
// with KindInvalidState when none is present), refreshes the paired state
// from the pairing store, and transitions to Running. Advertising, transport listeners, and service
// discovery are driven by the platform adapters once Running is observed
// via OnUpdatedState; Start itself only establishes engine-level
// readiness.
func (s *Server) Start(now time.Time) error {
	if s.state != Idle {
		return herr.New("server.start", herr.KindInvalidState, "server is not idle")
	}
	if _, ok, err := store.GetLTSK(s.store); err != nil {
		return herr.Wrap("server.start", herr.KindUnknown, err)
	} else if !ok {
		return herr.New("server.start", herr.KindInvalidState, "no LTSK provisioned")
	}
	s.refreshPairedState()
	if err := s.SetupInfo.Tick(now); err != nil {
		return err
	}
	s.Events.BeginCycle()
	s.setState(Running)
	return nil
}

// Stop requests orderly shutdown (spec §4.C14 "stop()"): every session is
// invalidated with link termination; disconnect is invoked per session ID
// to let the platform adapter tear down the underlying transport
// connection. The caller is responsible for honoring
// SafeToDisconnectTimeout on BLE sessions before forcing a disconnect.
func (s *Server) Stop(disconnect func(session.ID)) error {
	if s.state == Idle {
		return nil
	}
	s.setState(Stopping)
	s.sessions.InvalidateAll(nil, disconnect)
	s.setState(Idle)
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
