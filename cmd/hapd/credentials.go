package main

import (
	"sync"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
)

// setupCredentials implements pairsetup.Credentials by deriving a fresh
// SRP salt/verifier whenever the setup-info manager's current code
// changes, and caching it otherwise so repeated M1s within one code's
// lifetime authenticate against the same verifier.
type setupCredentials struct {
	suite hcrypto.Suite
	mgr   *setupinfo.Manager

	mu   sync.Mutex
	code string
	info setupinfo.SetupInfo
}

func newSetupCredentials(suite hcrypto.Suite, mgr *setupinfo.Manager) *setupCredentials {
	return &setupCredentials{suite: suite, mgr: mgr}
}

// CurrentSRPVerifier implements pairsetup.Credentials.
func (c *setupCredentials) CurrentSRPVerifier() (salt, verifier []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := c.mgr.CurrentCode()
	if code != c.code {
		info, err := setupinfo.DeriveSetupInfo(c.suite, code)
		if err != nil {
			return nil, nil, err
		}
		c.code = code
		c.info = info
	}
	return c.info.Salt[:], c.info.Verifier[:], nil
}
