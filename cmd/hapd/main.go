// Command hapd is the reference accessory-server host (spec §1, §4.C14
// expansion): it wires the hapcore engine — store, pairing engines,
// setup-info manager, event dispatcher, server lifecycle — to a concrete
// BLE peripheral adapter and drives start()/stop() from OS signals. It is
// an integration/demo target, not a full HomeKit accessory: the HAP
// attribute database (services, characteristics, and their IIDs) is
// outside this repo's component budget, so hapd advertises and accepts
// pairings but does not expose application characteristics.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/hapsync"
	"github.com/hkadk/hapcore/internal/hap/server"
	"github.com/hkadk/hapcore/internal/hap/session"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
	"github.com/hkadk/hapcore/internal/hap/store"
	"github.com/hkadk/hapcore/internal/hapconfig"
	"github.com/hkadk/hapcore/internal/platform/bleperiph"
	"github.com/hkadk/hapcore/internal/platform/dnssd"
)

var flagIdentityPath string

var rootCmd = &cobra.Command{
	Use:          "hapd",
	Short:        "Reference HomeKit Accessory Protocol daemon",
	SilenceUsage: true,
	RunE:         runHapd,
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.Flags().StringVar(&flagIdentityPath, "identity", "hapd.identity.yaml", "accessory-identity bootstrap file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("ERROR:"), err)
		os.Exit(1)
	}
}

func runHapd(cmd *cobra.Command, _ []string) error {
	cfg, err := hapconfig.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	identity, err := LoadIdentity(flagIdentityPath)
	if err != nil {
		return fmt.Errorf("hapd: load identity file: %w", err)
	}
	categoryID := cfg.AccessoryCategoryID
	if identity.CategoryID != 0 {
		categoryID = identity.CategoryID
	}
	accessoryName := cfg.AccessoryName
	if identity.Name != "" {
		accessoryName = identity.Name
	}

	suite := hcrypto.Default{}
	backing := store.NewMemStore()

	pairingIdentity, err := provision(backing)
	if err != nil {
		return err
	}

	mode := setupinfo.ModeDisplay
	if cfg.SetupCode != "" {
		mode = setupinfo.ModeNone
	}
	setupMgr, err := setupinfo.NewManager(mode)
	if err != nil {
		return err
	}
	if cfg.SetupCode != "" {
		if err := setupMgr.SetStaticCode(cfg.SetupCode); err != nil {
			return err
		}
	}

	creds := newSetupCredentials(suite, setupMgr)

	srv, err := server.New(logger, suite, creds, pairingIdentity, backing, server.Config{
		AccessoryCategoryID: categoryID,
		SetupInfoMode:       mode,
	})
	if err != nil {
		return err
	}

	var ble *bleperiph.Adapter
	if cfg.EnableBLE {
		ble, err = bleperiph.New(logger)
		if err != nil {
			return fmt.Errorf("hapd: open BLE peripheral adapter: %w", err)
		}
		defer ble.Close()
	}

	refresh := func(paired bool) {
		refreshAdvertising(refreshParams{
			logger:        logger,
			cfg:           cfg,
			backing:       backing,
			setupMgr:      setupMgr,
			ble:           ble,
			publisher:     dnssd.NoopPublisher{},
			accessoryName: accessoryName,
			categoryID:    categoryID,
			paired:        paired,
		})
	}

	srv.OnUpdatedState(func(state server.State, paired bool) {
		logger.WithFields(map[string]interface{}{
			"state":  state.String(),
			"paired": paired,
		}).Info("hapd state changed")
		if state == server.Running {
			refresh(paired)
		}
	})

	loop := hapsync.NewLoop(context.Background(), "hapd-dispatch", 0)
	defer loop.Stop()

	if err := srv.Start(time.Now()); err != nil {
		return fmt.Errorf("hapd: start accessory server: %w", err)
	}

	color.Green("hapd running (%s, category %d)", accessoryName, categoryID)
	if mode == setupinfo.ModeDisplay {
		fmt.Printf("setup code: %s\n", setupMgr.CurrentCode())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(setupinfo.RefreshInterval / 10)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				loop.Post(func() {
					before := setupMgr.CurrentCode()
					if err := setupMgr.Tick(now); err != nil {
						logger.WithError(err).Warn("hapd: setup-code refresh failed")
						return
					}
					if setupMgr.CurrentCode() != before {
						refresh(srv.IsPaired())
					}
				})
			}
		}
	}()

	<-ctx.Done()

	logger.Info("hapd: shutting down")
	if ble != nil {
		if err := ble.StopAdvertising(); err != nil {
			logger.WithError(err).Warn("hapd: failed to stop BLE advertising")
		}
	}
	return srv.Stop(func(session.ID) {})
}
