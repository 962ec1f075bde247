// Command hapsetupgen is the setup-info generator tool (spec §6, §4.C12
// expansion): it derives a HomeKit accessory's setup code, SRP-6a salt
// and verifier, setup ID, and "X-HM://..." setup payload, and prints
// them as six newline-separated lines for a provisioning script to
// capture. Validation is delegated to the setupinfo package the
// accessory daemon itself uses, rather than re-implemented here.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	hcrypto "github.com/hkadk/hapcore/internal/hap/crypto"
	"github.com/hkadk/hapcore/internal/hap/setupinfo"
)

var (
	flagIP        bool
	flagBLE       bool
	flagCategory  uint16
	flagSetupCode string
	flagSetupID   string
)

var rootCmd = &cobra.Command{
	Use:   "hapsetupgen",
	Short: "Generate a HomeKit accessory's setup code, SRP verifier, and setup payload",
	Long: `hapsetupgen derives everything an accessory needs to advertise itself for
pairing: a setup code (generated, or validated if supplied), the SRP-6a
salt and verifier to seed the accessory's Pair Setup state, a setup ID,
and the "X-HM://..." setup payload string for a printed or NFC tag.`,
	SilenceUsage: true,
	RunE:         runHapsetupgen,
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.Flags().BoolVar(&flagIP, "ip", false, "accessory supports the IP transport")
	rootCmd.Flags().BoolVar(&flagBLE, "ble", false, "accessory supports the BLE transport")
	rootCmd.Flags().Uint16Var(&flagCategory, "category", 0, "accessory category identifier (1..30)")
	rootCmd.Flags().StringVar(&flagSetupCode, "setup-code", "", `setup code "XXX-XX-XXX"; prompted or generated if omitted`)
	rootCmd.Flags().StringVar(&flagSetupID, "setup-id", "", "4-character setup ID; generated if omitted")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("ERROR:"), err)
		os.Exit(1)
	}
}

func runHapsetupgen(cmd *cobra.Command, _ []string) error {
	if !flagIP && !flagBLE {
		return errors.New("at least one of --ip or --ble is required")
	}
	if flagCategory < 1 || flagCategory > 30 {
		return errors.New("--category must be between 1 and 30")
	}

	setupCode, err := resolveSetupCode(cmd)
	if err != nil {
		return err
	}

	setupID := flagSetupID
	if setupID == "" {
		if setupID, err = setupinfo.GenerateSetupID(); err != nil {
			return err
		}
	} else if err := setupinfo.ValidateSetupID(setupID); err != nil {
		return err
	}

	info, err := setupinfo.DeriveSetupInfo(hcrypto.SRP3072{}, setupCode)
	if err != nil {
		return err
	}

	var flags uint8
	if flagIP {
		flags |= setupinfo.PayloadFlagIPTransport
	}
	if flagBLE {
		flags |= setupinfo.PayloadFlagBLETransport
	}
	payload, err := setupinfo.EncodeSetupPayload(flagCategory, flags, setupCode, setupID)
	if err != nil {
		return err
	}

	salt := hex.EncodeToString(info.Salt[:])
	verifier := hex.EncodeToString(info.Verifier[:])

	fmt.Println("1")
	fmt.Println(setupCode)
	fmt.Println(salt)
	fmt.Println(verifier)
	fmt.Println(setupID)
	fmt.Println(payload)

	printSummary(setupCode, setupID, payload)
	return nil
}
