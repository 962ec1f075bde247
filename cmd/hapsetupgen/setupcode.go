package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hkadk/hapcore/internal/hap/setupinfo"
)

// resolveSetupCode returns --setup-code after validating it, or, when
// omitted, prompts for one on an interactive terminal (masked entry via
// term.ReadPassword, matching the teacher's term.MakeRaw PTY-bridge
// convention elsewhere in this codebase) and falls back to generating
// one when stdin is not a terminal.
func resolveSetupCode(cmd *cobra.Command) (string, error) {
	if flagSetupCode != "" {
		if err := setupinfo.ValidateSetupCode(flagSetupCode); err != nil {
			return "", err
		}
		return flagSetupCode, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return setupinfo.GenerateSetupCode()
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Setup code (blank to generate one) [XXX-XX-XXX]: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}

	code := strings.TrimSpace(string(raw))
	if code == "" {
		return setupinfo.GenerateSetupCode()
	}
	if err := setupinfo.ValidateSetupCode(code); err != nil {
		return "", err
	}
	return code, nil
}
