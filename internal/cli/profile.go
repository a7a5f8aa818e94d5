package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/amelia-orch/amelia/internal/config"
	"github.com/amelia-orch/amelia/internal/state"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and validate profile configuration",
}

var profileValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate profiles.yaml without starting the server",
	RunE:  runProfileValidate,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profiles defined in profiles.yaml",
	RunE:  runProfileList,
}

func init() {
	profileCmd.AddCommand(profileValidateCmd)
	profileCmd.AddCommand(profileListCmd)
}

func runProfileValidate(cmd *cobra.Command, args []string) error {
	path := config.Path(cfgDir)
	profiles, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("%s: OK (%d profile(s))\n", path, len(profiles))
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	path := config.Path(cfgDir)
	profiles, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := profiles[name]
		fmt.Printf("%s\tagents=%d tracker=%s auto_approve=%t sandbox=%s\n",
			name, len(p.Agents), orNoop(p.Tracker), p.AutoApproveReviews, orNone(p.Sandbox.Mode))
	}
	return nil
}

func orNoop(k state.TrackerKind) state.TrackerKind {
	if k == "" {
		return state.TrackerNoop
	}
	return k
}

func orNone(m state.SandboxMode) state.SandboxMode {
	if m == "" {
		return state.SandboxNone
	}
	return m
}
