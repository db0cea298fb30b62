package commands

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/config"
	"github.com/spoolworks/printfarm/errors"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit printfarm configuration",
	Long: `Manage printfarm configuration.

Settings merge from /etc/printfarm/config.toml, ~/.printfarm/config.toml,
a project-local printfarm.toml, and PRINTFARM_* environment variables,
in that order of precedence.

Examples:
  printfarm config show
  printfarm config set-blackout 22:30 05:30
  printfarm config set-quota --max-jobs 5 --max-grams 500 --max-hours 40
  printfarm config set-approval on`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		out, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to render configuration")
		}
		fmt.Printf("# effective configuration (user file: %s)\n\n", config.UserConfigPath())
		fmt.Print(string(out))
		return nil
	},
}

var configSetBlackoutCmd = &cobra.Command{
	Use:   "set-blackout <start> <end>",
	Short: "Set the nightly blackout window (HH:MM HH:MM, may wrap midnight)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateBlackoutWindow(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Blackout window set: %s to %s\n", args[0], args[1])
		return nil
	},
}

var (
	quotaMaxJobsFlag  int
	quotaMaxGramsFlag float64
	quotaMaxHoursFlag float64
)

var configSetQuotaCmd = &cobra.Command{
	Use:   "set-quota",
	Short: "Set the default per-user quota (0 = unlimited)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateDefaultQuota(quotaMaxJobsFlag, quotaMaxGramsFlag, quotaMaxHoursFlag); err != nil {
			return err
		}
		fmt.Printf("Default quota set: %d jobs, %.0f g, %.0f h\n",
			quotaMaxJobsFlag, quotaMaxGramsFlag, quotaMaxHoursFlag)
		return nil
	},
}

var configSetApprovalCmd = &cobra.Command{
	Use:   "set-approval <on|off>",
	Short: "Toggle the submission approval gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			enabled = true
		case "off", "false", "0":
			enabled = false
		default:
			return errors.Newf("expected on or off, got %q", args[0])
		}
		if err := config.UpdateRequireApproval(enabled); err != nil {
			return err
		}
		fmt.Printf("Approval gate: %v\n", enabled)
		return nil
	},
}

func init() {
	configSetQuotaCmd.Flags().IntVar(&quotaMaxJobsFlag, "max-jobs", 0, "Maximum jobs per period")
	configSetQuotaCmd.Flags().Float64Var(&quotaMaxGramsFlag, "max-grams", 0, "Maximum filament grams per period")
	configSetQuotaCmd.Flags().Float64Var(&quotaMaxHoursFlag, "max-hours", 0, "Maximum printer hours per period")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configSetBlackoutCmd)
	ConfigCmd.AddCommand(configSetQuotaCmd)
	ConfigCmd.AddCommand(configSetApprovalCmd)
}
