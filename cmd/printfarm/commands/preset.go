package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/preset"
)

// PresetCmd represents the preset command
var PresetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage reusable job templates",
	Long: `Manage reusable job templates.

Presets capture a job's parameters under a name so recurring prints can
be submitted in one step.

Examples:
  printfarm preset create weekly-demo --item benchy --minutes 90 --color pla:orange
  printfarm preset ls
  printfarm preset schedule weekly-demo --now
  printfarm preset rm <id>`,
}

var (
	presetItemFlag     string
	presetModelFlag    string
	presetQuantityFlag int
	presetPriorityFlag int
	presetMinutesFlag  int
	presetGramsFlag    float64
	presetColorsFlag   string
	presetTagsFlag     string
	presetNotesFlag    string
	presetNowFlag      bool
)

var presetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Save a job template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		p, err := preset.New(args[0], presetItemFlag)
		if err != nil {
			return err
		}
		p.ModelRef = presetModelFlag
		if presetQuantityFlag > 0 {
			p.Quantity = presetQuantityFlag
		}
		if presetPriorityFlag > 0 {
			p.Priority = presetPriorityFlag
		}
		if presetMinutesFlag > 0 {
			minutes := presetMinutesFlag
			p.DurationMinutes = &minutes
		}
		if presetGramsFlag > 0 {
			grams := presetGramsFlag
			p.GramsEstimate = &grams
		}
		p.Colors = splitList(presetColorsFlag)
		p.RequiredTags = splitList(presetTagsFlag)
		p.Notes = presetNotesFlag

		if err := svc.CreatePreset(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Preset created: %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var presetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		presets, err := svc.Presets().List()
		if err != nil {
			return err
		}
		if len(presets) == 0 {
			fmt.Println("No presets saved")
			return nil
		}
		for _, p := range presets {
			fmt.Printf("%-36s  %-20s  %s x%d  colors=[%s]\n",
				p.ID, p.Name, p.ItemName, p.Quantity, strings.Join(p.Colors, ","))
		}
		return nil
	},
}

var presetRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a preset (jobs created from it are unaffected)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		if err := svc.DeletePreset(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Preset %s deleted\n", args[0])
		return nil
	},
}

var presetScheduleCmd = &cobra.Command{
	Use:   "schedule <name>",
	Short: "Submit a job from a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.ScheduleFromPreset(cmd.Context(), actingPrincipal(), args[0], presetNowFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s submitted from preset %s (%s)\n", j.ID, args[0], j.Status)
		return nil
	},
}

func init() {
	registerPrincipalFlags(PresetCmd)

	presetCreateCmd.Flags().StringVar(&presetItemFlag, "item", "", "Item name for jobs from this preset (required)")
	presetCreateCmd.Flags().StringVar(&presetModelFlag, "model", "", "Model file reference")
	presetCreateCmd.Flags().IntVar(&presetQuantityFlag, "quantity", 1, "Number of copies")
	presetCreateCmd.Flags().IntVar(&presetPriorityFlag, "priority", 3, "Priority 1 (highest) to 5")
	presetCreateCmd.Flags().IntVar(&presetMinutesFlag, "minutes", 0, "Estimated print minutes")
	presetCreateCmd.Flags().Float64Var(&presetGramsFlag, "grams", 0, "Estimated filament grams")
	presetCreateCmd.Flags().StringVar(&presetColorsFlag, "color", "", "Comma-separated material/color tokens")
	presetCreateCmd.Flags().StringVar(&presetTagsFlag, "require", "", "Comma-separated required printer tags")
	presetCreateCmd.Flags().StringVar(&presetNotesFlag, "notes", "", "Free-form notes")
	_ = presetCreateCmd.MarkFlagRequired("item")

	presetScheduleCmd.Flags().BoolVar(&presetNowFlag, "now", false, "Run scheduling immediately after submit")

	PresetCmd.AddCommand(presetCreateCmd)
	PresetCmd.AddCommand(presetLsCmd)
	PresetCmd.AddCommand(presetRmCmd)
	PresetCmd.AddCommand(presetScheduleCmd)
}
