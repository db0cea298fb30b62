package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/fleet"
)

// PrinterCmd represents the printer command
var PrinterCmd = &cobra.Command{
	Use:   "printer",
	Short: "Manage the printer inventory",
	Long: `Manage printers: the machines the scheduler assigns jobs to.

Tags describe capabilities ("enclosed", "0.6mm"); slots describe loaded
materials ("pla:red"). Jobs only land on printers whose tags cover their
requirements and whose slots satisfy their colors.

Examples:
  printfarm printer add prusa-1 --tags enclosed,0.4mm --slots pla:red,pla:white
  printfarm printer ls
  printfarm printer set-slots <id> pla:black
  printfarm printer deactivate <id>`,
}

var (
	printerTagsFlag  string
	printerSlotsFlag string
)

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var printerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a printer to the fleet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		p, err := fleet.New(args[0])
		if err != nil {
			return err
		}
		p.Tags = splitList(printerTagsFlag)
		p.Slots = splitList(printerSlotsFlag)
		if err := svc.Printers().Create(p); err != nil {
			return err
		}
		fmt.Printf("Printer added: %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var printerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List printers",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		printers, err := svc.Printers().List()
		if err != nil {
			return err
		}
		if len(printers) == 0 {
			fmt.Println("No printers registered")
			return nil
		}
		for _, p := range printers {
			state := "active"
			if !p.Active {
				state = "inactive"
			}
			fmt.Printf("%-36s  %-20s  %-8s  tags=[%s]  slots=[%s]\n",
				p.ID, p.Name, state,
				strings.Join(p.Tags, ","), strings.Join(p.Slots, ","))
		}
		return nil
	},
}

var printerActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Return a printer to the scheduling pool",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPrinterActive(args[0], true) },
}

var printerDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Take a printer out of the scheduling pool",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPrinterActive(args[0], false) },
}

func setPrinterActive(id string, active bool) error {
	svc, conn, err := openService()
	if err != nil {
		return err
	}
	defer conn.Close()
	defer svc.Close()

	if err := svc.Printers().SetActive(id, active); err != nil {
		return err
	}
	if active {
		fmt.Printf("Printer %s activated\n", id)
	} else {
		fmt.Printf("Printer %s deactivated\n", id)
	}
	return nil
}

var printerSetSlotsCmd = &cobra.Command{
	Use:   "set-slots <id> <slots>",
	Short: "Replace a printer's loaded materials (comma-separated)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		p, err := svc.Printers().Get(args[0])
		if err != nil {
			return err
		}
		p.Slots = splitList(args[1])
		if err := svc.Printers().Update(p); err != nil {
			return err
		}
		fmt.Printf("Printer %s slots: %s\n", p.Name, strings.Join(p.Slots, ","))
		return nil
	},
}

func init() {
	printerAddCmd.Flags().StringVar(&printerTagsFlag, "tags", "", "Comma-separated capability tags")
	printerAddCmd.Flags().StringVar(&printerSlotsFlag, "slots", "", "Comma-separated loaded materials")

	PrinterCmd.AddCommand(printerAddCmd)
	PrinterCmd.AddCommand(printerLsCmd)
	PrinterCmd.AddCommand(printerActivateCmd)
	PrinterCmd.AddCommand(printerDeactivateCmd)
	PrinterCmd.AddCommand(printerSetSlotsCmd)
}
