package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/instrument"
)

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List voltage-forcing instruments",
	Long: `Scan the host for USBTMC power supplies and source-measure units and print a
summary of the detected instruments. The simulated supply is always listed.`,
	RunE: runInstruments,
}

func init() {
	rootCmd.AddCommand(instrumentsCmd)
}

func runInstruments(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := instrument.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover instruments: %w", err)
	}

	fmt.Println("Detected instruments:")
	for _, info := range infos {
		if info.Simulated() {
			fmt.Printf("  - %s [%s]\n", info.Label(), info.Kind)
			continue
		}
		usb488 := ""
		if info.USB488 {
			usb488 = ", USB488"
		}
		fmt.Printf("  - %s [%s%s] (VID:PID %04X:%04X at %s)\n",
			info.Label(), info.Kind, usb488, info.VendorID, info.ProductID, info.Path)
	}
	return nil
}
