package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagefilter2d/internal/filter"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute platforms and devices",
	Long:  `Lists every platform the selected backend reports, with the devices it exposes.`,
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	driver, err := filter.OpenDriver(backendName)
	if err != nil {
		return err
	}
	platforms, err := driver.Platforms()
	if err != nil {
		return fmt.Errorf("failed to list platforms: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(platforms) == 0 {
		fmt.Fprintf(out, "No platforms found (driver %s).\n", driver.Name())
		return nil
	}

	for i, p := range platforms {
		info := p.Info()
		fmt.Fprintf(out, "Platform %d: %s\n  Vendor:  %s\n  Version: %s\n\n", i, info.Name, info.Vendor, info.Version)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  #\tNAME\tTYPE\tUNITS\tMAX WG\tIMAGES")
		for j, d := range info.Devices {
			images := "no"
			if d.ImageSupport {
				images = fmt.Sprintf("%dx%d", d.Image2DMaxWidth, d.Image2DMaxHeight)
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%d\t%s\n", j, d.Name, d.Type, d.MaxComputeUnits, d.MaxWorkGroupSize, images)
		}
		w.Flush()
		fmt.Fprintln(out)
	}
	return nil
}
