package main

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagefilter2d/internal/cl"
	"github.com/cwbudde/imagefilter2d/internal/filter"
	"github.com/cwbudde/imagefilter2d/internal/imageio"
	"github.com/cwbudde/imagefilter2d/internal/kernels"
	"github.com/cwbudde/imagefilter2d/internal/reference"
)

func runFilter(cmd *cobra.Command, args []string) error {
	// Argument errors print usage; everything after this point does not.
	cmd.SilenceUsage = true
	inPath, outPath := args[0], args[1]

	prefer, err := parsePreference(preferList)
	if err != nil {
		return err
	}
	if _, err := imageio.FormatFor(outPath); err != nil {
		return err
	}

	opts := filter.Options{Entry: entryName, Tile: tileSize, Prefer: prefer}
	if kernelPath != "" {
		src, err := os.ReadFile(kernelPath)
		if err != nil {
			return fmt.Errorf("failed to read kernel source: %w", err)
		}
		opts.Source = string(src)
	}

	src, err := imageio.Load(inPath)
	if err != nil {
		return err
	}
	slog.Info("Loaded input", "path", inPath, "width", src.Rect.Dx(), "height", src.Rect.Dy())

	driver, err := filter.OpenDriver(backendName)
	if err != nil {
		return err
	}

	p, err := filter.New(driver, opts)
	if err != nil {
		return err
	}
	defer p.Close()
	slog.Info("Pipeline ready", "session", p.Session().String(), "kernel", p.Entry())

	out, err := p.RunImage(src)
	if err != nil {
		return err
	}

	if verify {
		verifyResult(p.Entry(), src, out)
	}

	if err := imageio.Save(outPath, out); err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath == imageio.PipeName {
		w = cmd.ErrOrStderr()
	}
	dev := p.Session().Device()
	fmt.Fprintf(w, "Wrote %s (%dx%d, %s on %s %q)\n", outPath, out.Rect.Dx(), out.Rect.Dy(), p.Entry(), dev.Type, dev.Name)
	return nil
}

func verifyResult(entry string, src, out *image.NRGBA) {
	if entry != kernels.Gaussian {
		slog.Warn("Verification skipped, no reference for kernel", "kernel", entry)
		return
	}
	d, err := reference.Compare(out, reference.Gaussian3x3(src))
	if err != nil {
		slog.Warn("Verification failed", "error", err)
		return
	}
	if !d.Within(reference.Tolerance) {
		slog.Warn("Result deviates from CPU reference", "mse", d.MSE, "max_delta", d.MaxDelta, "pixels", d.Pixels)
		return
	}
	slog.Info("Result matches CPU reference", "mse", d.MSE, "max_delta", d.MaxDelta)
}

// parsePreference turns --prefer values into device classes.
func parsePreference(names []string) ([]cl.DeviceType, error) {
	var prefer []cl.DeviceType
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gpu":
			prefer = append(prefer, cl.DeviceTypeGPU)
		case "cpu":
			prefer = append(prefer, cl.DeviceTypeCPU)
		case "accelerator", "acc":
			prefer = append(prefer, cl.DeviceTypeAccelerator)
		case "":
		default:
			return nil, fmt.Errorf("unknown device class %q (want gpu, cpu or accelerator)", name)
		}
	}
	return prefer, nil
}
