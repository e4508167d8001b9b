package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel    string
	backendName string
	kernelPath  string
	entryName   string
	tileSize    int
	preferList  []string
	verify      bool
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imagefilter2d <input> <output>",
	Short: "Apply a 2D image filter on an OpenCL device",
	Long: `imagefilter2d uploads an image to a compute device, runs a 2D filter kernel
over it and writes the result. The default kernel is a 3x3 Gaussian blur.
Use "-" as input or output to read stdin or write stdout.`,
	Args:          cobra.ExactArgs(2),
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// stdout may carry image data.
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
	RunE: runFilter,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "auto", "Compute backend (auto, opencl, host)")

	rootCmd.Flags().StringVar(&kernelPath, "kernel", "", "OpenCL C source file (built-in kernels when empty)")
	rootCmd.Flags().StringVar(&entryName, "entry", "gaussian_filter", "Kernel entry point")
	rootCmd.Flags().IntVar(&tileSize, "tile", 16, "Work-group edge length")
	rootCmd.Flags().StringSliceVar(&preferList, "prefer", []string{"gpu", "cpu"}, "Device classes to try, in order")
	rootCmd.Flags().BoolVar(&verify, "verify", false, "Compare the result with a CPU reference (gaussian_filter only)")
}
