package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogomez23/image-size-reducer/internal/config"
	"github.com/cogomez23/image-size-reducer/internal/inspector"
	"github.com/cogomez23/image-size-reducer/internal/logger"
	"github.com/cogomez23/image-size-reducer/internal/reducer"
	"github.com/cogomez23/image-size-reducer/internal/statistics"
	"github.com/cogomez23/image-size-reducer/internal/web"
)

var (
	cfgFile    string
	outputPath string
	maxSizeMB  float64
	sourceDir  string
	targetDir  string
	verbose    bool
	quiet      bool
	port       int
)

// rootCmd reduces a single image to fit the byte budget.
var rootCmd = &cobra.Command{
	Use:   "image-reducer <image>",
	Short: "Reduce an image's file size to fit a byte budget",
	Long: `ImageReducer re-encodes an image so that the output fits a target
file size while losing as little perceptual quality as possible.

The search degrades JPEG quality first (95 down to 10 in steps of 5) at the
original resolution, then progressively downscales the image, re-running the
quality search at each scale, until the budget is met or the scale floor is
reached. The report states the quality and scale chosen, the reduction
achieved and whether the budget was actually met.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReduce(args[0])
	},
}

// batchCmd reduces every supported image in a directory.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Reduce every supported image in a directory",
	Long: `Reduces all images with a supported extension (jpg, jpeg, png, gif,
bmp, tiff, webp) found under the source directory, writing
<name>_reduced.jpg outputs to the target directory. Files that fail to
decode are reported and do not stop the rest of the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch()
	},
}

// inspectCmd prints file and EXIF properties of an image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show size, dimensions and EXIF properties of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface server",
	Long: `Starts an HTTP server exposing the reducer: multipart uploads with a
per-request size budget, single-file downloads, zipped bulk downloads and
server-side directory batches with progress over a websocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Float64Var(&maxSizeMB, "max-size", 0, "maximum output size in megabytes (default from config: 1.0)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&outputPath, "output", "", "output path (default: <name>_reduced.jpg next to the input)")

	batchCmd.Flags().StringVar(&sourceDir, "source", "", "directory containing images to reduce")
	batchCmd.Flags().StringVar(&targetDir, "target", "", "directory for reduced outputs")
	_ = batchCmd.MarkFlagRequired("source")
	_ = batchCmd.MarkFlagRequired("target")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the web server on")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.image-reducer")
		viper.AddConfigPath("/etc/image-reducer")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !quiet {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runReduce reduces a single image and prints the report.
func runReduce(inputPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	red := reducer.NewSizeReducer(cfg, log, nil)

	output := outputPath
	if output == "" {
		name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		output = filepath.Join(filepath.Dir(inputPath), name+cfg.Processing.OutputSuffix+".jpg")
	}

	report, err := red.ReduceFile(context.Background(), inputPath, output, cfg.BudgetBytes())
	if err != nil {
		return err
	}

	if !quiet {
		printReport(report, output)
	}
	return nil
}

// runBatch reduces every supported image in the source directory.
func runBatch() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	red := reducer.NewSizeReducer(cfg, log, stats)

	reports, err := red.ReduceBatch(context.Background(), reducer.BatchParams{
		InputDir:    sourceDir,
		OutputDir:   targetDir,
		BudgetBytes: cfg.BudgetBytes(),
	})
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	if !quiet {
		for _, r := range reports {
			if r.Error != "" {
				fmt.Printf("✗ %s: %s\n", r.Filename, r.Error)
				continue
			}
			fmt.Printf("✓ %s: %.2fMB → %.2fMB (%.1f%% reduction)\n",
				r.Filename, r.OriginalSizeMB, r.FinalSizeMB, r.ReductionPercentage)
		}
		fmt.Println("\n" + stats.GetSummary())
	}
	return nil
}

// runInspect prints file and EXIF properties of the given image.
func runInspect(filePath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	info, err := inspector.NewInspector(log).Inspect(filePath)
	if err != nil {
		return err
	}

	fmt.Printf("File:        %s\n", info.Path)
	fmt.Printf("Format:      %s\n", info.Format)
	fmt.Printf("Size:        %.2f MB (%d bytes)\n", info.SizeMB(), info.SizeBytes)
	fmt.Printf("Dimensions:  %dx%d\n", info.Width, info.Height)
	if info.CaptureDate != nil {
		fmt.Printf("Captured:    %s\n", info.CaptureDate.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Captured:    no EXIF date")
	}
	if info.Orientation > 0 {
		fmt.Printf("Orientation: %d\n", info.Orientation)
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	if !quiet {
		fmt.Printf("ImageReducer web interface started on http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop the server")
	}

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if maxSizeMB > 0 {
		cfg.MaxFileSizeMB = maxSizeMB
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// printReport prints a single-file reduction report.
func printReport(r reducer.Report, output string) {
	fmt.Printf("Original:  %.2f MB (%dx%d)\n", r.OriginalSizeMB, r.OriginalDimensions.Width, r.OriginalDimensions.Height)
	fmt.Printf("Final:     %.2f MB (%dx%d)\n", r.FinalSizeMB, r.FinalDimensions.Width, r.FinalDimensions.Height)
	fmt.Printf("Reduction: %.1f%%\n", r.ReductionPercentage)
	fmt.Printf("Quality:   %d\n", r.QualityUsed)
	fmt.Printf("Scale:     %.4f\n", r.ScaleFactor)
	fmt.Printf("Output:    %s\n", output)
	if !r.BudgetMet {
		fmt.Println("Note: budget could not be met; this is the smallest result achievable within the search space")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
