package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vm-affekt/streamfetch/internal/config"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	v         = config.New()
	cfg       *config.Config
	logger    *zap.Logger
	debugMode bool
)

var rootCmd = &cobra.Command{
	Use:   "streamfetch",
	Short: "HTTP service that streams videos from YouTube, Facebook and TikTok",
	Long: `streamfetch accepts a video page URL, runs yt-dlp (or the built-in YouTube
library) and relays the media to the client as it is produced.`,
	PersistentPreRunE: setup,
	RunE:              serveRun,
	SilenceUsage:      true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Int("port", 0, "HTTP port (overrides PORT)")
	flags.String("mode", "", "Logging mode: prod | debug")
	flags.String("engine", "", "Extraction engine: ytdlp | ytlib")
	flags.String("output-mode", "", "Extractor output: stream | tempfile")
	flags.String("scratch-dir", "", "Directory for temp-file artifacts")
	bindFlag(v, "PORT", "port")
	bindFlag(v, "MODE", "mode")
	bindFlag(v, "ENGINE", "engine")
	bindFlag(v, "OUTPUT_MODE", "output-mode")
	bindFlag(v, "SCRATCH_DIR", "scratch-dir")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Errorf("failed to bind flag %q: %w", flag, err))
	}
}

// setup loads the configuration and builds the root logger.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("[WARN] %v\n", err)
	}

	var err error
	cfg, err = config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ConfigFileUsed == "" {
		fmt.Println("Config file not found. Environment variables will be used as config.")
	}
	if cfg.LogFilePath == "" {
		fmt.Println("[WARN] No LOG_FILE_PATH specified! Using 'stderr' only.")
	}

	logger, debugMode, err = logging.Build(cfg.Mode, cfg.LogFilePath)
	if err != nil {
		return err
	}
	logging.SetLogger(logger)
	return nil
}
