package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/config"
	"github.com/vm-affekt/streamfetch/internal/extractor"
	"github.com/vm-affekt/streamfetch/internal/httpapi"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"github.com/vm-affekt/streamfetch/internal/platform"
	"github.com/vm-affekt/streamfetch/internal/proxy"
	"github.com/vm-affekt/streamfetch/internal/scratch"
)

const (
	resolveTimeout = 10 * time.Second
	sweepInterval  = time.Hour
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service (default)",
	RunE:  serveRun,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stale temp-file artifacts once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Sugar()
		defer log.Sync()
		n, err := newSweeper(cfg).Sweep(cmd.Context())
		log.Infof("Removed %d stale scratch file(s) from %q", n, cfg.ScratchDir)
		return err
	},
}

func newSweeper(cfg *config.Config) *scratch.Sweeper {
	return scratch.NewSweeper(cfg.ScratchDir, extractor.ScratchPrefix, cfg.ScratchMaxAge)
}

func newInvoker(cfg *config.Config) app.Invoker {
	if cfg.Engine == config.EngineYtLib {
		return extractor.NewLibrary(cfg.FFmpegPath, cfg.KillGrace, cfg.Cookie, debugMode)
	}
	return extractor.NewYtDlp(extractor.Config{
		YtDlpPath:  cfg.YtDlpPath,
		FFmpegPath: cfg.FFmpegPath,
		Mode:       cfg.OutputMode,
		ScratchDir: cfg.ScratchDir,
		Credentials: extractor.Credentials{
			Cookie:      cfg.Cookie,
			CookiesFile: cfg.CookiesFile,
		},
		KillGrace:    cfg.KillGrace,
		ResolveTitle: cfg.ResolveTitle,
	})
}

func serveRun(cmd *cobra.Command, args []string) error {
	log := logger.Sugar()
	defer log.Sync()

	log.Infof("[STREAMFETCH] Application is running. Version=%s, environment mode=%q", Version, cfg.Mode)
	log.Infof("Used config file path: %v", cfg.ConfigFileUsed)
	log.Infow("Extraction settings",
		"engine", cfg.Engine,
		"output_mode", cfg.OutputMode.String(),
		"download_timeout", cfg.DownloadTimeout,
		"scratch_dir", cfg.ScratchDir,
		"cookie_set", cfg.Cookie != "" || cfg.CookiesFile != "",
	)

	opts := httpapi.Options{
		Addr:            cfg.Addr(),
		Invoker:         newInvoker(cfg),
		Proxy:           proxy.New(cfg.RelayChunkSize, cfg.RelayBuffers),
		DownloadTimeout: cfg.DownloadTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
		DebugMode:       debugMode,
	}
	if cfg.ResolveRedirects {
		opts.Resolver = platform.NewResolver(resolveTimeout, platform.DefaultShortHosts)
	}
	server := httpapi.New(opts)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	if cfg.OutputMode == app.ModeTempFile && cfg.ScratchMaxAge > 0 {
		go newSweeper(cfg).Run(logging.NewContextS(bgCtx, "component", "scratch_sweeper"), sweepInterval)
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()
	log.Info("HTTP server started. Service is ready!")

	sigInt := make(chan os.Signal, 1)
	signal.Notify(sigInt, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case shutSig := <-sigInt:
		log.Infof("Signal received: %v. Shutdown server...", shutSig)
	case runErr = <-srvErr:
		if runErr != nil {
			log.Errorf("HTTP server stopped: %v", runErr)
		}
	}

	stopBackground()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Failed to shutdown server gracefully: %v", err)
	}
	log.Info("Shutdown work is over. Bye :-)")
	return runErr
}
