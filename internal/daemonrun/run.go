// Package daemonrun holds the daemon process entry point shared by the
// distilld binary and the CLI's daemon subcommand.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"distill/internal/analyze"
	"distill/internal/config"
	"distill/internal/daemon"
	"distill/internal/download"
	"distill/internal/ipc"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/queue"
	"distill/internal/transcribe"
	"distill/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	SocketPath  string
	Development bool
}

// Run starts the distill daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "distill.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	manager.ConfigureStages(workflow.StageSet{
		Download:   download.NewDownloader(cfg, logger),
		Transcribe: transcribe.NewTranscriber(cfg, logger),
		Analyze:    analyze.NewAnalyzer(cfg, manager.Vocabulary(), logger),
	})

	d, err := daemon.New(cfg, store, logger, manager, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "distill.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon may not process queue items"),
		)
	}

	<-signalCtx.Done()
	logger.Info("distill daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ytdlp := cfg.Download.YtDlpBinary
	ffmpeg := cfg.Download.FFmpegBinary
	whisperx := cfg.Transcription.WhisperXBinary
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ytdlp_available", binaryAvailable(ytdlp)),
		logging.String("ytdlp_binary", ytdlp),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("whisperx_available", binaryAvailable(whisperx)),
		logging.String("whisperx_binary", whisperx),
		logging.Bool("analysis_key_present", strings.TrimSpace(cfg.Analysis.APIKey) != ""),
		logging.String("analysis_model", cfg.Analysis.Model),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
