package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/vp8inspector/internal/config"
	"github.com/zsiec/vp8inspector/internal/health"
	"github.com/zsiec/vp8inspector/internal/ingestion/pcap"
	"github.com/zsiec/vp8inspector/internal/ingestion/registry"
	"github.com/zsiec/vp8inspector/internal/ingestion/rtp"
	"github.com/zsiec/vp8inspector/internal/logger"
	"github.com/zsiec/vp8inspector/internal/server"
	"github.com/zsiec/vp8inspector/pkg/version"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalidArgs = 2
)

type overrides struct {
	port        int
	payloadType int
	outputPath  string
	inputFile   string
}

func main() {
	var (
		configPath  string
		showVersion bool
		ov          overrides
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.IntVar(&ov.port, "port", 0, "UDP port to receive RTP on")
	flag.IntVar(&ov.payloadType, "payload-type", 0, "RTP payload type of the VP8 stream (96-127)")
	flag.StringVar(&ov.outputPath, "output-path", "", "Directory for per-stream frame logs")
	flag.StringVar(&ov.inputFile, "input-file", "", "pcap capture to replay instead of listening")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(exitOK)
	}

	os.Exit(run(configPath, ov))
}

func run(configPath string, ov overrides) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	if err := applyOverrides(cfg, ov); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		flag.Usage()
		return exitInvalidArgs
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitFailure
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting VP8 inspector")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Captures are only filtered by port when one was asked for.
	if err := serve(ctx, cfg, log, ov.port); err != nil {
		log.WithError(err).Error("VP8 inspector failed")
		return exitFailure
	}
	log.Info("Shutdown complete")
	return exitOK
}

// applyOverrides folds the command line flags into cfg and validates the
// result.
func applyOverrides(cfg *config.Config, ov overrides) error {
	if ov.port != 0 {
		cfg.Ingestion.RTP.Port = ov.port
		cfg.Ingestion.RTP.Enabled = true
	}
	if ov.payloadType != 0 {
		if ov.payloadType < 0 || ov.payloadType > 255 {
			return fmt.Errorf("payload type out of range: %d", ov.payloadType)
		}
		cfg.Ingestion.RTP.PayloadType = uint8(ov.payloadType)
	}
	if ov.outputPath != "" {
		cfg.Inspector.OutputPath = ov.outputPath
	}
	if ov.inputFile != "" {
		cfg.Ingestion.InputFile = ov.inputFile
	}

	rtpCfg := cfg.Ingestion.RTP
	if cfg.Ingestion.InputFile == "" && (!rtpCfg.Enabled || rtpCfg.Port == 0) {
		return errors.New("either a port or an input file is required")
	}
	return cfg.Validate()
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger, replayPort int) error {
	reg, err := registry.New(ctx, cfg.Registry, log)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.WithError(err).Error("Failed to close registry")
		}
	}()

	listener := rtp.NewListener(&cfg.Ingestion.RTP, cfg.Inspector, reg, logger.ForComponent(log, "rtp"))
	replay := cfg.Ingestion.InputFile != ""

	healthMgr := health.NewManager(log)
	if p, ok := reg.(health.Pinger); ok {
		healthMgr.Register(health.NewRedisChecker(p))
	}
	if !replay {
		healthMgr.Register(health.NewListenerChecker(listener))
	}
	if cfg.Inspector.OutputPath != "" {
		healthMgr.Register(health.NewOutputDirChecker(cfg.Inspector.OutputPath))
	}
	go healthMgr.StartPeriodicChecks(ctx, 10*time.Second)

	if cfg.Metrics.Enabled {
		metricsSrv, err := startMetricsServer(cfg.Metrics, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	srv := server.New(&cfg.Server, log, reg, listener, healthMgr)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown failed")
		}
	}()

	if replay {
		return replayCapture(ctx, cfg.Ingestion.InputFile, replayPort, listener, log)
	}

	if err := listener.Start(); err != nil {
		return fmt.Errorf("failed to start RTP listener: %w", err)
	}
	announceReady()

	<-ctx.Done()
	log.Info("Received shutdown signal")
	return listener.Stop()
}

func replayCapture(ctx context.Context, path string, port int, listener *rtp.Listener, log *logrus.Logger) error {
	listener.SetStreamType(registry.StreamTypePCAP)
	listener.StartReplay()
	announceReady()

	stats, err := pcap.Replay(ctx, path, port, listener.HandlePacket)
	stopErr := listener.Stop()

	log.WithFields(logrus.Fields{
		"file":      path,
		"packets":   stats.Packets,
		"delivered": stats.Delivered,
		"skipped":   stats.Skipped,
		"rejected":  stats.Rejected,
	}).Info("Capture replay finished")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	return stopErr
}

// announceReady tells a supervising process that packets are being
// accepted.
func announceReady() {
	fmt.Fprintln(os.Stdout, `{ "event": "ready" }`)
}

func startMetricsServer(cfg config.MetricsConfig, log *logrus.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port: %w", err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.WithField("addr", ln.Addr().String()).Info("Metrics server started")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server error")
		}
	}()
	return srv, nil
}
