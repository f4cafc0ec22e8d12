package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tomostream/tomostream/internal/chunk"
	"github.com/tomostream/tomostream/internal/config"
	"github.com/tomostream/tomostream/internal/logging"
	"github.com/tomostream/tomostream/internal/monitoring"
	"github.com/tomostream/tomostream/internal/reader"
	"github.com/tomostream/tomostream/internal/recon"
	"github.com/tomostream/tomostream/internal/storage"
)

func main() {
	// Parse flags
	dataDir := flag.String("data", "", "Dataset directory (proj.bin, flat.bin, dark.bin)")
	outDir := flag.String("out", "", "Output store directory")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (empty disables)")
	flag.Parse()

	if *dataDir == "" || *outDir == "" {
		log.Fatal("both -data and -out are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := monitoring.NewNopMetrics()
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = monitoring.NewMetrics(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// SIGINT/SIGTERM cancel the run at the next chunk boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := reader.OpenFileSource(*dataDir, cfg.Dataset.Rows, cfg.Dataset.Width)
	if err != nil {
		logger.Fatal("failed to open dataset", zap.Error(err))
	}
	defer src.Close() //nolint:errcheck

	start := time.Now()
	steps := recon.NewSteps(cfg, src, &recon.Direct{}, logger, metrics)
	vol, err := steps.Run(ctx)
	if err != nil {
		logger.Fatal("reconstruction failed", zap.Error(err))
	}

	if err := writeResult(*outDir, vol, cfg.Chunks.Projections); err != nil {
		logger.Fatal("failed to write result", zap.Error(err))
	}
	logger.Info("reconstruction finished",
		zap.String("out", *outDir),
		zap.Duration("elapsed", time.Since(start)))
}

// writeResult copies the reconstructed volume into a chunked store at dir.
func writeResult(dir string, vol storage.Array, chunkLen int) error {
	shape := vol.Shape()
	dst, err := storage.CreateStore(dir, shape, chunkLen)
	if err != nil {
		return err
	}
	plan, err := chunk.NewPlan(shape[0], chunkLen)
	if err != nil {
		return err
	}
	buf := make([]float32, shape.SliceElems(0, plan.MaxLength()))
	for j := 0; j < plan.Count(); j++ {
		off, n := plan.Offset(j), plan.Length(j)
		part := buf[:shape.SliceElems(0, n)]
		if err := vol.ReadSlice(part, 0, off, n); err != nil {
			return err
		}
		if err := dst.WriteSlice(part, 0, off, n); err != nil {
			return err
		}
	}
	return nil
}
