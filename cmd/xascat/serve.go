package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimmlab/xascat/internal/config"
	"github.com/aimmlab/xascat/internal/instrument"
	"github.com/aimmlab/xascat/internal/logger"
	"github.com/aimmlab/xascat/internal/metrics"
	"github.com/aimmlab/xascat/internal/server"
	"github.com/aimmlab/xascat/pkg/blob"
	"github.com/aimmlab/xascat/pkg/catalog"
	"github.com/aimmlab/xascat/pkg/docstore"
	"github.com/aimmlab/xascat/pkg/query"
	"github.com/aimmlab/xascat/pkg/schema"
)

var (
	configPath string
	obsPort    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	serveCmd.Flags().IntVar(&obsPort, "obs-port", 0, "Port for the observability server (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger.InitGlobalLogger(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		WithCaller: cfg.Log.WithCaller,
	})
	log := logger.GetGlobalLogger()
	log.LogServerStart(cfg.ListenAddr, cfg.DBPath, cfg.DataDir)

	store, err := docstore.Open(cfg.DBPath, *log.GetZerolog())
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := blob.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	schemas := schema.NewRegistry()
	if err := schemas.Register(schema.XASValidator{}); err != nil {
		return err
	}

	m := metrics.NewMetrics()
	records := instrument.Collection(store.Collection("records"), m, log)
	samples := instrument.Collection(store.Collection("samples"), m, log)

	root := catalog.NewRoot(catalog.Config{
		Records:  records,
		Samples:  samples,
		Blobs:    blobs,
		Policy:   policy,
		Schemas:  schemas,
		Datasets: cfg.Datasets,
		Log:      *log.GetZerolog(),
	})

	srv := server.NewServer(server.Options{
		Addr:       cfg.ListenAddr,
		Root:       root,
		Blobs:      blobs,
		Queries:    query.NewRegistry(),
		Principals: cfg.Principals(),
		Log:        log,
		Metrics:    m,
	})

	var obs *server.ObservabilityServer
	if obsPort != 0 {
		obs = server.NewObservabilityServer(obsPort, log)
		go func() {
			if err := obs.Start(); err != nil {
				log.Error("Observability server stopped").Err(err).Send()
			}
		}()
	}

	go updateCatalogStats(cmd.Context(), m, records, samples)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if obs != nil {
		if err := obs.Shutdown(ctx); err != nil {
			log.Error("Failed to stop observability server").Err(err).Send()
		}
	}
	return srv.Shutdown(ctx)
}

// updateCatalogStats refreshes record and sample count gauges.
func updateCatalogStats(ctx context.Context, m *metrics.Metrics, records, samples docstore.Collection) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recordCount, err := records.Count(ctx, docstore.All())
			if err != nil {
				continue
			}
			sampleCount, err := samples.Count(ctx, docstore.All())
			if err != nil {
				continue
			}
			m.UpdateCatalogStats(int64(recordCount), int64(sampleCount))
		}
	}
}
