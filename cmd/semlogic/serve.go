package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/c360studio/semlogic/metrics"
	compileservice "github.com/c360studio/semlogic/processor/compile-service"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds draining in-flight compiles on exit.
const shutdownTimeout = 30 * time.Second

func serveCmd(root *rootOptions) *cobra.Command {
	var (
		natsURL     string
		metricsAddr string
		workers     int
		intent      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the NATS compile service",
		Long: `Subscribe to compile requests on NATS (nats.subject, queue group
nats.queue) and reply with compiler output. Prometheus metrics and a health
endpoint are served on --metrics-addr when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.logger

			if natsURL == "" {
				natsURL = a.cfg.NATS.URL
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			a.metrics = metrics.New(reg)

			c, err := a.newCompiler(ctx, intent)
			if err != nil {
				return err
			}

			logger.Info("Connecting to NATS", "url", natsURL)
			nc, err := nats.Connect(natsURL,
				nats.Name(appName),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(time.Second),
			)
			if err != nil {
				return wrapNATSError(err, natsURL)
			}
			defer nc.Close()

			svcCfg := compileservice.DefaultConfig()
			svcCfg.Subject = a.cfg.NATS.Subject
			if a.cfg.NATS.Queue != "" {
				svcCfg.Queue = a.cfg.NATS.Queue
			}
			if workers > 0 {
				svcCfg.Workers = workers
			}
			if a.cfg.Model.Timeout > 0 {
				svcCfg.RequestTimeout = a.cfg.Model.Timeout
			}

			svc, err := compileservice.NewComponent(svcCfg, nc, c, compileservice.WithLogger(logger))
			if err != nil {
				return err
			}
			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start compile service: %w", err)
			}

			var srv *http.Server
			if metricsAddr != "" {
				srv = newMetricsServer(metricsAddr, reg, svc)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", "error", err)
					}
				}()
				logger.Info("Serving metrics", "addr", metricsAddr)
			}

			logger.Info("Semlogic compile service ready",
				"version", Version,
				"subject", svcCfg.Subject,
				"queue", svcCfg.Queue,
				"workers", svcCfg.Workers)

			<-ctx.Done()
			logger.Info("Received shutdown signal")

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Metrics server shutdown failed", "error", err)
				}
			}

			if err := svc.Stop(shutdownTimeout); err != nil {
				logger.Error("Error stopping compile service", "error", err)
			}
			if err := nc.Drain(); err != nil {
				logger.Warn("NATS drain failed", "error", err)
			}

			logger.Info("Semlogic shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL (default nats.url)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics and /health (default metrics.addr)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent compiles")
	cmd.Flags().BoolVar(&intent, "intent", false, "Match instructions to intent templates first (needs GEMINI_API_KEY)")

	return cmd
}

// healthReporter is the health surface of the compile service.
type healthReporter interface {
	Health() compileservice.HealthStatus
}

func newMetricsServer(addr string, g prometheus.Gatherer, svc healthReporter) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := svc.Health()
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
