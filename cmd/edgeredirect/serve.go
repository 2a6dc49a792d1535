package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/edgeredirect/internal/config"
	"github.com/blackwell-systems/edgeredirect/internal/edge"
	"github.com/blackwell-systems/edgeredirect/internal/logging"
	"github.com/blackwell-systems/edgeredirect/internal/observability"
	"github.com/blackwell-systems/edgeredirect/internal/reload"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

func newServeCmd() *cobra.Command {
	var configPath string
	var listenOverride string
	var originOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve redirects for the configured hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cfg, listenOverride, originOverride)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logging.NewLogger(cfg.Logging, cfg.ResolvePath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&listenOverride, "listen", "", "Override server.listen")
	cmd.Flags().StringVar(&originOverride, "origin", "", "Override origin.url")

	return cmd
}

func applyOverrides(cfg *config.Config, listen, origin string) {
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if origin != "" {
		cfg.Origin.URL = origin
	}
}

func runServer(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	entry := log.WithFields(logging.BaseFields("serve", cfg.Path()))

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	gw, err := edge.New(cfg, table)
	if err != nil {
		return err
	}
	gw.SetLogger(entry)

	if cfg.Logging.DecisionLog != "" {
		decisions, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetDecisionLogger(decisions)
	}

	var metrics *observability.Metrics
	var adminSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		gw.SetMetrics(metrics)
		adminSrv = newAdminServer(cfg.Metrics.Listen, metrics, reg)
	}

	var watcher *reload.Watcher
	if cfg.Reload.Watch {
		watcher, err = reload.NewWatcher(cfg.Path(), gw, entry)
		if err != nil {
			return err
		}
		watcher.SetMetrics(metrics)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(signalCtx)

	group.Go(func() error {
		entry.WithFields(logrus.Fields{"listen": srv.Addr, "rules": table.Len(), "tls": cfg.Server.TLS.Enabled}).Info("edge server starting")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if adminSrv != nil {
		group.Go(func() error {
			entry.WithField("listen", adminSrv.Addr).Info("metrics server starting")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if watcher != nil {
		group.Go(func() error {
			return watcher.Run(groupCtx)
		})
	}

	if cfg.RateLimit.Enabled {
		group.Go(func() error {
			return gw.RunMaintenance(groupCtx, sweepInterval)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		entry.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			err = errors.Join(err, adminSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	return group.Wait()
}

func newAdminServer(addr string, metrics *observability.Metrics, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
