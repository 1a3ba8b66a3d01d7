// Command aodvv2d runs a standalone AODVv2 router: it binds the engine to
// a UDP/IPv6 transport on the requested interfaces and exposes Prometheus
// metrics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soypat/aodvv2/engine"
	"github.com/soypat/aodvv2/metrics"
	"github.com/soypat/aodvv2/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("aodvv2d exiting", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	tr, err := transport.Listen(cfg.engine.UDPPort, cfg.engine.MulticastAddr)
	if err != nil {
		return fmt.Errorf("aodvv2d: open transport: %w", err)
	}
	defer tr.Close()

	for _, name := range cfg.Interfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return fmt.Errorf("aodvv2d: lookup interface %s: %w", name, err)
		}
		if err := tr.JoinGroup(iface); err != nil {
			return fmt.Errorf("aodvv2d: %w", err)
		}
		log.Info("joined multicast group", slog.String("interface", name))
	}

	m := metrics.New("")
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
		m,
	)

	eng := engine.New(cfg.SelfAddr, tr, cfg.engine, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", slog.String("err", err.Error()))
		}
	}()
	defer httpServer.Shutdown(context.Background())

	log.Info("aodvv2d started",
		slog.String("self_addr", cfg.SelfAddr.String()),
		slog.String("metrics_listen", cfg.ListenAddress))

	err = eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
