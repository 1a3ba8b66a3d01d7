package main

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/spf13/pflag"

	"github.com/soypat/aodvv2/config"
)

const (
	defaultListenAddress  = ":9684"
	defaultMetricsPath    = "/metrics"
	defaultMulticastGroup = "ff02::6d"
)

// daemonConfig captures the command-line configuration for aodvv2d: the
// engine's own constants (config.Constants) plus process-level concerns
// the engine doesn't know about (interfaces to join, metrics exposition).
type daemonConfig struct {
	engine config.Constants

	Interfaces    []string
	ListenAddress string
	MetricsPath   string
	LogLevel      slog.Level
	SelfAddr      netip.Addr
}

func parseFlags(args []string) (daemonConfig, error) {
	cfg := daemonConfig{engine: config.Default()}

	fs := pflag.NewFlagSet("aodvv2d", pflag.ContinueOnError)
	var selfAddr, multicastGroup, logLevel string

	fs.StringVar(&selfAddr, "self-addr", "", "this router's IPv6 address (required)")
	fs.StringSliceVar(&cfg.Interfaces, "interface", nil, "network interface to join the AODVv2 multicast group on (repeatable)")
	fs.StringVar(&cfg.ListenAddress, "metrics-listen-address", defaultListenAddress, "address for the Prometheus metrics HTTP endpoint")
	fs.StringVar(&cfg.MetricsPath, "metrics-path", defaultMetricsPath, "HTTP path for Prometheus metrics")
	fs.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&multicastGroup, "multicast-group", defaultMulticastGroup, "AODVv2 multicast group address")
	fs.Uint16Var(&cfg.engine.UDPPort, "port", cfg.engine.UDPPort, "AODVv2 UDP port")
	fs.DurationVar(&cfg.engine.RREQWaitTime, "rreq-wait-time", cfg.engine.RREQWaitTime, "time to wait for an RREP before retrying route discovery")
	fs.IntVar(&cfg.engine.MaxRoutingEntries, "max-routing-entries", cfg.engine.MaxRoutingEntries, "Routing Information Set capacity")
	fs.IntVar(&cfg.engine.MaxClients, "max-clients", cfg.engine.MaxClients, "Router Client Set capacity")

	if err := fs.Parse(args); err != nil {
		return daemonConfig{}, err
	}

	if selfAddr == "" {
		return daemonConfig{}, fmt.Errorf("aodvv2d: --self-addr is required")
	}
	addr, err := netip.ParseAddr(selfAddr)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("aodvv2d: parse --self-addr: %w", err)
	}
	cfg.SelfAddr = addr

	group, err := netip.ParseAddr(multicastGroup)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("aodvv2d: parse --multicast-group: %w", err)
	}
	cfg.engine.MulticastAddr = group

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return daemonConfig{}, fmt.Errorf("aodvv2d: parse --log-level: %w", err)
	}
	if len(cfg.Interfaces) == 0 {
		return daemonConfig{}, fmt.Errorf("aodvv2d: at least one --interface is required")
	}

	return cfg, nil
}
