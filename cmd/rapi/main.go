package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/internal/config"
	"github.com/robert-malhotra/go-rapi-client/internal/logger"
	"github.com/robert-malhotra/go-rapi-client/pkg/client"
	"github.com/robert-malhotra/go-rapi-client/pkg/metrics"
)

var version = "dev"

var (
	baseURLFlag = &cli.StringFlag{
		Name:    "url",
		Aliases: []string{"u"},
		Usage:   "RAPI base URL",
	}
	usernameFlag = &cli.StringFlag{
		Name:  "username",
		Usage: "EODMS username (or EODMS_USER)",
	}
	passwordFlag = &cli.StringFlag{
		Name:  "password",
		Usage: "EODMS password (or EODMS_PASSWORD)",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path of a YAML config file",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Usage:   "initial query timeout (e.g. 30s, 2m)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "console or json",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve Prometheus metrics on this address (e.g. :9090)",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format (json or yaml)",
		Value:   "json",
	}
)

// flagKeys maps command line flags to the config keys they override.
var flagKeys = map[string]string{
	"url":          "rapi.url",
	"username":     "rapi.username",
	"password":     "rapi.password",
	"timeout":      "rapi.query_timeout",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"metrics-addr": "metrics.addr",
	"dir":          "download.dir",
	"wait":         "download.wait",
	"max-attempts": "download.max_attempts",
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "rapi",
		Usage:   "Search, order and download EODMS imagery through the RAPI",
		Version: version,
		Flags: []cli.Flag{
			baseURLFlag, usernameFlag, passwordFlag, configFlag, timeoutFlag,
			logLevelFlag, logFormatFlag, metricsAddrFlag, outputFlag,
		},
		Commands: []*cli.Command{
			newCollectionsCommand(),
			newSearchCommand(),
			newRecordCommand(),
			newOrderCommand(),
			newDownloadCommand(),
			newDestinationsCommand(),
			newAccountCommand(),
		},
	}
}

// app is the per-invocation state shared by the command actions.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	client *client.Client
	output string

	metricsSrv *http.Server
}

func newApp(ctx context.Context, cmd *cli.Command) (*app, context.Context, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, ctx, err
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, ctx, err
	}
	log, err := logger.New(cfg.Logging.Format, level)
	if err != nil {
		return nil, ctx, err
	}
	ctx = logger.WithContext(ctx, log)

	a := &app{cfg: cfg, log: log, output: cmd.String(outputFlag.Name)}

	opts := append(cfg.ClientOptions(),
		client.WithLogger(log.Named("rapi")),
		client.WithUserAgent("rapi-cli/"+version))
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, client.WithMetrics(metrics.NewCollector(reg, "rapi")))
		a.serveMetrics(cfg.Metrics.Addr, reg)
	}

	a.client, err = client.NewClient(cfg.RAPI.URL, opts...)
	if err != nil {
		a.close()
		return nil, ctx, err
	}
	if !cfg.RAPI.HasCredentials() {
		log.Warn("no credentials configured; only public endpoints will work")
	}
	return a, ctx, nil
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	v := viper.New()
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			v.Set(key, cmd.Value(flag))
		}
	}
	return config.LoadWith(v, cmd.String(configFlag.Name))
}

func (a *app) serveMetrics(addr string, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", addr))
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	_ = a.log.Sync()
}
