// oaipmh talks to OAI-PMH repositories.
//
//	$ oaipmh identify http://digitalcommons.unmc.edu/do/oai/
//	$ oaipmh harvest --from 2015-01-01 --progress http://digitalcommons.unmc.edu/do/oai/ > metadata.xml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"emperror.dev/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	oaipmh "github.com/wellcomecollection/oai-pmh"
	"github.com/wellcomecollection/oai-pmh/internal/config"
)

var errNoEndpoint = errors.NewPlain("endpoint URL required")

// app carries what every subcommand needs.
type app struct {
	configFile  string
	debug       bool
	format      string
	metricsAddr string

	cfg     *config.Config
	logger  *slog.Logger
	metrics *oaipmh.Metrics
	stderr  io.Writer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "oaipmh: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(os.Stderr).ExecuteContext(ctx)
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}
	cmd := &cobra.Command{
		Use:           "oaipmh",
		Short:         "OAI-PMH harvesting client",
		Version:       oaipmh.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default "+config.DefaultFile+")")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "log every request")
	cmd.PersistentFlags().StringVarP(&a.format, "format", "f", "json", "output format: json|yaml")
	cmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	cmd.AddCommand(
		a.identifyCmd(),
		a.setsCmd(),
		a.formatsCmd(),
		a.getCmd(),
		a.identifiersCmd(),
		a.recordsCmd(),
		a.harvestCmd(),
		a.infoCmd(),
	)
	return cmd
}

// setup loads the configuration, builds the logger and starts the metrics
// endpoint, if requested.
func (a *app) setup(ctx context.Context) error {
	var files []string
	if a.configFile != "" {
		files = append(files, a.configFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = cfg.Logger(a.stderr, a.debug); err != nil {
		return err
	}
	addr := a.metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = oaipmh.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		a.logger.Info("serving metrics", "addr", addr)
	}
	return nil
}

// client returns a client for the endpoint given as first argument, or the
// configured one.
func (a *app) client(args []string) (*oaipmh.Client, error) {
	endpoint := a.cfg.Endpoint
	if len(args) > 0 {
		endpoint = args[0]
	}
	if endpoint == "" {
		return nil, errNoEndpoint
	}
	opts, err := a.cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, oaipmh.WithLogger(a.logger), oaipmh.WithMetrics(a.metrics))
	return oaipmh.NewClient(endpoint, opts...)
}

// encoder writes values one after another in the selected format. JSON
// values go on a single line each.
type encoder interface {
	Encode(v any) error
}

func (a *app) encoder(w io.Writer) (encoder, error) {
	switch a.format {
	case "json", "":
		return json.NewEncoder(w), nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return enc, nil
	}
	return nil, errors.Errorf("unsupported format %q (expected json|yaml)", a.format)
}

// printAll drains a pager into the encoder.
func printAll[T any](enc encoder, p *oaipmh.Pager[T]) error {
	for p.Next() {
		if err := enc.Encode(p.Value()); err != nil {
			return err
		}
	}
	return p.Err()
}

// parseDate parses a from or until flag value. An empty value is unset.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := oaipmh.ParseDatestamp(s)
	if err != nil {
		return t, errors.WrapIf(err, "expected YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ")
	}
	return t, nil
}
