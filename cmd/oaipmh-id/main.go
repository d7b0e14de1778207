// oaipmh-id fetches repository information for many endpoints in parallel
// and prints one JSON document per line.
//
//	$ oaipmh-id -w 16 endpoints.txt > info.ndjson
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	oaipmh "github.com/wellcomecollection/oai-pmh"
	"github.com/wellcomecollection/oai-pmh/internal/config"
)

// result is written for every endpoint, successful or not.
type result struct {
	Endpoint string       `json:"endpoint"`
	Info     *oaipmh.Info `json:"info,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type prober struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (p *prober) probe(ctx context.Context, endpoint string) result {
	r := result{Endpoint: endpoint}
	opts, err := p.cfg.ClientOptions()
	if err != nil {
		r.Error = err.Error()
		return r
	}
	c, err := oaipmh.NewClient(endpoint, append(opts, oaipmh.WithLogger(p.logger))...)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	info, err := oaipmh.RepositoryInfo(ctx, c)
	if err != nil {
		p.logger.Warn("failed", "endpoint", endpoint, "error", err)
		r.Error = err.Error()
		return r
	}
	p.logger.Info("done", "endpoint", endpoint, "elapsed", info.Elapsed)
	r.Info = &info
	return r
}

func (p *prober) worker(ctx context.Context, queue chan string, out chan result, wg *sync.WaitGroup) {
	defer wg.Done()
	for endpoint := range queue {
		out <- p.probe(ctx, endpoint)
	}
}

func writer(w io.Writer, in chan result, done chan error) {
	enc := json.NewEncoder(w)
	var err error
	for r := range in {
		if err == nil {
			err = enc.Encode(r)
		}
	}
	done <- err
}

// run probes every endpoint read from r with the given number of workers.
func (p *prober) run(ctx context.Context, r io.Reader, w io.Writer, workers int) error {
	queue := make(chan string)
	out := make(chan result)
	done := make(chan error)

	var wg sync.WaitGroup

	go writer(w, out, done)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, queue, out, &wg)
	}

	scanner := bufio.NewScanner(r)
	var err error
	for scanner.Scan() {
		endpoint := strings.TrimSpace(scanner.Text())
		if endpoint == "" || strings.HasPrefix(endpoint, "#") {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		queue <- endpoint
	}
	err = scanner.Err()

	close(queue)
	wg.Wait()
	close(out)
	if werr := <-done; err == nil {
		err = werr
	}
	return err
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	var (
		configFile string
		workers    int
		debug      bool
	)
	cmd := &cobra.Command{
		Use:          "oaipmh-id [file]",
		Short:        "Fetch repository information for a list of endpoints",
		Version:      oaipmh.Version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if configFile != "" {
				files = append(files, configFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			logger, err := cfg.Logger(stderr, debug)
			if err != nil {
				return err
			}
			var reader io.Reader = cmd.InOrStdin()
			if len(args) > 0 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				reader = f
			}
			if workers < 1 {
				workers = 1
			}
			p := &prober{cfg: cfg, logger: logger}
			return p.run(cmd.Context(), reader, cmd.OutOrStdout(), workers)
		},
	}
	cmd.SetErr(stderr)
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default "+config.DefaultFile+")")
	cmd.Flags().IntVarP(&workers, "workers", "w", 8, "requests in parallel")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every request")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "oaipmh-id: %v\n", err)
		os.Exit(1)
	}
}
