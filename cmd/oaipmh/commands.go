package main

import (
	"bufio"
	"io"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	oaipmh "github.com/wellcomecollection/oai-pmh"
)

func (a *app) identifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify [endpoint]",
		Short: "Show repository information",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			id, err := c.Identify(cmd.Context())
			if err != nil {
				return err
			}
			return enc.Encode(id)
		},
	}
}

func (a *app) setsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sets [endpoint]",
		Short: "List sets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return printAll(enc, c.ListSets(cmd.Context()))
		},
	}
}

func (a *app) formatsCmd() *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "formats [endpoint]",
		Short: "List metadata formats of the repository or of a single item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return printAll(enc, c.ListMetadataFormats(cmd.Context(), identifier))
		},
	}
	cmd.Flags().StringVarP(&identifier, "identifier", "i", "", "item identifier")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var (
		prefix string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "get [endpoint] <identifier>",
		Short: "Fetch a single record",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args[:len(args)-1])
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = a.cfg.Prefix
			}
			rec, err := c.GetRecord(cmd.Context(), args[len(args)-1], prefix)
			if err != nil {
				return err
			}
			if raw {
				rw := newRecordWriter(cmd.OutOrStdout(), "")
				if err := rw.write(rec); err != nil {
					return err
				}
				return rw.close()
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return enc.Encode(rec)
		},
	}
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "metadata prefix (default from config)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the metadata XML only")
	return cmd
}

// listFlags are shared by identifiers and records.
type listFlags struct {
	prefix string
	set    string
	from   string
	until  string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.prefix, "prefix", "p", "", "metadata prefix (default from config)")
	cmd.Flags().StringVarP(&f.set, "set", "s", "", "set spec")
	cmd.Flags().StringVar(&f.from, "from", "", "lower bound, YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ")
	cmd.Flags().StringVar(&f.until, "until", "", "upper bound, YYYY-MM-DD or YYYY-MM-DDThh:mm:ssZ")
}

func (f *listFlags) options(defaultPrefix string) (oaipmh.ListOptions, error) {
	opts := oaipmh.ListOptions{Prefix: f.prefix, Set: f.set}
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	from, err := parseDate(f.from)
	if err != nil {
		return opts, err
	}
	until, err := parseDate(f.until)
	if err != nil {
		return opts, err
	}
	opts.From, opts.Until = oaipmh.DatestampTime(from), oaipmh.DatestampTime(until)
	return opts, nil
}

func (a *app) identifiersCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "identifiers [endpoint]",
		Short: "List record headers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			opts, err := flags.options(a.cfg.Prefix)
			if err != nil {
				return err
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return printAll(enc, c.ListIdentifiers(cmd.Context(), opts))
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) recordsCmd() *cobra.Command {
	var (
		flags listFlags
		root  string
	)
	cmd := &cobra.Command{
		Use:   "records [endpoint]",
		Short: "Write record metadata as XML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			opts, err := flags.options(a.cfg.Prefix)
			if err != nil {
				return err
			}
			rw := newRecordWriter(cmd.OutOrStdout(), root)
			p := c.ListRecords(cmd.Context(), opts)
			for p.Next() {
				if err := rw.write(p.Value()); err != nil {
					return err
				}
			}
			if err := rw.close(); err != nil {
				return err
			}
			if oaipmh.IsKind(p.Err(), oaipmh.KindNoRecordsMatch) {
				return nil
			}
			return p.Err()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&root, "root", "r", "", "name of artificial root element tag to use")
	return cmd
}

func (a *app) harvestCmd() *cobra.Command {
	var (
		flags    listFlags
		root     string
		interval string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "harvest [endpoint]",
		Short: "Harvest records window by window and write metadata as XML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(args)
			if err != nil {
				return err
			}
			if interval == "" {
				interval = a.cfg.Interval
			}
			iv, err := oaipmh.ParseInterval(interval)
			if err != nil {
				return err
			}
			opts := oaipmh.HarvestOptions{Prefix: flags.prefix, Set: flags.set}
			if opts.Prefix == "" {
				opts.Prefix = a.cfg.Prefix
			}
			if opts.From, err = parseDate(flags.from); err != nil {
				return err
			}
			if opts.Until, err = parseDate(flags.until); err != nil {
				return err
			}

			log := a.logger.With("run", uuid.NewString(), "endpoint", c.Endpoint())
			h := oaipmh.NewHarvester(c)
			h.Interval = iv
			h.Logger = log

			windows, err := h.Windows(ctx, opts)
			if err != nil {
				return err
			}
			opts.From, opts.Until = windows[0].From, windows[len(windows)-1].Until
			if progress {
				bar := progressbar.NewOptions(len(windows),
					progressbar.OptionSetWriter(a.stderr),
					progressbar.OptionSetDescription("harvesting"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish())
				h.OnWindow = func(oaipmh.Window, error) { _ = bar.Add(1) }
				defer func() { _ = bar.Finish() }()
			}

			rw := newRecordWriter(cmd.OutOrStdout(), root)
			log.Info("harvest started", "windows", len(windows), "interval", string(iv))
			report, err := h.Harvest(ctx, opts, rw.write)
			if cerr := rw.close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Info("harvest finished", "windows", len(report.Windows),
				"completed", len(report.Completed), "records", report.Records)
			if report.Complete() {
				return nil
			}
			for _, gap := range report.Gaps() {
				log.Warn("gap", "from", gap.From, "until", gap.Until)
			}
			return errors.Errorf("harvest incomplete: %d of %d windows failed",
				len(report.Failures), len(report.Windows))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&root, "root", "r", "", "name of artificial root element tag to use")
	cmd.Flags().StringVarP(&interval, "interval", "i", "", "window size: day|week|month (default from config)")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [endpoint]",
		Short: "Fetch identify, sets and formats at once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(args)
			if err != nil {
				return err
			}
			enc, err := a.encoder(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			info, err := oaipmh.RepositoryInfo(cmd.Context(), c)
			if err != nil {
				return err
			}
			return enc.Encode(info)
		},
	}
}

// recordWriter writes metadata fragments, optionally wrapped in a synthetic
// root element. Records without metadata are skipped.
type recordWriter struct {
	w       *bufio.Writer
	root    string
	started bool
}

func newRecordWriter(w io.Writer, root string) *recordWriter {
	return &recordWriter{w: bufio.NewWriter(w), root: root}
}

func (rw *recordWriter) start() error {
	if rw.started {
		return nil
	}
	rw.started = true
	if rw.root == "" {
		return nil
	}
	_, err := rw.w.WriteString("<" + rw.root + ">\n")
	return err
}

func (rw *recordWriter) write(rec oaipmh.Record) error {
	if err := rw.start(); err != nil {
		return err
	}
	if rec.Metadata == nil {
		return nil
	}
	if _, err := rec.Metadata.WriteTo(rw.w); err != nil {
		return errors.Wrap(err, "cannot write record")
	}
	return rw.w.WriteByte('\n')
}

func (rw *recordWriter) close() error {
	if err := rw.start(); err != nil {
		return err
	}
	if rw.root != "" {
		if _, err := rw.w.WriteString("</" + rw.root + ">\n"); err != nil {
			return err
		}
	}
	return rw.w.Flush()
}
