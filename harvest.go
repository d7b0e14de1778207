package oaipmh

import (
	"context"
	"log/slog"
	"time"

	"emperror.dev/errors"
	"github.com/jinzhu/now"
)

// DefaultFormat is the metadata format every repository must support.
const DefaultFormat = "oai_dc"

// DefaultEarliestDate is used when neither the caller nor the repository
// name a start date.
var DefaultEarliestDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// HarvestOptions select what to harvest. Zero values get defaults: From is
// the earliest datestamp of the repository, Until is now, Prefix is oai_dc.
type HarvestOptions struct {
	Prefix string
	Set    string
	From   time.Time
	Until  time.Time
}

// WindowFailure records a window that could not be harvested.
type WindowFailure struct {
	Window Window
	Err    error
}

// CoverageGap is a span of time without harvested records due to errors.
type CoverageGap struct {
	From  time.Time
	Until time.Time
}

// CoverageReport summarizes a harvest.
type CoverageReport struct {
	Windows   []Window
	Completed []Window
	Failures  []WindowFailure
	Records   int
}

// Complete reports whether every window was harvested.
func (r CoverageReport) Complete() bool {
	return len(r.Failures) == 0 && len(r.Completed) == len(r.Windows)
}

// Gaps returns the failed spans, adjacent failed windows merged.
func (r CoverageReport) Gaps() []CoverageGap {
	var gaps []CoverageGap
	for _, f := range r.Failures {
		if n := len(gaps); n > 0 && !f.Window.From.After(gaps[n-1].Until.Add(time.Nanosecond)) {
			if f.Window.Until.After(gaps[n-1].Until) {
				gaps[n-1].Until = f.Window.Until
			}
			continue
		}
		gaps = append(gaps, CoverageGap{From: f.Window.From, Until: f.Window.Until})
	}
	return gaps
}

// Harvester runs ListRecords over a range of time, one window at a time. A
// failing window is recorded and the harvest moves on to the next one.
type Harvester struct {
	Client   *Client
	Interval Interval
	Logger   *slog.Logger
	// OnWindow, if set, is called after each window with its error, if any.
	OnWindow func(w Window, err error)
}

// NewHarvester returns a harvester with weekly windows.
func NewHarvester(c *Client) *Harvester {
	return &Harvester{Client: c, Interval: Weekly, Logger: c.logger}
}

func (h *Harvester) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

// Windows returns the windows a harvest with the given options would
// request. Missing dates are resolved, which may issue an Identify request.
func (h *Harvester) Windows(ctx context.Context, opts HarvestOptions) ([]Window, error) {
	from, until := opts.From, opts.Until
	if from.IsZero() {
		from = h.earliest(ctx)
	}
	if until.IsZero() {
		until = time.Now()
	}
	return h.Interval.Split(Window{From: from.UTC(), Until: until.UTC()})
}

func (h *Harvester) earliest(ctx context.Context) time.Time {
	id, err := h.Client.Identify(ctx)
	if err != nil {
		h.logger().WarnContext(ctx, "cannot determine earliest datestamp", "error", err,
			"fallback", DefaultEarliestDate)
		return DefaultEarliestDate
	}
	return id.EarliestDatestamp
}

// bounds turns a window into request datestamps. Unless seconds were asked
// for, windows are sent as whole days.
func (h *Harvester) bounds(w Window) (Datestamp, Datestamp) {
	if h.Client.Granularity() == GranularitySecond {
		return DatestampTime(w.From), DatestampTime(w.Until.Truncate(time.Second))
	}
	return DatestampTime(now.New(w.From).BeginningOfDay()), DatestampTime(now.New(w.Until).BeginningOfDay())
}

// Harvest calls fn for every record in the requested range. Errors from fn
// and a cancelled context abort the harvest; all other errors are recorded
// per window in the report.
func (h *Harvester) Harvest(ctx context.Context, opts HarvestOptions, fn func(Record) error) (CoverageReport, error) {
	var report CoverageReport
	if opts.Prefix == "" {
		opts.Prefix = DefaultFormat
	}
	windows, err := h.Windows(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Windows = windows
	log := h.logger()

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		from, until := h.bounds(w)
		pager := h.Client.ListRecords(ctx, ListOptions{
			Prefix: opts.Prefix,
			From:   from,
			Until:  until,
			Set:    opts.Set,
		})
		var n int
		for pager.Next() {
			if err := fn(pager.Value()); err != nil {
				return report, errors.WrapIff(err, "harvest window %s", w)
			}
			n++
			report.Records++
		}
		err := pager.Err()
		switch {
		case err == nil, IsKind(err, KindNoRecordsMatch):
			err = nil
			report.Completed = append(report.Completed, w)
			log.InfoContext(ctx, "harvested window", "window", w.String(), "records", n,
				"pages", pager.Pages())
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			report.Failures = append(report.Failures, WindowFailure{Window: w, Err: err})
			log.WarnContext(ctx, "window failed", "window", w.String(), "records", n,
				"error", err)
		}
		if h.OnWindow != nil {
			h.OnWindow(w, err)
		}
	}
	return report, nil
}
