//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//

package oaipmh

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/beevik/etree"
	"github.com/cenkalti/backoff/v4"
	"github.com/sethgrid/pester"
)

// Version of this client, sent in the default User-Agent.
const Version = "0.2.0"

// DefaultTimeout applies to each single HTTP attempt.
const DefaultTimeout = 20 * time.Second

// HttpRequestDoer lets us use pester, DefaultClient or other HTTP client
// implementations interchangably.
type HttpRequestDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a single OAI-PMH endpoint. A Client is safe for concurrent
// use; each pager it returns keeps its own state.
type Client struct {
	endpoint    string
	doer        HttpRequestDoer
	timeout     time.Duration
	method      string
	granularity Granularity
	retry       RetryPolicy
	logger      *slog.Logger
	metrics     *Metrics
	userAgent   string
	maxRequests int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, e.g. http.DefaultClient or a
// pester.Client. Retries on timeouts are done by the Client itself, so the
// doer should make a single attempt per call.
func WithHTTPClient(doer HttpRequestDoer) Option {
	return func(c *Client) { c.doer = doer }
}

// WithTimeout sets the limit for each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMethod selects GET or POST.
func WithMethod(method string) Option {
	return func(c *Client) { c.method = strings.ToUpper(method) }
}

// WithGranularity fixes the datestamp granularity used for from and until.
func WithGranularity(g Granularity) Option {
	return func(c *Client) { c.granularity = g }
}

// WithMaxRetries sets the total number of attempts on timeouts.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.retry.MaxAttempts = n }
}

// WithBackoff sets the initial retry delay and its cap.
func WithBackoff(factor, max time.Duration) Option {
	return func(c *Client) {
		c.retry.Factor = factor
		c.retry.MaxBackoff = max
	}
}

// WithLogger sets the logger. Requests are logged at debug level, retries at
// warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxRequests limits the number of requests a single list may take. Zero
// means no limit. Guards against endless resumption token chains.
func WithMaxRequests(n int) Option {
	return func(c *Client) { c.maxRequests = n }
}

// newTransport returns a resilient HTTP client making a single attempt.
func newTransport(timeout time.Duration) *pester.Client {
	c := pester.New()
	c.Timeout = timeout
	c.MaxRetries = 1
	c.Backoff = func(int) time.Duration { return 0 }
	return c
}

// NewClient returns a client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoEndpoint
	}
	c := &Client{
		endpoint:    baseURL,
		timeout:     DefaultTimeout,
		method:      http.MethodGet,
		granularity: GranularityAuto,
		retry:       DefaultRetryPolicy,
		userAgent:   "oaipmh/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch c.method {
	case http.MethodGet, http.MethodPost:
	default:
		return nil, errors.WithDetails(ErrInvalidMethod, "method", c.method)
	}
	if _, err := ParseGranularity(string(c.granularity)); err != nil {
		return nil, err
	}
	if c.doer == nil {
		c.doer = newTransport(c.timeout)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Granularity returns the configured datestamp granularity.
func (c *Client) Granularity() Granularity {
	return c.granularity
}

// response is the raw outcome of one HTTP exchange.
type response struct {
	status     int
	statusText string
	body       []byte
}

// newHTTPRequest builds the HTTP request for req. It returns the resolved URL
// for logging as well.
func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, string, error) {
	link, err := req.URL(c.endpoint)
	if err != nil {
		return nil, "", err
	}
	if c.method == http.MethodGet {
		hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		return hreq, link, err
	}
	values, err := req.Values()
	if err != nil {
		return nil, "", err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, "", err
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return hreq, link, nil
}

// attempt runs a single HTTP exchange under the per attempt timeout.
func (c *Client) attempt(ctx context.Context, req Request) (response, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hreq, _, err := c.newHTTPRequest(actx, req)
	if err != nil {
		return response{}, err
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	resp, err := c.doer.Do(hreq)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, statusText: resp.Status, body: buf.Bytes()}, nil
}

// roundTrip sends req, retrying timeouts according to the retry policy.
func (c *Client) roundTrip(ctx context.Context, req Request) (response, error) {
	link, err := req.URL(c.endpoint)
	if err != nil {
		return response{}, err
	}
	c.logger.DebugContext(ctx, "OAI request", "method", c.method, "url", link)

	var n int
	operation := func() (response, error) {
		resp, err := c.attempt(ctx, req)
		if err != nil && !isTimeout(ctx, err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		n++
		c.metrics.retried(req.Verb)
		c.logger.WarnContext(ctx, "OAI request timed out, retrying",
			"verb", req.Verb, "url", link, "retry", n, "wait", wait, "error", err)
	}
	b := backoff.WithContext(&policyBackOff{policy: c.retry}, ctx)
	return backoff.RetryNotifyWithData[response](operation, b, notify)
}

// dispatch sends req and returns the root element of the response. Protocol
// errors in the body take precedence over the HTTP status.
func (c *Client) dispatch(ctx context.Context, req Request) (*etree.Element, error) {
	started := time.Now()
	root, err := c.exchange(ctx, req)
	c.metrics.observe(req.Verb, time.Since(started), err)
	return root, err
}

func (c *Client) exchange(ctx context.Context, req Request) (*etree.Element, error) {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.status < 200 || resp.status > 299 {
		_, err := parseResponse(resp.body)
		var oaiErr OAIError
		if errors.As(err, &oaiErr) {
			return nil, oaiErr
		}
		link, _ := req.URL(c.endpoint)
		return nil, &StatusError{StatusCode: resp.status, Status: resp.statusText, URL: link}
	}
	return parseResponse(resp.body)
}

// Identify returns information about the repository.
func (c *Client) Identify(ctx context.Context) (Identify, error) {
	root, err := c.dispatch(ctx, Request{Verb: VerbIdentify})
	if err != nil {
		return Identify{}, err
	}
	return decodeIdentify(root)
}

// GetRecord returns a single record in the given metadata format.
func (c *Client) GetRecord(ctx context.Context, identifier, prefix string) (Record, error) {
	if identifier == "" {
		return Record{}, errors.WithDetails(ErrMissingArgument, "argument", "identifier")
	}
	if prefix == "" {
		return Record{}, errors.WithDetails(ErrMissingArgument, "argument", "metadataPrefix")
	}
	root, err := c.dispatch(ctx, Request{Verb: VerbGetRecord, Identifier: identifier, Prefix: prefix})
	if err != nil {
		return Record{}, err
	}
	return decodeGetRecord(root)
}

// ListSets returns a pager over the set structure of the repository.
func (c *Client) ListSets(ctx context.Context) *Pager[Set] {
	return newPager(ctx, c, Request{Verb: VerbListSets}, decodeListSets)
}

// ListMetadataFormats returns a pager over the metadata formats available
// from the repository, or for a single item, if identifier is not empty.
func (c *Client) ListMetadataFormats(ctx context.Context, identifier string) *Pager[MetadataFormat] {
	req := Request{Verb: VerbListMetadataFormats, Identifier: identifier}
	return newPager(ctx, c, req, decodeListMetadataFormats)
}

// ListOptions select records for ListIdentifiers and ListRecords.
type ListOptions struct {
	// Prefix is the metadata prefix, required.
	Prefix string
	From   Datestamp
	Until  Datestamp
	Set    string
}

// request turns list options into a request. Both bounds are formatted with
// the same granularity.
func (o ListOptions) request(verb string, g Granularity) Request {
	from, until := FormatRange(g, o.From, o.Until)
	return Request{Verb: verb, Prefix: o.Prefix, From: from, Until: until, Set: o.Set}
}

// ListIdentifiers returns a pager over record headers.
func (c *Client) ListIdentifiers(ctx context.Context, opts ListOptions) *Pager[Header] {
	if opts.Prefix == "" {
		return failedPager[Header](errors.WithDetails(ErrMissingArgument, "argument", "metadataPrefix"))
	}
	return newPager(ctx, c, opts.request(VerbListIdentifiers, c.granularity), decodeListIdentifiers)
}

// ListRecords returns a pager over records.
func (c *Client) ListRecords(ctx context.Context, opts ListOptions) *Pager[Record] {
	if opts.Prefix == "" {
		return failedPager[Record](errors.WithDetails(ErrMissingArgument, "argument", "metadataPrefix"))
	}
	return newPager(ctx, c, opts.request(VerbListRecords, c.granularity), decodeListRecords)
}
