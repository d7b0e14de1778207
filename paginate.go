package oaipmh

import (
	"context"
	"iter"

	"emperror.dev/errors"
	"github.com/beevik/etree"
)

type pagerState int

const (
	stateInitial pagerState = iota
	stateResuming
	stateTerminal
)

// Pager iterates over the items of a list request, following resumption
// tokens (3.5 Flow Control). Requests are made lazily, one page at a time:
//
//	p := client.ListRecords(ctx, oaipmh.ListOptions{Prefix: "oai_dc"})
//	for p.Next() {
//		rec := p.Value()
//		...
//	}
//	if err := p.Err(); err != nil {
//		...
//	}
//
// A Pager must not be advanced from more than one goroutine.
type Pager[T any] struct {
	ctx    context.Context
	client *Client
	req    Request
	decode func(*etree.Element) (page[T], error)

	state pagerState
	buf   []T
	cur   T
	token *ResumptionToken
	pages int
	err   error
}

func newPager[T any](ctx context.Context, c *Client, req Request, decode func(*etree.Element) (page[T], error)) *Pager[T] {
	return &Pager[T]{ctx: ctx, client: c, req: req, decode: decode}
}

// failedPager returns a pager, that yields nothing but err.
func failedPager[T any](err error) *Pager[T] {
	return &Pager[T]{state: stateTerminal, err: err}
}

// Next advances to the next item, fetching a page if required. It returns
// false when the list is exhausted or an error occured.
func (p *Pager[T]) Next() bool {
	for len(p.buf) == 0 {
		if p.err != nil || p.state == stateTerminal {
			return false
		}
		if err := p.fetch(); err != nil {
			p.err = err
			p.state = stateTerminal
			return false
		}
	}
	p.cur, p.buf = p.buf[0], p.buf[1:]
	return true
}

func (p *Pager[T]) fetch() error {
	if limit := p.client.maxRequests; limit > 0 && p.pages >= limit {
		return errors.WithDetails(ErrTooManyRequests, "verb", p.req.Verb, "requests", p.pages)
	}
	root, err := p.client.dispatch(p.ctx, p.req)
	p.pages++
	if err != nil {
		return err
	}
	pg, err := p.decode(root)
	if err != nil {
		return err
	}
	p.client.metrics.page(p.req.Verb)
	p.buf = pg.items
	p.token = pg.token
	if pg.more() {
		p.req = p.req.resume(pg.token.Value)
		p.state = stateResuming
	} else {
		p.state = stateTerminal
	}
	return nil
}

// Value returns the current item.
func (p *Pager[T]) Value() T {
	return p.cur
}

// Err returns the error, that stopped the iteration, if any.
func (p *Pager[T]) Err() error {
	return p.err
}

// Token returns the most recent resumption token, or nil. Cursor and
// completeListSize are informational only.
func (p *Pager[T]) Token() *ResumptionToken {
	return p.token
}

// Pages returns the number of requests made so far.
func (p *Pager[T]) Pages() int {
	return p.pages
}

// All returns an iterator over the remaining items. An error is yielded
// once, as the last element.
func (p *Pager[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.Next() {
			if !yield(p.Value(), nil) {
				return
			}
		}
		if err := p.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains the pager into a slice. Items read before an error are
// returned along with it.
func (p *Pager[T]) Collect() ([]T, error) {
	var result []T
	for p.Next() {
		result = append(result, p.Value())
	}
	return result, p.Err()
}
