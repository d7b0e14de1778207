package oaipmh

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Info bundles the self description of a repository.
type Info struct {
	Identify Identify         `json:"identify" yaml:"identify"`
	Sets     []Set            `json:"sets" yaml:"sets"`
	Formats  []MetadataFormat `json:"formats" yaml:"formats"`
	// Elapsed is the wall clock time of all requests.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// RepositoryInfo runs Identify, ListSets and ListMetadataFormats
// concurrently. A repository without sets is not an error. The first error
// cancels the remaining requests.
func RepositoryInfo(ctx context.Context, c *Client) (Info, error) {
	var info Info
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info.Identify, err = c.Identify(ctx)
		return err
	})
	g.Go(func() error {
		sets, err := c.ListSets(ctx).Collect()
		if IsKind(err, KindNoSetHierarchy) {
			return nil
		}
		info.Sets = sets
		return err
	})
	g.Go(func() (err error) {
		info.Formats, err = c.ListMetadataFormats(ctx, "").Collect()
		return err
	})
	err := g.Wait()
	info.Elapsed = time.Since(start)
	return info, err
}
