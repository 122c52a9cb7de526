// Package pipeline orchestrates a full crawl run: discovery,
// segmentation, retry cleanup and dedup against prior runs, static
// partitioning across workers, parallel traversal, and the final
// merge into one flattened table.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/catalog"
	"github.com/modelmeta/hf-crawler/internal/fetcher"
	"github.com/modelmeta/hf-crawler/internal/model"
	"github.com/modelmeta/hf-crawler/internal/partition"
	"github.com/modelmeta/hf-crawler/internal/store"
	"github.com/modelmeta/hf-crawler/internal/subheader"
	"github.com/modelmeta/hf-crawler/internal/traverse"
	"github.com/modelmeta/hf-crawler/pkg/kafka"
	"github.com/modelmeta/hf-crawler/pkg/log"
	"golang.org/x/sync/errgroup"
)

type Driver struct {
	Logger    log.Logger
	Config    *cfg.Config
	Discovery *catalog.Discovery
	Traverser *traverse.Traverser
	LinkLog   *catalog.LinkLog
	Producer  *kafka.Producer

	traversed int32
	failed    int32
	skipped   int32
}

// Summary reports what one run did.
type Summary struct {
	Links        int
	AlreadyDone  int
	DroppedStale int
	Skipped      int
	Traversed    int
	Failed       int
	MergedRows   int
	Duration     time.Duration
}

// NewDriver wires the run from config: the link log and README tree
// live under the output directory, discovery and traversal share one
// fetcher session. producer may be nil when Kafka is disabled.
func NewDriver(logger log.Logger, config *cfg.Config, f *fetcher.Fetcher, producer *kafka.Producer) (*Driver, error) {
	if err := os.MkdirAll(config.Paths.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	linkLog := catalog.NewLinkLog(filepath.Join(config.Paths.OutputDir, config.Paths.LinksFile))
	discovery, err := catalog.NewDiscovery(logger, config, f, linkLog)
	if err != nil {
		return nil, err
	}

	readmes := store.NewReadmeStore(filepath.Join(config.Paths.OutputDir, config.Paths.ReadmeDir))
	traverser, err := traverse.NewTraverser(logger, config, f, readmes)
	if err != nil {
		return nil, err
	}

	return &Driver{
		Logger:    logger,
		Config:    config,
		Discovery: discovery,
		Traverser: traverser,
		LinkLog:   linkLog,
		Producer:  producer,
	}, nil
}

// Run executes one crawl. Per-repository failures are recorded as
// degraded rows and never abort the run.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{}

	// Discovery only happens when no link log exists yet; the log is
	// the checkpoint for the full catalog walk.
	if !d.LinkLog.Exists() {
		if _, err := d.Discovery.Discover(ctx, d.Config.Crawler.CatalogUrl); err != nil {
			return summary, fmt.Errorf("link discovery failed: %w", err)
		}
	}

	listings, err := d.LinkLog.Read()
	if err != nil {
		return summary, err
	}
	links := subheader.Segment(listings)
	summary.Links = len(links)

	pending, err := d.filterDone(ctx, links, summary)
	if err != nil {
		return summary, err
	}

	workers := d.Config.Crawler.Workers
	if workers < 1 {
		workers = 1
	}
	workerPaths := store.WorkerPaths(d.Config.Paths.OutputDir, d.Config.Paths.MetaPrefix, workers)
	groups := partition.Split(pending, workers)

	// Every worker owns its partition and its own metadata file; the
	// errgroup join guarantees all files are complete before merging.
	g, gctx := errgroup.WithContext(ctx)
	for i := range groups {
		workerID, group := i, groups[i]
		metaStore := store.NewMetaStore(workerPaths[workerID])
		g.Go(func() error {
			return d.worker(gctx, workerID, group, metaStore)
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	// Re-list the metadata files for the merge: the set covers this
	// run's worker files plus any leftovers from runs with a different
	// worker count.
	metaPaths, err := store.MetaFiles(d.Config.Paths.OutputDir, d.Config.Paths.MetaPrefix)
	if err != nil {
		return summary, err
	}
	mergedPath := filepath.Join(d.Config.Paths.OutputDir, d.Config.Paths.MergedFile)
	merged, err := store.Merge(metaPaths, mergedPath)
	if err != nil {
		return summary, err
	}

	summary.Traversed = int(atomic.LoadInt32(&d.traversed))
	summary.Failed = int(atomic.LoadInt32(&d.failed))
	summary.Skipped = int(atomic.LoadInt32(&d.skipped))
	summary.MergedRows = merged
	summary.Duration = time.Since(startTime)

	d.logRunResults(ctx, summary)
	return summary, nil
}

// filterDone drops stale 4xx failures from prior worker files so they
// become eligible again, then excludes every repository URL that
// already has a kept row. Prior files are discovered on disk, not
// derived from the worker count, so rows written by a run with more
// workers still count as done.
func (d *Driver) filterDone(ctx context.Context, links []model.SegmentedLink, summary *Summary) ([]model.SegmentedLink, error) {
	metaPaths, err := store.MetaFiles(d.Config.Paths.OutputDir, d.Config.Paths.MetaPrefix)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, path := range metaPaths {
		metaStore := store.NewMetaStore(path)
		records, err := metaStore.Load()
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}

		kept, dropped := store.FilterRetryable(records)
		if dropped > 0 {
			d.Logger.Info(ctx, "Dropped %d stale failures from %s", dropped, path)
			if err := metaStore.Rewrite(kept); err != nil {
				return nil, err
			}
			summary.DroppedStale += dropped
		}
		for _, record := range kept {
			done[record.RepoURL] = true
		}
	}

	pending := make([]model.SegmentedLink, 0, len(links))
	for _, link := range links {
		if done[link.URL] {
			summary.AlreadyDone++
			continue
		}
		pending = append(pending, link)
	}
	return pending, nil
}

func (d *Driver) worker(ctx context.Context, workerID int, links []model.SegmentedLink, metaStore *store.MetaStore) error {
	for _, link := range links {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if link.Likes < d.Config.Crawler.MinLikes {
			atomic.AddInt32(&d.skipped, 1)
			continue
		}

		result := d.Traverser.Traverse(ctx, link)
		atomic.AddInt32(&d.traversed, 1)
		if !result.Ok() {
			atomic.AddInt32(&d.failed, 1)
			d.Logger.Debug(ctx, "Worker %d: %s degraded at %s with status %d", workerID, result.RepoURL, result.Stage, result.Status)
		}

		// Persist one row at a time so a crash keeps the partition's
		// progress.
		if err := metaStore.Append(result); err != nil {
			return fmt.Errorf("worker %d: %w", workerID, err)
		}

		if result.Ok() && d.Producer != nil {
			if err := d.Producer.Publish(ctx, "model", result.Meta); err != nil {
				d.Logger.Error(ctx, "Worker %d: failed to publish %s: %v", workerID, result.RepoURL, err)
			}
		}
	}
	return nil
}

func (d *Driver) logRunResults(ctx context.Context, summary *Summary) {
	d.Logger.Info(ctx, "==== CRAWL RESULT ====")
	d.Logger.Info(ctx, "Links in log: %d", summary.Links)
	d.Logger.Info(ctx, "Already scraped: %d", summary.AlreadyDone)
	d.Logger.Info(ctx, "Stale failures dropped: %d", summary.DroppedStale)
	d.Logger.Info(ctx, "Below like threshold: %d", summary.Skipped)
	d.Logger.Info(ctx, "Repositories traversed: %d (%d degraded)", summary.Traversed, summary.Failed)
	d.Logger.Info(ctx, "Merged rows written: %d", summary.MergedRows)
	d.Logger.Info(ctx, "Total duration: %v", summary.Duration)
}
