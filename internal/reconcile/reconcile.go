// Package reconcile compares tracker rows with the payloads each backend
// actually holds. It only reports and never writes.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/metadata"
	"github.com/JuribaDev/juriba-storage/internal/storage"

	"golang.org/x/sync/errgroup"
)

// TrackerLister returns every tracker row.
type TrackerLister interface {
	List(ctx context.Context) ([]metadata.Record, error)
}

// Report describes one backend.
type Report struct {
	Backend  blob.StorageType
	Trackers int
	Payloads int
	// Orphaned payloads have no tracker row naming this backend.
	Orphaned []string
	// Dangling tracker rows name this backend but it holds no payload.
	Dangling []string
}

// Consistent reports whether the backend and its tracker rows agree.
func (r Report) Consistent() bool {
	return len(r.Orphaned) == 0 && len(r.Dangling) == 0
}

type Job struct {
	trackers TrackerLister
	listers  map[blob.StorageType]storage.Lister
}

func NewJob(trackers TrackerLister, listers map[blob.StorageType]storage.Lister) *Job {
	return &Job{trackers: trackers, listers: listers}
}

// Run lists the trackers once and every configured backend concurrently.
// Reports come back in blob.StorageTypes order.
func (j *Job) Run(ctx context.Context) ([]Report, error) {
	records, err := j.trackers.List(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[blob.StorageType][]string)
	for _, rec := range records {
		tracked[rec.StorageType] = append(tracked[rec.StorageType], rec.ID)
	}

	var backends []blob.StorageType
	for _, t := range blob.StorageTypes {
		if _, ok := j.listers[t]; ok {
			backends = append(backends, t)
		}
	}

	reports := make([]Report, len(backends))
	eg, ctx := errgroup.WithContext(ctx)
	for i, backend := range backends {
		eg.Go(func() error {
			ids, err := j.listers[backend].IDs(ctx)
			if err != nil {
				return fmt.Errorf("list %s payloads: %w", backend, err)
			}
			reports[i] = compare(backend, tracked[backend], ids)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, r := range reports {
		slog.Info("Reconciled backend",
			"backend", r.Backend,
			"trackers", r.Trackers,
			"payloads", r.Payloads,
			"orphaned", len(r.Orphaned),
			"dangling", len(r.Dangling),
		)
	}
	return reports, nil
}

func compare(backend blob.StorageType, trackerIDs []string, payloadIDs []string) Report {
	report := Report{
		Backend:  backend,
		Trackers: len(trackerIDs),
		Payloads: len(payloadIDs),
	}

	tracked := make(map[string]struct{}, len(trackerIDs))
	for _, id := range trackerIDs {
		tracked[id] = struct{}{}
	}
	held := make(map[string]struct{}, len(payloadIDs))
	for _, id := range payloadIDs {
		held[id] = struct{}{}
		if _, ok := tracked[id]; !ok {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	for _, id := range trackerIDs {
		if _, ok := held[id]; !ok {
			report.Dangling = append(report.Dangling, id)
		}
	}

	slices.Sort(report.Orphaned)
	slices.Sort(report.Dangling)
	return report
}
