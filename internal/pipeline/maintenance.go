package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/dedup"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/quality"
	"github.com/sells-group/foodtruck-cli/internal/seeds"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

const pageSize = 200

// SeedReport counts what EnsureSeeds did.
type SeedReport struct {
	Checked int `json:"checked"`
	Queued  int `json:"queued"`
	Fresh   int `json:"fresh"`
	Live    int `json:"live"`
}

func (m *Manager) runMaintenance(ctx context.Context, p Params, res *Result) error {
	cutoff := m.now().UTC().AddDate(0, 0, -p.StaleDays)

	stalled, err := m.queue.ReapStalled(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: reap stalled jobs")
	}
	res.Details["stalled_reaped"] = stalled

	stale, queued, err := m.requeueStale(ctx, cutoff)
	if err != nil {
		return err
	}
	res.Summary.JobsCreated += queued
	res.Details["stale_found"] = stale
	res.Details["stale_queued"] = queued

	report, err := m.EnsureSeeds(ctx, m.seeds, p.StaleDays, p.Priority)
	if err != nil {
		return err
	}
	res.Summary.JobsCreated += report.Queued
	res.Details["seeds"] = report

	if p.RetryFailedJobs {
		n, err := m.queue.RequeueFailed(ctx, p.MaxJobs)
		if err != nil {
			return eris.Wrap(err, "pipeline: requeue failed jobs")
		}
		res.Details["requeued"] = n
	}
	return nil
}

// requeueStale enqueues a low priority refresh for every record last
// scraped before cutoff.
func (m *Manager) requeueStale(ctx context.Context, cutoff time.Time) (found, queued int, err error) {
	for offset := 0; ; offset += pageSize {
		batch, err := m.st.ListBusinesses(ctx, store.BusinessFilter{ScrapedBefore: &cutoff, Limit: pageSize, Offset: offset})
		if err != nil {
			return found, queued, eris.Wrap(err, "pipeline: list stale trucks")
		}
		for _, b := range batch {
			if len(b.SourceURLs) == 0 {
				continue
			}
			found++
			_, created, err := m.queue.Enqueue(ctx, jobs.EnqueueRequest{URL: b.SourceURLs[0], Priority: maintenancePriority})
			if err != nil {
				return found, queued, err
			}
			if created {
				queued++
			}
		}
		if len(batch) < pageSize {
			return found, queued, nil
		}
	}
}

// EnsureSeeds makes sure every seed URL is either fresh or has a live job.
// A seed is fresh when a record sourced from it was scraped within
// staleDays.
func (m *Manager) EnsureSeeds(ctx context.Context, list []seeds.Seed, staleDays, priority int) (*SeedReport, error) {
	report := &SeedReport{}
	cutoff := m.now().UTC().AddDate(0, 0, -staleDays)
	for _, s := range list {
		report.Checked++
		b, err := m.st.FindBusinessBySourceURL(ctx, s.URL)
		if err != nil {
			return report, eris.Wrapf(err, "pipeline: look up seed %s", s.URL)
		}
		if b != nil && b.LastScrapedAt != nil && b.LastScrapedAt.After(cutoff) {
			report.Fresh++
			continue
		}
		pr := s.Priority
		if pr <= 0 {
			pr = priority
		}
		_, created, err := m.queue.EnqueueURL(ctx, s.URL, pr)
		if err != nil {
			return report, err
		}
		if created {
			report.Queued++
		} else {
			report.Live++
		}
	}
	return report, nil
}

// QualityReport summarizes a rescoring pass.
type QualityReport struct {
	Checked    int                      `json:"checked"`
	Updated    int                      `json:"updated"`
	Flagged    int                      `json:"flagged"`
	Categories map[quality.Category]int `json:"categories"`
}

// CheckQuality rescores every record, clears placeholder values and flags
// records below the configured threshold. Only changed records are written.
func (m *Manager) CheckQuality(ctx context.Context) (*QualityReport, error) {
	threshold := m.cfg.Pipeline.QualityFlagThreshold
	report := &QualityReport{Categories: map[quality.Category]int{}}

	for offset := 0; ; offset += pageSize {
		batch, err := m.st.ListBusinesses(ctx, store.BusinessFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return report, eris.Wrap(err, "pipeline: list trucks")
		}
		for i := range batch {
			rec := &batch[i]
			beforeScore, beforeStatus := rec.DataQualityScore, rec.VerificationStatus
			a := m.scorer.Apply(rec, threshold)

			report.Checked++
			report.Categories[a.Category]++
			if rec.VerificationStatus == model.VerificationFlagged {
				report.Flagged++
			}
			if a.Updates.IsEmpty() && beforeScore == rec.DataQualityScore && beforeStatus == rec.VerificationStatus {
				continue
			}
			if err := m.st.UpdateBusiness(ctx, rec, dedup.NameKey(rec.Name)); err != nil {
				return report, eris.Wrapf(err, "pipeline: update truck %s", rec.ID)
			}
			report.Updated++
		}
		if len(batch) < pageSize {
			break
		}
	}
	zap.L().Info("pipeline: quality check complete",
		zap.Int("checked", report.Checked),
		zap.Int("updated", report.Updated),
		zap.Int("flagged", report.Flagged),
	)
	return report, nil
}
