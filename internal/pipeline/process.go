package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
)

// JobOutcome is the result of processing one job.
type JobOutcome struct {
	Job     *model.ScrapingJob    `json:"job"`
	Truck   *model.BusinessRecord `json:"truck,omitempty"`
	Created bool                  `json:"created"`
	Error   string                `json:"error,omitempty"`
}

func (m *Manager) runProcessing(ctx context.Context, p Params, res *Result) error {
	if p.RetryFailedJobs {
		n, err := m.queue.RequeueFailed(ctx, max(p.MaxJobs, 1))
		if err != nil {
			return eris.Wrap(err, "pipeline: requeue failed jobs")
		}
		res.Details["requeued"] = n
	}
	if p.MaxJobs == 0 {
		return nil
	}
	if err := m.checkProcessingDeps(); err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)

	claimed := 0
	var claimErr error
	for claimed < p.MaxJobs {
		job, err := m.queue.Claim(ctx)
		if err != nil {
			claimErr = eris.Wrap(err, "pipeline: claim job")
			break
		}
		if job == nil {
			break
		}
		claimed++
		g.Go(func() error {
			out := m.processJob(gctx, job)
			mu.Lock()
			defer mu.Unlock()
			res.Summary.URLsProcessed++
			switch {
			case out.Error != "":
				res.addErrors(fmt.Sprintf("job %s (%s): %s", job.ID, job.TargetURL, out.Error))
			case out.Created:
				res.Summary.TrucksCreated++
			default:
				res.Summary.TrucksUpdated++
			}
			return nil
		})
	}
	_ = g.Wait()
	res.Details["jobs_claimed"] = claimed
	return claimErr
}

func (m *Manager) checkProcessingDeps() error {
	switch {
	case m.scraper == nil:
		return eris.New("pipeline: scraper is not configured")
	case m.extractor == nil:
		return eris.New("pipeline: extractor is not configured")
	case m.resolver == nil:
		return eris.New("pipeline: resolver is not configured")
	}
	return nil
}

// ExecuteJob claims one pending job by id and processes it synchronously.
func (m *Manager) ExecuteJob(ctx context.Context, id string) (*JobOutcome, error) {
	if err := m.checkProcessingDeps(); err != nil {
		return nil, err
	}
	job, err := m.queue.ClaimByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := m.processJob(ctx, job)
	return &out, nil
}

// processJob runs one claimed job to completion or failure. Queue writes
// use a context detached from cancellation so a job is never left running.
func (m *Manager) processJob(ctx context.Context, job *model.ScrapingJob) (out JobOutcome) {
	out.Job = job
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("url", job.TargetURL))
	bg := context.WithoutCancel(ctx)

	fail := func(cause error) {
		out.Error = cause.Error()
		failed, err := m.queue.Fail(bg, job, cause)
		if err != nil {
			log.Error("pipeline: record job failure", zap.Error(err))
			return
		}
		out.Job = failed
		if failed.Status == model.JobFailed {
			m.advanceDiscovered(bg, job.TargetURL, model.DiscoveredRejected)
		}
		log.Warn("pipeline: job failed", zap.String("status", string(failed.Status)), zap.Error(cause))
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: job panicked", zap.Any("panic", p))
			fail(eris.Errorf("job panicked: %v", p))
		}
	}()

	rec, created, err := m.collect(ctx, job)
	if err != nil {
		fail(err)
		return out
	}
	out.Truck, out.Created = rec, created

	done, err := m.queue.Complete(bg, job.ID, map[string]any{
		"truck_id":            rec.ID,
		"truck_name":          rec.Name,
		"created":             created,
		"quality_score":       rec.DataQualityScore,
		"verification_status": string(rec.VerificationStatus),
	})
	if err != nil {
		out.Error = err.Error()
		log.Error("pipeline: complete job", zap.Error(err))
		return out
	}
	out.Job = done
	m.advanceDiscovered(bg, job.TargetURL, model.DiscoveredProcessed)
	log.Info("pipeline: job completed",
		zap.String("truck_id", rec.ID),
		zap.Bool("created", created),
		zap.Float64("quality_score", rec.DataQualityScore),
	)
	return out
}

// collect scrapes, extracts and stores the truck behind job.
func (m *Manager) collect(ctx context.Context, job *model.ScrapingJob) (*model.BusinessRecord, bool, error) {
	page, err := m.scraper.Scrape(ctx, job.TargetURL)
	if err != nil {
		return nil, false, eris.Wrap(err, "scrape")
	}
	markdown := strings.TrimSpace(page.Page.Markdown)
	if markdown == "" {
		return nil, false, eris.Errorf("scrape: no content from %s", page.Source)
	}

	ext := m.extractor.FullExtraction(ctx, markdown, job.TargetURL)
	if !ext.OK() {
		if ext.Status == extract.StatusConfigError {
			return nil, false, jobs.Permanent(ext.Err())
		}
		return nil, false, ext.Err()
	}
	payload, ok := ext.Data.(extract.FullExtractionPayload)
	if !ok {
		return nil, false, eris.Errorf("extract: unexpected payload %T", ext.Data)
	}

	cand := payload.Record(job.TargetURL, m.now().UTC())
	if !isTruckName(cand.Name) {
		return nil, false, jobs.Permanent(eris.Errorf("extract: no food truck name found on %s", job.TargetURL))
	}
	m.locate(ctx, cand)

	rec, created, err := m.resolver.Upsert(ctx, cand)
	if err != nil {
		return nil, false, eris.Wrap(err, "store truck")
	}
	return rec, created, nil
}

// locate fills missing coordinates from the extracted address. Lookup
// failures leave the location as extracted.
func (m *Manager) locate(ctx context.Context, rec *model.BusinessRecord) {
	loc := rec.CurrentLocation
	if m.geocoder == nil || loc == nil || strings.TrimSpace(loc.Address) == "" {
		return
	}
	if _, _, ok := loc.Coordinates(); ok {
		return
	}
	res, err := m.geocoder.Geocode(ctx, loc.Address)
	if err != nil {
		zap.L().Debug("pipeline: geocode failed", zap.String("address", loc.Address), zap.Error(err))
		return
	}
	if !res.Matched {
		return
	}
	lat, lng := res.Latitude, res.Longitude
	loc.Lat, loc.Lng = &lat, &lng
}

// isTruckName rejects empty and placeholder names.
func isTruckName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "unknown", "unknown food truck", "food truck", "n/a", "null":
		return false
	}
	return true
}

// advanceDiscovered moves the discovered URL for u forward when one exists.
func (m *Manager) advanceDiscovered(ctx context.Context, u string, status model.DiscoveredStatus) {
	d, err := m.st.GetDiscoveredURL(ctx, u)
	if err != nil || d == nil || !d.Status.CanAdvanceTo(status) {
		return
	}
	if err := m.st.UpdateDiscoveredStatus(ctx, u, status); err != nil {
		zap.L().Warn("pipeline: update discovered url", zap.String("url", u), zap.Error(err))
	}
}
