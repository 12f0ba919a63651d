package dedup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

const (
	defaultThreshold     = 0.8
	defaultNameThreshold = 0.85
	candidateLimit       = 200
)

// Store is the subset of store.Store the resolver needs.
type Store interface {
	FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error)
	FindBusinessByNameKey(ctx context.Context, nameKey string) (*model.BusinessRecord, error)
	ListBusinesses(ctx context.Context, filter store.BusinessFilter) ([]model.BusinessRecord, error)
	CreateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error
	UpdateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error
}

// MatchReason records why a candidate matched.
type MatchReason string

const (
	MatchSourceURL MatchReason = "source_url"
	MatchNameKey   MatchReason = "name_key"
	MatchFuzzy     MatchReason = "fuzzy"
)

// Match is an existing record a candidate resolves to.
type Match struct {
	Record     *model.BusinessRecord
	Reason     MatchReason
	Similarity *Similarity
}

// Resolver finds and merges duplicate business records.
type Resolver struct {
	st            Store
	threshold     float64
	nameThreshold float64
	prepare       func(*model.BusinessRecord)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrepare runs fn on every record right before it is written, after
// any merge. The pipeline uses it to score the stored record.
func WithPrepare(fn func(*model.BusinessRecord)) Option {
	return func(r *Resolver) { r.prepare = fn }
}

// NewResolver creates a Resolver. Zero thresholds take the defaults.
func NewResolver(st Store, cfg config.DedupConfig, opts ...Option) *Resolver {
	r := &Resolver{st: st, threshold: cfg.Threshold, nameThreshold: cfg.NameThreshold}
	if r.threshold <= 0 {
		r.threshold = defaultThreshold
	}
	if r.nameThreshold <= 0 {
		r.nameThreshold = defaultNameThreshold
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// FindMatch returns the stored record cand duplicates, or nil. A shared
// source URL or identical name key always matches; otherwise records
// sharing the name prefix are compared and the best one above both
// thresholds wins.
func (r *Resolver) FindMatch(ctx context.Context, cand *model.BusinessRecord) (*Match, error) {
	for _, u := range cand.SourceURLs {
		existing, err := r.st.FindBusinessBySourceURL(ctx, u)
		if err != nil {
			return nil, eris.Wrap(err, "dedup: find by source url")
		}
		if existing != nil {
			return &Match{Record: existing, Reason: MatchSourceURL}, nil
		}
	}

	key := NameKey(cand.Name)
	if key == "" {
		return nil, nil
	}
	existing, err := r.st.FindBusinessByNameKey(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: find by name")
	}
	if existing != nil {
		return &Match{Record: existing, Reason: MatchNameKey}, nil
	}

	candidates, err := r.st.ListBusinesses(ctx, store.BusinessFilter{NamePrefix: NamePrefix(key), Limit: candidateLimit})
	if err != nil {
		return nil, eris.Wrap(err, "dedup: list candidates")
	}

	var best *Match
	for i := range candidates {
		sim := Compare(cand, &candidates[i])
		if sim.Name < r.nameThreshold || sim.Overall < r.threshold {
			continue
		}
		if best == nil || sim.Overall > best.Similarity.Overall {
			best = &Match{Record: &candidates[i], Reason: MatchFuzzy, Similarity: &sim}
		}
	}
	return best, nil
}

// Upsert stores cand, merging it into a matching record when one exists.
// It returns the stored record and whether it was newly created.
func (r *Resolver) Upsert(ctx context.Context, cand *model.BusinessRecord) (*model.BusinessRecord, bool, error) {
	match, err := r.FindMatch(ctx, cand)
	if err != nil {
		return nil, false, err
	}

	if match == nil {
		rec := *cand
		rec.ID = ""
		if rec.VerificationStatus == "" {
			rec.VerificationStatus = model.VerificationPending
		}
		if r.prepare != nil {
			r.prepare(&rec)
		}
		if err := r.st.CreateBusiness(ctx, &rec, NameKey(rec.Name)); err != nil {
			return nil, false, eris.Wrap(err, "dedup: create business")
		}
		zap.L().Info("dedup: created business", zap.String("id", rec.ID), zap.String("name", rec.Name))
		return &rec, true, nil
	}

	merged := Merge(match.Record, cand)
	if r.prepare != nil {
		r.prepare(merged)
	}
	if err := r.st.UpdateBusiness(ctx, merged, NameKey(merged.Name)); err != nil {
		return nil, false, eris.Wrap(err, "dedup: update business")
	}
	fields := []zap.Field{
		zap.String("id", merged.ID),
		zap.String("name", merged.Name),
		zap.String("reason", string(match.Reason)),
	}
	if match.Similarity != nil {
		fields = append(fields, zap.Float64("similarity", match.Similarity.Overall))
	}
	zap.L().Info("dedup: merged business", fields...)
	return merged, false, nil
}
