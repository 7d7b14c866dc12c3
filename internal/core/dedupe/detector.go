package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/fingerprint"
	"github.com/olegkarev/testcase-search/internal/core/similarity"
)

// VectorOracle returns the topN stored records nearest to a vector.
type VectorOracle interface {
	Nearest(ctx context.Context, vector []float32, topN int) ([]domain.Candidate, error)
}

// FuzzySource returns candidates by token overlap against the index.
type FuzzySource interface {
	FuzzyMatch(ctx context.Context, tokens map[string]struct{}, topN int) ([]domain.Candidate, error)
}

// RecordFetcher hydrates candidate records for verification.
type RecordFetcher interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.TestCase, error)
}

// Config holds the duplicate-verification calibration. The defaults are
// a starting calibration, kept configurable rather than hardcoded.
type Config struct {
	TopN          int     `yaml:"top_n"`
	Threshold     float64 `yaml:"threshold"`
	SignalFloor   float64 `yaml:"signal_floor"`
	VectorWeight  float64 `yaml:"vector_weight"`
	OverlapWeight float64 `yaml:"overlap_weight"`
	StepWeight    float64 `yaml:"step_weight"`
}

func DefaultConfig() Config {
	return Config{
		TopN:          10,
		Threshold:     0.88,
		SignalFloor:   0.6,
		VectorWeight:  0.5,
		OverlapWeight: 0.3,
		StepWeight:    0.2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.TopN <= 0 {
		out.TopN = def.TopN
	}
	if out.Threshold <= 0 || out.Threshold > 1 {
		out.Threshold = def.Threshold
	}
	if out.SignalFloor <= 0 || out.SignalFloor > 1 {
		out.SignalFloor = def.SignalFloor
	}
	if out.VectorWeight <= 0 && out.OverlapWeight <= 0 && out.StepWeight <= 0 {
		out.VectorWeight = def.VectorWeight
		out.OverlapWeight = def.OverlapWeight
		out.StepWeight = def.StepWeight
	}
	return out
}

// Detector decides, before insertion, whether an incoming record is a
// near-duplicate of an already indexed one. It holds no mutable state
// and is safe for concurrent use.
type Detector struct {
	vectors VectorOracle
	fuzzy   FuzzySource
	records RecordFetcher
	cfg     Config
	logger  *slog.Logger
}

func NewDetector(vectors VectorOracle, fuzzy FuzzySource, records RecordFetcher, cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		vectors: vectors,
		fuzzy:   fuzzy,
		records: records,
		cfg:     cfg.normalize(),
		logger:  logger,
	}
}

// Detect runs candidate retrieval and verification for one record.
// A vector-oracle failure degrades to fuzzy-only verification with the
// vector weight redistributed; it is never treated as "no duplicates".
func (d *Detector) Detect(ctx context.Context, record *domain.TestCase) (domain.Verdict, error) {
	fp := fingerprint.New(record)

	candidates, vectorDown, err := d.gatherCandidates(ctx, record, fp)
	if err != nil {
		return domain.Verdict{}, err
	}
	if len(candidates) == 0 {
		return domain.UniqueVerdict(), nil
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		if id == record.ID {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return domain.UniqueVerdict(), nil
	}
	sort.Strings(ids)

	stored, err := d.records.GetByIDs(ctx, ids)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("fetch candidate records: %w", err)
	}

	best := domain.UniqueVerdict()
	for i := range stored {
		confidence, signals, confirmed := d.verify(record, fp, &stored[i], vectorDown)
		if !confirmed {
			continue
		}
		if !best.Duplicate || confidence > best.Confidence ||
			(confidence == best.Confidence && stored[i].ID < best.MatchID) {
			best = domain.DuplicateVerdict(stored[i].ID, confidence, signals)
		}
	}
	best.CandidatesChecked = len(stored)

	if best.Duplicate {
		d.logger.Info("duplicate_detected",
			"record", record.TestCaseID,
			"match", best.MatchID,
			"confidence", best.Confidence,
		)
	}
	return best, nil
}

// gatherCandidates unions vector and fuzzy retrieval by record ID,
// keeping the higher score per source when a record appears in both.
func (d *Detector) gatherCandidates(
	ctx context.Context,
	record *domain.TestCase,
	fp fingerprint.Fingerprint,
) (map[string]domain.Candidate, bool, error) {
	acc := make(map[string]domain.Candidate, 2*d.cfg.TopN)
	merge := func(hits []domain.Candidate) {
		for _, hit := range hits {
			current, ok := acc[hit.RecordID]
			if !ok {
				acc[hit.RecordID] = hit
				continue
			}
			if hit.VectorScore > current.VectorScore {
				current.VectorScore = hit.VectorScore
			}
			if hit.FuzzyScore > current.FuzzyScore {
				current.FuzzyScore = hit.FuzzyScore
			}
			acc[hit.RecordID] = current
		}
	}

	vectorDown := !record.HasVector()
	if !vectorDown {
		hits, err := d.vectors.Nearest(ctx, record.MainVector, d.cfg.TopN)
		if err != nil {
			vectorDown = true
			d.logger.Warn("vector_oracle_unavailable", "record", record.TestCaseID, "error", err)
		} else {
			merge(hits)
		}
	}

	hits, err := d.fuzzy.FuzzyMatch(ctx, fp.Set, d.cfg.TopN)
	if err != nil {
		if vectorDown {
			// Both retrieval sources are gone; a Unique verdict here
			// would be a silent false negative.
			return nil, true, domain.WrapError(domain.ErrSignalUnavailable, "dedupe candidate retrieval", err)
		}
		d.logger.Warn("fuzzy_source_unavailable", "record", record.TestCaseID, "error", err)
	} else {
		merge(hits)
	}

	return acc, vectorDown, nil
}

// verify computes the composite confidence for one candidate and applies
// the dual condition: composite over threshold plus at least two signals
// individually over the per-signal floor, so one inflated signal cannot
// confirm a match on its own.
func (d *Detector) verify(
	record *domain.TestCase,
	fp fingerprint.Fingerprint,
	stored *domain.TestCase,
	vectorDown bool,
) (float64, domain.SignalBreakdown, bool) {
	type signal struct {
		value     float64
		weight    float64
		available bool
	}

	vec := signal{weight: d.cfg.VectorWeight}
	if !vectorDown && record.HasVector() && stored.HasVector() {
		if sim, err := similarity.Cosine(record.MainVector, stored.MainVector); err == nil {
			vec.value = similarity.Clamp01(sim)
			vec.available = true
		}
	}

	overlap := signal{
		value:     similarity.TokenOverlap(fp.Set, fingerprint.New(stored).Set),
		weight:    d.cfg.OverlapWeight,
		available: true,
	}

	step := signal{weight: d.cfg.StepWeight}
	if align, ok := stepAlignment(record, stored); ok {
		step.value = align
		step.available = true
	}

	var totalWeight float64
	for _, s := range []signal{vec, overlap, step} {
		if s.available {
			totalWeight += s.weight
		}
	}
	if totalWeight == 0 {
		return 0, domain.SignalBreakdown{}, false
	}

	var confidence float64
	floorHits, available := 0, 0
	for _, s := range []signal{vec, overlap, step} {
		if !s.available {
			continue
		}
		available++
		confidence += s.value * (s.weight / totalWeight)
		if s.value >= d.cfg.SignalFloor {
			floorHits++
		}
	}

	requiredFloors := 2
	if available < requiredFloors {
		requiredFloors = available
	}

	signals := domain.SignalBreakdown{
		VectorSim:    vec.value,
		TokenOverlap: overlap.value,
		StepAlign:    step.value,
	}
	confirmed := confidence >= d.cfg.Threshold && floorHits >= requiredFloors
	return confidence, signals, confirmed
}

// stepAlignment averages, over the incoming record's step vectors, the
// best cosine match among the stored record's step vectors. Without
// step-level vectors on both sides it falls back to the whole-record
// vectors.
func stepAlignment(record, stored *domain.TestCase) (float64, bool) {
	if len(record.StepVectors) > 0 && len(stored.StepVectors) > 0 {
		var sum float64
		counted := 0
		for _, sv := range record.StepVectors {
			best := 0.0
			matched := false
			for _, ov := range stored.StepVectors {
				sim, err := similarity.Cosine(sv, ov)
				if err != nil {
					continue
				}
				matched = true
				if c := similarity.Clamp01(sim); c > best {
					best = c
				}
			}
			if matched {
				sum += best
				counted++
			}
		}
		if counted > 0 {
			return sum / float64(counted), true
		}
	}

	if record.HasVector() && stored.HasVector() {
		sim, err := similarity.Cosine(record.MainVector, stored.MainVector)
		if err == nil {
			return similarity.Clamp01(sim), true
		}
	}
	return 0, false
}
