package domain

// RankVariant selects one of the two fusion formulas.
type RankVariant string

const (
	VariantA RankVariant = "a"
	VariantB RankVariant = "b"
)

// ParseVariant defaults to VariantB, the richer multi-signal formula.
func ParseVariant(raw string) RankVariant {
	if RankVariant(raw) == VariantA {
		return VariantA
	}
	return VariantB
}

// SearchFilter is applied conjunctively before scoring. Zero values mean
// "no constraint"; Tags requires every listed tag to be present.
type SearchFilter struct {
	Feature  string   `json:"feature,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Platform string   `json:"platform,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return f.Feature == "" && len(f.Tags) == 0 && f.Priority == "" && f.Platform == ""
}

// Candidate is a transient retrieval hit. VectorScore is normalized to
// [0,1]; FuzzyScore is a token-overlap ratio, zero when the candidate
// came from vector retrieval only.
type Candidate struct {
	RecordID    string
	VectorScore float64
	FuzzyScore  float64
}

// SignalBreakdown records each signal's contribution to a composite
// score, for observability and threshold calibration.
type SignalBreakdown struct {
	VectorSim    float64 `json:"vector_sim"`
	MaxCosine    float64 `json:"max_cosine,omitempty"`
	SemanticSim  float64 `json:"semantic_sim,omitempty"`
	KeywordMatch float64 `json:"keyword_match,omitempty"`
	FeatureMatch float64 `json:"feature_match,omitempty"`
	TokenDensity float64 `json:"token_density,omitempty"`
	Popularity   float64 `json:"popularity,omitempty"`
	TokenOverlap float64 `json:"token_overlap,omitempty"`
	StepAlign    float64 `json:"step_align,omitempty"`
}

// ScoredResult is one ranked search hit.
type ScoredResult struct {
	Record  TestCase        `json:"record"`
	Score   float64         `json:"score"`
	Rank    int             `json:"rank"`
	Signals SignalBreakdown `json:"signals"`
}
