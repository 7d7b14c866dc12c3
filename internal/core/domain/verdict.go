package domain

// Verdict is the outcome of one duplicate-detection attempt.
type Verdict struct {
	Duplicate  bool            `json:"duplicate"`
	MatchID    string          `json:"match_id,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Signals    SignalBreakdown `json:"signals,omitempty"`

	// CandidatesChecked is how many stored records were verified before
	// reaching this verdict.
	CandidatesChecked int `json:"candidates_checked,omitempty"`
}

func UniqueVerdict() Verdict {
	return Verdict{}
}

func DuplicateVerdict(matchID string, confidence float64, signals SignalBreakdown) Verdict {
	return Verdict{
		Duplicate:  true,
		MatchID:    matchID,
		Confidence: confidence,
		Signals:    signals,
	}
}
