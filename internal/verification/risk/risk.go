// Package risk converts extracted identity data into a trust decision.
//
// Score is a pure function: no I/O, no clock, no randomness. The same input
// always yields the same breakdown, which keeps the decision auditable and
// trivially testable.
package risk

import (
	"fmt"

	"veriflow/internal/verification/models"
)

// Component caps. The three components sum to at most 100 by construction,
// so the total needs no re-clamping.
const (
	maxLivenessPoints = 40
	maxDocumentPoints = 30
	maxAMLPoints      = 30
)

// Liveness confidence bands.
const (
	livenessHighConfidence = 0.85
	livenessMediumBand     = 0.65
	livenessLowBand        = 0.40

	livenessMediumPoints = 15
	livenessLowPoints    = 5
)

// Per-flag AML penalty.
const amlFlagPenalty = 10

// Tier thresholds on the total score.
const (
	lowTierThreshold    = 80
	mediumTierThreshold = 50
)

// Breakdown is the derived scoring result. It is stored only as part of the
// session outcome, never independently.
type Breakdown struct {
	LivenessPoints int             `json:"liveness_points"`
	DocumentPoints int             `json:"document_points"`
	AMLPoints      int             `json:"aml_points"`
	TotalScore     int             `json:"total_score"`
	RiskTier       models.RiskTier `json:"risk_tier"`
	AutoApproved   bool            `json:"auto_approved"`

	// Reasoning is human-readable audit context for manual review.
	Reasoning []string `json:"reasoning"`
}

// Score computes the weighted risk breakdown for extracted identity data.
//
// A sanctions or PEP match forces the AML component to zero regardless of
// any other signal. With liveness capped at 40 and documents at 30, the
// total then tops out at 70, below the low-tier threshold, so a sanctioned
// or politically exposed subject can never be auto-approved.
func Score(data models.ExtractedIdentityData) Breakdown {
	b := Breakdown{}

	b.LivenessPoints, b.Reasoning = scoreLiveness(data.LivenessScore, b.Reasoning)
	b.DocumentPoints, b.Reasoning = scoreDocument(data.DocumentAuthenticity, b.Reasoning)
	b.AMLPoints, b.Reasoning = scoreAML(data, b.Reasoning)

	b.TotalScore = b.LivenessPoints + b.DocumentPoints + b.AMLPoints

	switch {
	case b.TotalScore >= lowTierThreshold:
		b.RiskTier = models.TierLow
		b.AutoApproved = true
	case b.TotalScore >= mediumTierThreshold:
		b.RiskTier = models.TierMedium
	default:
		b.RiskTier = models.TierHigh
	}

	return b
}

// ResultForTier maps a breakdown to the verification outcome recorded on the
// session: auto-approved goes straight through, high risk is declined, and
// the middle band waits for manual review.
func ResultForTier(b Breakdown) models.Result {
	switch {
	case b.AutoApproved:
		return models.ResultApproved
	case b.RiskTier == models.TierHigh:
		return models.ResultDeclined
	default:
		return models.ResultPendingReview
	}
}

func scoreLiveness(score float64, reasons []string) (int, []string) {
	switch {
	case score >= livenessHighConfidence:
		return maxLivenessPoints, append(reasons,
			fmt.Sprintf("Liveness %.2f: high confidence (%d/%d points)", score, maxLivenessPoints, maxLivenessPoints))
	case score >= livenessMediumBand:
		return livenessMediumPoints, append(reasons,
			fmt.Sprintf("Liveness %.2f: medium confidence (%d/%d points)", score, livenessMediumPoints, maxLivenessPoints))
	case score >= livenessLowBand:
		return livenessLowPoints, append(reasons,
			fmt.Sprintf("Liveness %.2f: low confidence (%d/%d points)", score, livenessLowPoints, maxLivenessPoints))
	default:
		return 0, append(reasons,
			fmt.Sprintf("Liveness %.2f: below minimum threshold (0/%d points)", score, maxLivenessPoints))
	}
}

func scoreDocument(authenticity models.DocumentAuthenticity, reasons []string) (int, []string) {
	switch authenticity {
	case models.DocumentValid:
		return maxDocumentPoints, append(reasons,
			fmt.Sprintf("Document valid (%d/%d points)", maxDocumentPoints, maxDocumentPoints))
	case models.DocumentSuspicious:
		return maxDocumentPoints / 2, append(reasons,
			fmt.Sprintf("Document suspicious (%d/%d points)", maxDocumentPoints/2, maxDocumentPoints))
	default:
		return 0, append(reasons,
			fmt.Sprintf("Document invalid (0/%d points)", maxDocumentPoints))
	}
}

func scoreAML(data models.ExtractedIdentityData, reasons []string) (int, []string) {
	// Absolute overrides first. These are not penalties that other signals
	// can offset; the component is forced to zero outright.
	if data.SanctionsMatch {
		return 0, append(reasons, "Sanctions match: AML score forced to 0")
	}
	if data.PEPMatch {
		return 0, append(reasons, "PEP match: AML score forced to 0")
	}

	points := maxAMLPoints - amlFlagPenalty*len(data.AMLFlags)
	if points < 0 {
		points = 0
	}
	if n := len(data.AMLFlags); n > 0 {
		return points, append(reasons,
			fmt.Sprintf("%d AML flag(s) raised (%d/%d points)", n, points, maxAMLPoints))
	}
	return points, append(reasons,
		fmt.Sprintf("AML screening clean (%d/%d points)", points, maxAMLPoints))
}
