package confidence

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elite-command/refinery/internal/model"
)

// stubProvider returns canned evidence; fields left nil mean "no evidence".
type stubProvider struct {
	consensus  *float64
	historical *float64
	cross      *float64
	errorRate  *float64
	failWith   error
}

func (p *stubProvider) ValidationConsensus(context.Context, string) (float64, bool, error) {
	if p.failWith != nil {
		return 0, false, p.failWith
	}
	if p.consensus == nil {
		return 0, false, nil
	}
	return *p.consensus, true, nil
}

func (p *stubProvider) HistoricalPerformance(context.Context, string, string) (float64, bool, error) {
	if p.failWith != nil {
		return 0, false, p.failWith
	}
	if p.historical == nil {
		return 0, false, nil
	}
	return *p.historical, true, nil
}

func (p *stubProvider) CrossValidation(context.Context, string) (float64, bool, error) {
	if p.failWith != nil {
		return 0, false, p.failWith
	}
	if p.cross == nil {
		return 0, false, nil
	}
	return *p.cross, true, nil
}

func (p *stubProvider) SourceErrorRate(context.Context, string, string) (float64, bool, error) {
	if p.failWith != nil {
		return 0, false, p.failWith
	}
	if p.errorRate == nil {
		return 0, false, nil
	}
	return *p.errorRate, true, nil
}

func fp(f float64) *float64 { return &f }

func baseInputs() Inputs {
	now := time.Now().UTC()
	return Inputs{
		TargetID:        "rec-1",
		CompanyID:       "co-1",
		SourceComponent: "webhook",
		FieldCount:      4,
		ExtractedCount:  4,
		Method:          "template_saas",
		ProcessingTime:  200 * time.Millisecond,
		TemplateUsed:    true,
		Now:             now,
	}
}

func TestScoreWeightInvariant(t *testing.T) {
	s := NewScorer(&stubProvider{})
	score, err := s.Score(context.Background(), baseInputs(), nil, model.DefaultThreshold())
	require.NoError(t, err)

	var weightedSum, totalWeight float64
	for _, f := range score.Factors {
		weightedSum += f.Score * f.Weight
		totalWeight += f.Weight
	}
	assert.InDelta(t, score.Overall, weightedSum/totalWeight, 1e-6)
}

func TestScoreHasAllFactorsInOrder(t *testing.T) {
	s := NewScorer(&stubProvider{})
	score, err := s.Score(context.Background(), baseInputs(), nil, model.DefaultThreshold())
	require.NoError(t, err)

	require.Len(t, score.Factors, 8)
	for i, ft := range model.FactorTypes() {
		assert.Equal(t, ft, score.Factors[i].Type)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, w := range model.DefaultWeights() {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScoreLevelBucketing(t *testing.T) {
	th := model.DefaultThreshold()
	assert.Equal(t, model.LevelCritical, th.LevelFor(0.29))
	assert.Equal(t, model.LevelCritical, th.LevelFor(0.3))
	assert.Equal(t, model.LevelCritical, th.LevelFor(0.49))
	assert.Equal(t, model.LevelLow, th.LevelFor(0.5))
	assert.Equal(t, model.LevelMedium, th.LevelFor(0.72))
	assert.Equal(t, model.LevelMedium, th.LevelFor(0.7))
	assert.Equal(t, model.LevelHigh, th.LevelFor(0.85))
	assert.Equal(t, model.LevelHigh, th.LevelFor(1.0))
	assert.Equal(t, model.LevelCritical, th.LevelFor(0.0))
}

func TestFreshnessSteps(t *testing.T) {
	now := time.Now().UTC()
	at := func(age time.Duration) *time.Time {
		ts := now.Add(-age)
		return &ts
	}
	assert.InDelta(t, 1.0, Freshness(nil, now), 1e-9)
	assert.InDelta(t, 1.0, Freshness(at(30*time.Minute), now), 1e-9)
	assert.InDelta(t, 0.9, Freshness(at(5*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.7, Freshness(at(3*24*time.Hour), now), 1e-9)
	assert.InDelta(t, 0.5, Freshness(at(30*24*time.Hour), now), 1e-9)
}

func TestTransformationAccuracyPenalties(t *testing.T) {
	s := NewScorer(&stubProvider{})

	clean := baseInputs()
	cleanScore, _, err := s.transformationAccuracy(clean)
	require.NoError(t, err)
	// 0.9 base, fast, template_saas reliability 0.95
	assert.InDelta(t, 0.9*1.0*0.95, cleanScore, 1e-9)

	errored := clean
	errored.TransformError = true
	erroredScore, _, err := s.transformationAccuracy(errored)
	require.NoError(t, err)
	assert.InDelta(t, cleanScore*0.3, erroredScore, 1e-9)

	slow := clean
	slow.ProcessingTime = 10 * time.Second
	slowScore, _, err := s.transformationAccuracy(slow)
	require.NoError(t, err)
	assert.InDelta(t, cleanScore*0.7, slowScore, 1e-9)

	basic := clean
	basic.Method = "basic_normalization"
	basicScore, _, err := s.transformationAccuracy(basic)
	require.NoError(t, err)
	assert.InDelta(t, 0.9*1.0*0.6, basicScore, 1e-9)
}

func TestHumanVerificationJump(t *testing.T) {
	s := NewScorer(&stubProvider{})

	in := baseInputs()
	unverified, err := s.Score(context.Background(), in, nil, model.DefaultThreshold())
	require.NoError(t, err)

	in.HumanVerified = true
	verified, err := s.Score(context.Background(), in, nil, model.DefaultThreshold())
	require.NoError(t, err)

	assert.InDelta(t, 0.5, factorScoreOf(t, unverified, model.FactorHumanVerification), 1e-9)
	assert.InDelta(t, 0.95, factorScoreOf(t, verified, model.FactorHumanVerification), 1e-9)
	assert.Greater(t, verified.Overall, unverified.Overall)
}

func TestProviderEvidenceReplacesDefaults(t *testing.T) {
	p := &stubProvider{consensus: fp(0.92), historical: fp(0.81), cross: fp(0.77), errorRate: fp(0.1)}
	s := NewScorer(p)

	score, err := s.Score(context.Background(), baseInputs(), nil, model.DefaultThreshold())
	require.NoError(t, err)

	assert.InDelta(t, 0.92, factorScoreOf(t, score, model.FactorValidationConsensus), 1e-9)
	assert.InDelta(t, 0.81, factorScoreOf(t, score, model.FactorHistoricalPerformance), 1e-9)
	assert.InDelta(t, 0.77, factorScoreOf(t, score, model.FactorCrossValidation), 1e-9)
	// webhook 0.9 discounted by 10% error rate
	assert.InDelta(t, 0.9*0.9, factorScoreOf(t, score, model.FactorSourceReliability), 1e-9)
}

func TestDefaultsWithoutEvidence(t *testing.T) {
	s := NewScorer(&stubProvider{})
	score, err := s.Score(context.Background(), baseInputs(), nil, model.DefaultThreshold())
	require.NoError(t, err)

	assert.InDelta(t, 0.6, factorScoreOf(t, score, model.FactorValidationConsensus), 1e-9)
	assert.InDelta(t, 0.7, factorScoreOf(t, score, model.FactorHistoricalPerformance), 1e-9)
	assert.InDelta(t, 0.6, factorScoreOf(t, score, model.FactorCrossValidation), 1e-9)
	assert.InDelta(t, 0.9, factorScoreOf(t, score, model.FactorSourceReliability), 1e-9)
}

func TestFactorFailureDegradesToNeutralDefault(t *testing.T) {
	p := &stubProvider{failWith: eris.New("store unavailable")}
	s := NewScorer(p)

	score, err := s.Score(context.Background(), baseInputs(), nil, model.DefaultThreshold())
	require.NoError(t, err, "factor failure must not abort the score")

	for _, ft := range []model.FactorType{
		model.FactorSourceReliability,
		model.FactorValidationConsensus,
		model.FactorHistoricalPerformance,
		model.FactorCrossValidation,
	} {
		f := factorOf(t, score, ft)
		assert.InDelta(t, neutralDefaults[ft], f.Score, 1e-9, string(ft))
		assert.Contains(t, f.Evidence.Error, "store unavailable", string(ft))
	}

	// Factors that need no provider still compute normally.
	assert.Empty(t, factorOf(t, score, model.FactorDataQuality).Evidence.Error)
}

func TestWeightOverrides(t *testing.T) {
	s := NewScorer(&stubProvider{})
	overrides := map[model.FactorType]float64{
		model.FactorDataQuality:       0.5,
		model.FactorSourceReliability: 0.0,
	}

	score, err := s.Score(context.Background(), baseInputs(), overrides, model.DefaultThreshold())
	require.NoError(t, err)

	assert.InDelta(t, 0.5, factorOf(t, score, model.FactorDataQuality).Weight, 1e-9)
	assert.InDelta(t, 0.0, factorOf(t, score, model.FactorSourceReliability).Weight, 1e-9)

	var weightedSum, totalWeight float64
	for _, f := range score.Factors {
		weightedSum += f.Contribution
		totalWeight += f.Weight
	}
	assert.InDelta(t, score.Overall, weightedSum/totalWeight, 1e-6)
}

func TestCompanyThresholdOverrideWins(t *testing.T) {
	strict := model.DefaultThreshold()
	strict.CompanyID = "co-1"
	strict.High = 0.95
	strict.Medium = 0.9

	s := NewScorer(&stubProvider{})
	score, err := s.Score(context.Background(), baseInputs(), nil, strict)
	require.NoError(t, err)

	// Default thresholds would call this medium or high; the strict company
	// override pushes it down.
	assert.NotEqual(t, model.LevelHigh, score.Level)
}

func TestScoreMissingTarget(t *testing.T) {
	s := NewScorer(&stubProvider{})
	in := baseInputs()
	in.TargetID = ""
	_, err := s.Score(context.Background(), in, nil, model.DefaultThreshold())
	assert.Error(t, err)
}

func TestDataQualityCompleteness(t *testing.T) {
	s := NewScorer(&stubProvider{})
	in := baseInputs()
	in.FieldCount = 10
	in.ExtractedCount = 5

	score, _, err := s.dataQuality(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func factorOf(t *testing.T, s *model.Score, ft model.FactorType) model.Factor {
	t.Helper()
	for _, f := range s.Factors {
		if f.Type == ft {
			return f
		}
	}
	t.Fatalf("factor %s not found", ft)
	return model.Factor{}
}

func factorScoreOf(t *testing.T, s *model.Score, ft model.FactorType) float64 {
	return factorOf(t, s, ft).Score
}
