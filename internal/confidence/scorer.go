package confidence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
)

// EvidenceProvider supplies the historical signals some factors draw on.
// Implementations return ok=false when no evidence exists, which keeps the
// factor at its documented default.
type EvidenceProvider interface {
	ValidationConsensus(ctx context.Context, targetID string) (score float64, ok bool, err error)
	HistoricalPerformance(ctx context.Context, companyID, method string) (score float64, ok bool, err error)
	CrossValidation(ctx context.Context, targetID string) (score float64, ok bool, err error)
	SourceErrorRate(ctx context.Context, companyID, source string) (rate float64, ok bool, err error)
}

// Inputs carries everything the pipeline knows about one data point at
// scoring time.
type Inputs struct {
	TargetID        string
	CompanyID       string
	SourceComponent string
	SourceTimestamp *time.Time
	FieldCount      int // fields in the source payload
	ExtractedCount  int // fields that produced records
	Method          string
	ProcessingTime  time.Duration
	TransformError  bool
	TemplateUsed    bool
	// TemplateSpecificity in (0, 1]: how closely the template targets this
	// data point's category. Zero means unknown and scores as 1.
	TemplateSpecificity float64
	HumanVerified       bool
	Now                 time.Time
}

// Defaults used when a factor has no evidence to draw on.
const (
	defaultConsensus  = 0.6
	defaultHistorical = 0.7
	defaultCross      = 0.6
	humanUnverified   = 0.5
	humanVerified     = 0.95
)

// neutralDefaults are substituted when a factor computation fails outright.
var neutralDefaults = map[model.FactorType]float64{
	model.FactorDataQuality:            0.5,
	model.FactorSourceReliability:      0.7,
	model.FactorTransformationAccuracy: 0.6,
	model.FactorTemplateSpecificity:    0.5,
	model.FactorValidationConsensus:    0.5,
	model.FactorHistoricalPerformance:  0.6,
	model.FactorHumanVerification:      0.5,
	model.FactorCrossValidation:        0.5,
}

// sourceReliability rates the originating system component.
var sourceReliability = map[string]float64{
	"webhook":                0.9,
	"file_upload":            0.85,
	"email":                  0.8,
	"oauth_sync":             0.9,
	"template_normalization": 0.9,
	"api":                    0.95,
}

const sourceReliabilityDefault = 0.7

// methodReliability rates each transformation method.
var methodReliability = map[string]float64{
	"template_saas":       0.95,
	"template_ecommerce":  0.9,
	"template_fintech":    0.9,
	"basic_normalization": 0.6,
	"manual_entry":        0.8,
}

const methodReliabilityDefault = 0.7

// Scorer computes eight weighted evidence factors per data point.
type Scorer struct {
	provider EvidenceProvider
}

// NewScorer returns a scorer drawing historical evidence from provider.
func NewScorer(provider EvidenceProvider) *Scorer {
	return &Scorer{provider: provider}
}

// Score computes all factors for in, combines them under weights (template
// overrides merged over the defaults), and buckets the overall value against
// threshold. A factor whose computation fails degrades to its neutral
// default with the error recorded in evidence.
func (s *Scorer) Score(ctx context.Context, in Inputs, overrides map[model.FactorType]float64, threshold model.Threshold) (*model.Score, error) {
	if in.TargetID == "" {
		return nil, eris.New("confidence: missing target id")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	weights := model.DefaultWeights()
	for ft, w := range overrides {
		weights[ft] = w
	}

	var factors []model.Factor
	var weightedSum, totalWeight float64
	for _, ft := range model.FactorTypes() {
		score, evidence := s.computeFactor(ctx, ft, in)
		w := weights[ft]
		f := model.Factor{
			Type:         ft,
			Score:        score,
			Weight:       w,
			Contribution: score * w,
			Evidence:     evidence,
		}
		factors = append(factors, f)
		weightedSum += f.Contribution
		totalWeight += w
	}

	overall := 0.0
	if totalWeight > 0 {
		overall = weightedSum / totalWeight
	}
	overall = clamp(overall)

	return &model.Score{
		ID:        uuid.New().String(),
		TargetID:  in.TargetID,
		CompanyID: in.CompanyID,
		Overall:   overall,
		Level:     threshold.LevelFor(overall),
		Factors:   factors,
		CreatedAt: in.Now,
	}, nil
}

// computeFactor dispatches to the per-factor computation, degrading to the
// neutral default on failure.
func (s *Scorer) computeFactor(ctx context.Context, ft model.FactorType, in Inputs) (float64, model.FactorEvidence) {
	score, evidence, err := s.factorScore(ctx, ft, in)
	if err != nil {
		zap.L().Warn("confidence factor failed, using neutral default",
			zap.String("factor", string(ft)),
			zap.String("target_id", in.TargetID),
			zap.Error(err))
		return neutralDefaults[ft], model.FactorEvidence{
			Version: 1,
			Error:   err.Error(),
		}
	}
	return clamp(score), evidence
}

func (s *Scorer) factorScore(ctx context.Context, ft model.FactorType, in Inputs) (float64, model.FactorEvidence, error) {
	switch ft {
	case model.FactorDataQuality:
		return s.dataQuality(in)
	case model.FactorSourceReliability:
		return s.sourceReliability(ctx, in)
	case model.FactorTransformationAccuracy:
		return s.transformationAccuracy(in)
	case model.FactorTemplateSpecificity:
		return s.templateSpecificity(in)
	case model.FactorValidationConsensus:
		return s.validationConsensus(ctx, in)
	case model.FactorHistoricalPerformance:
		return s.historicalPerformance(ctx, in)
	case model.FactorHumanVerification:
		return s.humanVerification(in)
	case model.FactorCrossValidation:
		return s.crossValidation(ctx, in)
	default:
		return 0, model.FactorEvidence{}, eris.Errorf("confidence: unknown factor %q", ft)
	}
}

// dataQuality multiplies completeness, consistency, and freshness.
func (s *Scorer) dataQuality(in Inputs) (float64, model.FactorEvidence, error) {
	completeness := 1.0
	if in.FieldCount > 0 {
		completeness = float64(in.ExtractedCount) / float64(in.FieldCount)
		if completeness > 1 {
			completeness = 1
		}
	}

	consistency := 1.0
	freshness := Freshness(in.SourceTimestamp, in.Now)

	score := completeness * consistency * freshness
	return score, model.FactorEvidence{
		Version: 1,
		Measures: map[string]float64{
			"completeness": completeness,
			"consistency":  consistency,
			"freshness":    freshness,
		},
	}, nil
}

// Freshness decays stepwise with event age. A nil timestamp counts as fresh
// relative to pipeline time.
func Freshness(ts *time.Time, now time.Time) float64 {
	if ts == nil {
		return 1.0
	}
	age := now.Sub(*ts)
	switch {
	case age < time.Hour:
		return 1.0
	case age < 24*time.Hour:
		return 0.9
	case age < 168*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}

func (s *Scorer) sourceReliability(ctx context.Context, in Inputs) (float64, model.FactorEvidence, error) {
	base, ok := sourceReliability[in.SourceComponent]
	if !ok {
		base = sourceReliabilityDefault
	}

	evidence := model.FactorEvidence{
		Version:  1,
		Measures: map[string]float64{"base": base},
		Descriptions: []string{
			"source component: " + orUnknown(in.SourceComponent),
		},
	}

	score := base
	if s.provider != nil {
		rate, has, err := s.provider.SourceErrorRate(ctx, in.CompanyID, in.SourceComponent)
		if err != nil {
			return 0, model.FactorEvidence{}, eris.Wrap(err, "confidence: source error rate")
		}
		if has {
			score = base * (1 - rate)
			evidence.Measures["error_rate"] = rate
		}
	}
	return score, evidence, nil
}

func (s *Scorer) transformationAccuracy(in Inputs) (float64, model.FactorEvidence, error) {
	score := 0.9
	if in.TransformError {
		score *= 0.3
	}

	timeScale := processingTimeScale(in.ProcessingTime)
	score *= timeScale

	method, ok := methodReliability[in.Method]
	if !ok {
		method = methodReliabilityDefault
	}
	score *= method

	return score, model.FactorEvidence{
		Version: 1,
		Measures: map[string]float64{
			"time_scale":         timeScale,
			"method_reliability": method,
			"processing_ms":      float64(in.ProcessingTime.Milliseconds()),
		},
		Descriptions: []string{"method: " + orUnknown(in.Method)},
	}, nil
}

func processingTimeScale(d time.Duration) float64 {
	switch {
	case d < time.Second:
		return 1.0
	case d < 5*time.Second:
		return 0.9
	case d < 30*time.Second:
		return 0.7
	default:
		return 0.5
	}
}

func (s *Scorer) templateSpecificity(in Inputs) (float64, model.FactorEvidence, error) {
	base := 0.7
	if in.TemplateUsed || strings.HasPrefix(in.Method, model.MethodTemplatePrefix) {
		base = 0.9
	}
	specificity := in.TemplateSpecificity
	if specificity <= 0 || specificity > 1 {
		specificity = 1.0
	}
	return base * specificity, model.FactorEvidence{
		Version: 1,
		Measures: map[string]float64{
			"base":        base,
			"specificity": specificity,
		},
	}, nil
}

func (s *Scorer) validationConsensus(ctx context.Context, in Inputs) (float64, model.FactorEvidence, error) {
	if s.provider != nil {
		agreement, has, err := s.provider.ValidationConsensus(ctx, in.TargetID)
		if err != nil {
			return 0, model.FactorEvidence{}, eris.Wrap(err, "confidence: validation consensus")
		}
		if has {
			return agreement, model.FactorEvidence{
				Version:  1,
				Measures: map[string]float64{"agreement": agreement},
			}, nil
		}
	}
	return defaultConsensus, model.FactorEvidence{
		Version:      1,
		Descriptions: []string{"no validator reviews"},
	}, nil
}

func (s *Scorer) historicalPerformance(ctx context.Context, in Inputs) (float64, model.FactorEvidence, error) {
	if s.provider != nil {
		avg, has, err := s.provider.HistoricalPerformance(ctx, in.CompanyID, in.Method)
		if err != nil {
			return 0, model.FactorEvidence{}, eris.Wrap(err, "confidence: historical performance")
		}
		if has {
			return avg, model.FactorEvidence{
				Version:  1,
				Measures: map[string]float64{"running_average": avg},
			}, nil
		}
	}
	return defaultHistorical, model.FactorEvidence{
		Version:      1,
		Descriptions: []string{"no history for method"},
	}, nil
}

func (s *Scorer) humanVerification(in Inputs) (float64, model.FactorEvidence, error) {
	if in.HumanVerified {
		return humanVerified, model.FactorEvidence{
			Version:      1,
			Descriptions: []string{"explicitly verified by a human"},
		}, nil
	}
	return humanUnverified, model.FactorEvidence{Version: 1}, nil
}

func (s *Scorer) crossValidation(ctx context.Context, in Inputs) (float64, model.FactorEvidence, error) {
	if s.provider != nil {
		agreement, has, err := s.provider.CrossValidation(ctx, in.TargetID)
		if err != nil {
			return 0, model.FactorEvidence{}, eris.Wrap(err, "confidence: cross validation")
		}
		if has {
			return agreement, model.FactorEvidence{
				Version:  1,
				Measures: map[string]float64{"agreement": agreement},
			}, nil
		}
	}
	return defaultCross, model.FactorEvidence{
		Version:      1,
		Descriptions: []string{"no corroborating source"},
	}, nil
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
