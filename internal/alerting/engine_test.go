package alerting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elite-command/refinery/internal/model"
)

type memStore struct {
	thresholds []model.Threshold
	alerts     map[string]*model.Alert
}

func newMemStore(thresholds ...model.Threshold) *memStore {
	return &memStore{thresholds: thresholds, alerts: make(map[string]*model.Alert)}
}

func (m *memStore) ListApplicableThresholds(_ context.Context, companyID string) ([]model.Threshold, error) {
	var out []model.Threshold
	for _, th := range m.thresholds {
		if th.CompanyID == "" || th.CompanyID == companyID {
			out = append(out, th)
		}
	}
	return out, nil
}

func (m *memStore) SaveAlert(_ context.Context, a *model.Alert) error {
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memStore) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	if a, ok := m.alerts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) UpdateAlert(_ context.Context, a *model.Alert) error {
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func scoreWith(overall float64) *model.Score {
	return &model.Score{ID: "score-1", CompanyID: "co-1", Overall: overall}
}

func TestEvaluateCriticalBreach(t *testing.T) {
	e := NewEngine(newMemStore(model.DefaultThreshold()))
	alerts, err := e.Evaluate(context.Background(), scoreWith(0.25))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelCritical, alerts[0].Level)
	assert.Equal(t, model.AlertActive, alerts[0].Status)
	assert.NotEmpty(t, alerts[0].RecommendedAction)
}

func TestEvaluateFirstBreachedCutOnly(t *testing.T) {
	e := NewEngine(newMemStore(model.DefaultThreshold()))

	alerts, err := e.Evaluate(context.Background(), scoreWith(0.45))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelLow, alerts[0].Level)

	alerts, err = e.Evaluate(context.Background(), scoreWith(0.65))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelMedium, alerts[0].Level)
}

func TestEvaluateNoBreach(t *testing.T) {
	e := NewEngine(newMemStore(model.DefaultThreshold()))
	alerts, err := e.Evaluate(context.Background(), scoreWith(0.9))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluateUsesDefaultWhenNoThresholds(t *testing.T) {
	e := NewEngine(newMemStore())
	alerts, err := e.Evaluate(context.Background(), scoreWith(0.2))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelCritical, alerts[0].Level)
}

func TestEvaluateOneAlertPerThreshold(t *testing.T) {
	global := model.DefaultThreshold()
	global.ID = "th-global"
	company := model.DefaultThreshold()
	company.ID = "th-co"
	company.CompanyID = "co-1"
	company.Medium = 0.8

	e := NewEngine(newMemStore(company, global))
	alerts, err := e.Evaluate(context.Background(), scoreWith(0.75))
	require.NoError(t, err)
	// Only the stricter company threshold is breached at 0.75.
	require.Len(t, alerts, 1)
	assert.Equal(t, "th-co", alerts[0].ThresholdID)
	assert.Equal(t, model.LevelMedium, alerts[0].Level)
}

func TestAlertLifecycleForwardOnly(t *testing.T) {
	s := newMemStore(model.DefaultThreshold())
	e := NewEngine(s)
	alerts, err := e.Evaluate(context.Background(), scoreWith(0.2))
	require.NoError(t, err)
	id := alerts[0].ID

	// Cannot resolve before acknowledging.
	_, err = e.Resolve(context.Background(), id, "ops", "notes")
	assert.Error(t, err)

	ack, err := e.Acknowledge(context.Background(), id, "ops")
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, ack.Status)
	assert.Equal(t, "ops", ack.AcknowledgedBy)
	require.NotNil(t, ack.AcknowledgedAt)

	// Double acknowledge rejected.
	_, err = e.Acknowledge(context.Background(), id, "ops")
	assert.Error(t, err)

	res, err := e.Resolve(context.Background(), id, "lead", "root cause found")
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, res.Status)
	assert.Equal(t, "lead", res.ResolvedBy)
	assert.Equal(t, "root cause found", res.ResolutionNotes)
	require.NotNil(t, res.ResolvedAt)

	// Resolved is terminal.
	_, err = e.Acknowledge(context.Background(), id, "ops")
	assert.Error(t, err)
	_, err = e.Resolve(context.Background(), id, "ops", "again")
	assert.Error(t, err)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	e := NewEngine(newMemStore())
	_, err := e.Acknowledge(context.Background(), "nope", "ops")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEvaluateNilScore(t *testing.T) {
	e := NewEngine(newMemStore())
	_, err := e.Evaluate(context.Background(), nil)
	assert.Error(t, err)
}
