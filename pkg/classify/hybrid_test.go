package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

type fakePredictor struct {
	trained    bool
	prediction *models.MLPrediction
}

func (f *fakePredictor) IsTrained() bool { return f.trained }

func (f *fakePredictor) Predict(_ *models.AggregatedSession) *models.MLPrediction {
	return f.prediction
}

func TestHybridClassifier_UntrainedFallsBackToRules(t *testing.T) {
	t.Parallel()

	h := NewHybridClassifier(nil, &fakePredictor{}, 0, logger.NewTestLogger())

	result := h.Classify(makeSession(sessionOpts{app: "Excel", keyboard: 50}))

	assert.Equal(t, models.CategoryDataEntry, result.Category)
	assert.Equal(t, models.ClassificationSourceRuleBased, result.Source)
	assert.Equal(t, "data_entry", result.RuleName)
	assert.Nil(t, result.MLConfidence)
}

func TestHybridClassifier_ConfidentModelWins(t *testing.T) {
	t.Parallel()

	ml := &fakePredictor{
		trained: true,
		prediction: &models.MLPrediction{
			Category:      models.CategoryReview,
			Confidence:    0.92,
			Probabilities: map[string]float64{"review": 0.92, "navigation": 0.08},
		},
	}
	h := NewHybridClassifier(nil, ml, 0, logger.NewTestLogger())

	result := h.Classify(makeSession(sessionOpts{app: "Excel", keyboard: 50}))

	assert.Equal(t, models.CategoryReview, result.Category)
	assert.Equal(t, models.ClassificationSourceML, result.Source)
	assert.Equal(t, 0.92, result.Confidence)
	require.NotNil(t, result.MLConfidence)
	assert.Equal(t, 0.92, *result.MLConfidence)
}

func TestHybridClassifier_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	// Exactly at the threshold counts as confident.
	atThreshold := &fakePredictor{
		trained: true,
		prediction: &models.MLPrediction{
			Category:   models.CategoryReview,
			Confidence: 0.75,
		},
	}
	h := NewHybridClassifier(nil, atThreshold, 0, logger.NewTestLogger())
	result := h.Classify(makeSession(sessionOpts{app: "Excel", keyboard: 50}))
	assert.Equal(t, models.ClassificationSourceML, result.Source)

	// Just below falls back to rules but keeps the model output.
	below := &fakePredictor{
		trained: true,
		prediction: &models.MLPrediction{
			Category:      models.CategoryReview,
			Confidence:    0.74,
			Probabilities: map[string]float64{"review": 0.74},
		},
	}
	h = NewHybridClassifier(nil, below, 0, logger.NewTestLogger())
	result = h.Classify(makeSession(sessionOpts{app: "Excel", keyboard: 50}))

	assert.Equal(t, models.ClassificationSourceRuleBased, result.Source)
	assert.Equal(t, models.CategoryDataEntry, result.Category)
	assert.Equal(t, "review", result.MLCategory)
	require.NotNil(t, result.MLConfidence)
	assert.Equal(t, 0.74, *result.MLConfidence)
}

func TestHybridClassifier_NilPredictorUsesRules(t *testing.T) {
	t.Parallel()

	h := NewHybridClassifier(NewRuleClassifier(nil), nil, 0.8, logger.NewTestLogger())

	result := h.Classify(makeSession(sessionOpts{app: "Slack", keyboard: 5}))

	assert.Equal(t, models.CategoryCommunication, result.Category)
	assert.Equal(t, models.ClassificationSourceRuleBased, result.Source)
}

func TestHybridClassifier_ClassifyBatch(t *testing.T) {
	t.Parallel()

	h := NewHybridClassifier(nil, &fakePredictor{}, 0, logger.NewTestLogger())

	results := h.ClassifyBatch([]*models.AggregatedSession{
		makeSession(sessionOpts{app: "Excel", keyboard: 50}),
		makeSession(sessionOpts{app: "Excel"}),
	})

	require.Len(t, results, 2)
	assert.Equal(t, models.CategoryDataEntry, results[0].Category)
	assert.Equal(t, models.CategoryUnknown, results[1].Category)
}
