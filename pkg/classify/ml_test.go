package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/models"
)

// trainingFixture builds a separable two-class dataset: heavy-keyboard data
// entry sessions versus scroll-and-URL navigation sessions.
func trainingFixture(t *testing.T) *TrainingDataset {
	t.Helper()

	var sessions []*models.AggregatedSession

	var labels []models.ActionCategory

	for i := 0; i < 20; i++ {
		sessions = append(sessions, makeSession(sessionOpts{
			app:      "Excel",
			keyboard: 40 + i,
			mouse:    5,
		}))
		labels = append(labels, models.CategoryDataEntry)

		sessions = append(sessions, makeSession(sessionOpts{
			app:    "Chrome",
			scroll: 20 + i,
			urlNav: 5 + i%5,
			mouse:  3,
		}))
		labels = append(labels, models.CategoryNavigation)
	}

	dataset, err := BuildDataset(sessions, labels, SampleSourceRuleBased)
	require.NoError(t, err)

	return dataset
}

func TestMLClassifier_UntrainedPredictsNil(t *testing.T) {
	t.Parallel()

	c := NewMLClassifier()

	assert.False(t, c.IsTrained())
	assert.Nil(t, c.Predict(typicalSession()))

	batch := c.PredictBatch([]*models.AggregatedSession{typicalSession()})
	require.Len(t, batch, 1)
	assert.Nil(t, batch[0])
}

func TestMLClassifier_TrainRejectsTinyDataset(t *testing.T) {
	t.Parallel()

	dataset := NewTrainingDataset()
	for i := 0; i < 5; i++ {
		dataset.AddSample(LabeledSample{
			Features: ExtractFeatures(typicalSession()),
			Label:    string(models.CategoryDataEntry),
			Source:   SampleSourceHuman,
		})
	}

	c := NewMLClassifier()
	_, err := c.Train(dataset)
	require.Error(t, err)
	assert.False(t, c.IsTrained())
}

func TestMLClassifier_TrainsAndSeparatesClasses(t *testing.T) {
	t.Parallel()

	c := NewMLClassifier()

	metrics, err := c.Train(trainingFixture(t))
	require.NoError(t, err)
	require.True(t, c.IsTrained())

	assert.GreaterOrEqual(t, metrics.Accuracy, 0.75)
	assert.Equal(t, 40, metrics.SampleCount)
	assert.Equal(t, FeatureSchemaVersion, metrics.FeatureSchemaVersion)
	assert.Contains(t, metrics.PerClass, string(models.CategoryDataEntry))
	assert.Contains(t, metrics.PerClass, string(models.CategoryNavigation))

	pred := c.Predict(makeSession(sessionOpts{app: "Excel", keyboard: 60, mouse: 4}))
	require.NotNil(t, pred)
	assert.Equal(t, models.CategoryDataEntry, pred.Category)
	assert.Greater(t, pred.Confidence, 0.5)

	// Probabilities are a distribution over the trained labels.
	var sum float64
	for _, p := range pred.Probabilities {
		sum += p
	}

	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestMLClassifier_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "models", "classifier.json")

	trained := NewMLClassifier()
	_, err := trained.Train(trainingFixture(t))
	require.NoError(t, err)
	require.NoError(t, trained.Save(path))

	loaded := NewMLClassifier()
	require.NoError(t, loaded.Load(path))
	require.True(t, loaded.IsTrained())

	session := makeSession(sessionOpts{app: "Chrome", scroll: 30, urlNav: 8})
	want := trained.Predict(session)
	got := loaded.Predict(session)

	require.NotNil(t, got)
	assert.Equal(t, want.Category, got.Category)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
}

func TestMLClassifier_SaveRequiresTraining(t *testing.T) {
	t.Parallel()

	c := NewMLClassifier()
	err := c.Save(filepath.Join(t.TempDir(), "model.json"))
	require.ErrorIs(t, err, ErrNotTrained)
}

func TestMLClassifier_LoadRejectsSchemaMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	payload := `{"schema_version": 999, "model": {"labels": ["a"], "weights": [[0.1]], "means": [], "stds": []}}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	c := NewMLClassifier()
	err := c.Load(path)
	require.ErrorIs(t, err, ErrModelSchemaMismatch)
	assert.False(t, c.IsTrained())
}

func TestMLClassifier_LoadMissingFile(t *testing.T) {
	t.Parallel()

	c := NewMLClassifier()
	err := c.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.False(t, c.IsTrained())
}

func TestTrainingDataset_StratifiedSplit(t *testing.T) {
	t.Parallel()

	dataset := trainingFixture(t)
	split := dataset.StratifiedSplit(0.2, 42)

	assert.Equal(t, dataset.Size(), len(split.TrainLabels)+len(split.TestLabels))

	// Both labels appear in both partitions.
	for _, labels := range [][]string{split.TrainLabels, split.TestLabels} {
		seen := make(map[string]bool)
		for _, l := range labels {
			seen[l] = true
		}

		assert.True(t, seen[string(models.CategoryDataEntry)])
		assert.True(t, seen[string(models.CategoryNavigation)])
	}
}

func TestDataset_ExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "datasets", "v1.json")
	dataset := trainingFixture(t)

	require.NoError(t, ExportDataset(dataset, path))

	loaded, err := ImportDataset(path)
	require.NoError(t, err)

	assert.Equal(t, dataset.Size(), loaded.Size())
	assert.Equal(t, dataset.FeatureSchemaVersion, loaded.FeatureSchemaVersion)
	assert.Equal(t, dataset.LabelDistribution(), loaded.LabelDistribution())
}

func TestBuildDataset_LengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := BuildDataset(
		[]*models.AggregatedSession{typicalSession()},
		nil,
		SampleSourceHuman,
	)
	require.Error(t, err)
}
