/*
 * Copyright 2026 Workray, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/workray/taskmine/pkg/models"
)

// Training hyperparameters for the softmax regression model. Fixed rather
// than configurable: the feature space is small and these converge reliably
// on standardized inputs.
const (
	minTrainingSamples = 10
	trainTestRatio     = 0.2
	trainSeed          = 42
	trainEpochs        = 500
	trainLearningRate  = 0.1
	trainL2            = 1e-4
)

// ErrModelSchemaMismatch is returned by Load when the persisted model was
// trained on a different feature-vector layout.
var ErrModelSchemaMismatch = errors.New("model feature schema version mismatch")

// ErrNotTrained is returned by Save when there is no model to persist.
var ErrNotTrained = errors.New("no trained model")

// TrainingMetrics summarizes a training run, evaluated on the held-out split.
type TrainingMetrics struct {
	Accuracy             float64                 `json:"accuracy"`
	WeightedF1           float64                 `json:"weighted_f1"`
	PerClass             map[string]ClassMetrics `json:"per_class"`
	SampleCount          int                     `json:"sample_count"`
	FeatureSchemaVersion int                     `json:"feature_schema_version"`
}

// ClassMetrics holds precision, recall, and F1 for one label.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// MLClassifier is a multinomial logistic-regression model over the session
// feature vector. Until Train or Load succeeds it predicts nothing and the
// hybrid classifier falls through to the rules.
type MLClassifier struct {
	weights *mat.Dense // classes x (features + bias)
	labels  []string
	means   []float64
	stds    []float64
}

// NewMLClassifier returns an untrained classifier.
func NewMLClassifier() *MLClassifier {
	return &MLClassifier{}
}

// IsTrained reports whether a model has been trained or loaded.
func (c *MLClassifier) IsTrained() bool {
	return c.weights != nil
}

// Train fits the model on a labeled dataset and evaluates it on a stratified
// held-out split. Requires at least 10 samples.
func (c *MLClassifier) Train(dataset *TrainingDataset) (*TrainingMetrics, error) {
	if dataset.Size() < minTrainingSamples {
		return nil, fmt.Errorf("need at least %d samples, got %d", minTrainingSamples, dataset.Size())
	}

	if dataset.FeatureSchemaVersion != FeatureSchemaVersion {
		return nil, fmt.Errorf("%w: dataset has v%d, current is v%d",
			ErrModelSchemaMismatch, dataset.FeatureSchemaVersion, FeatureSchemaVersion)
	}

	split := dataset.StratifiedSplit(trainTestRatio, trainSeed)

	labels := collectLabels(split.TrainLabels, split.TestLabels)
	labelIndex := make(map[string]int, len(labels))

	for i, l := range labels {
		labelIndex[l] = i
	}

	means, stds := fitScaler(split.TrainFeatures)

	x := designMatrix(split.TrainFeatures, means, stds)
	y := make([]int, len(split.TrainLabels))

	for i, l := range split.TrainLabels {
		y[i] = labelIndex[l]
	}

	weights := fitSoftmax(x, y, len(labels))

	c.weights = weights
	c.labels = labels
	c.means = means
	c.stds = stds

	metrics := c.evaluate(split, labelIndex)
	metrics.SampleCount = dataset.Size()
	metrics.FeatureSchemaVersion = FeatureSchemaVersion

	return metrics, nil
}

// Predict classifies one session. Returns nil when no model is trained,
// signaling fallback to the rule classifier.
func (c *MLClassifier) Predict(session *models.AggregatedSession) *models.MLPrediction {
	if !c.IsTrained() {
		return nil
	}

	return c.predictVector(ExtractFeatures(session))
}

// PredictBatch classifies multiple sessions. Entries are nil when untrained.
func (c *MLClassifier) PredictBatch(sessions []*models.AggregatedSession) []*models.MLPrediction {
	out := make([]*models.MLPrediction, len(sessions))

	if !c.IsTrained() {
		return out
	}

	for i, s := range sessions {
		out[i] = c.predictVector(ExtractFeatures(s))
	}

	return out
}

func (c *MLClassifier) predictVector(features []float64) *models.MLPrediction {
	probs := c.probabilities(features)

	bestIdx := 0
	for i := range probs {
		if probs[i] > probs[bestIdx] {
			bestIdx = i
		}
	}

	probMap := make(map[string]float64, len(c.labels))
	for i, label := range c.labels {
		probMap[label] = round4(probs[i])
	}

	return &models.MLPrediction{
		Category:      models.ActionCategory(c.labels[bestIdx]),
		Confidence:    round4(probs[bestIdx]),
		Probabilities: probMap,
	}
}

func (c *MLClassifier) probabilities(features []float64) []float64 {
	scaled := make([]float64, len(features)+1)
	scaled[0] = 1.0 // bias

	for i, f := range features {
		if i < len(c.means) && c.stds[i] > 0 {
			scaled[i+1] = (f - c.means[i]) / c.stds[i]
		} else {
			scaled[i+1] = f
		}
	}

	scores := make([]float64, len(c.labels))
	for k := range c.labels {
		scores[k] = mat.Dot(c.weights.RowView(k), mat.NewVecDense(len(scaled), scaled))
	}

	return softmax(scores)
}

// persistedModel is the on-disk form inside the versioned envelope.
type persistedModel struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"`
	Means   []float64   `json:"means"`
	Stds    []float64   `json:"stds"`
}

type modelEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	Model         persistedModel `json:"model"`
}

// Save persists the trained model, creating parent directories.
func (c *MLClassifier) Save(path string) error {
	if !c.IsTrained() {
		return ErrNotTrained
	}

	rows, cols := c.weights.Dims()
	weights := make([][]float64, rows)

	for i := range weights {
		weights[i] = make([]float64, cols)
		mat.Row(weights[i], i, c.weights)
	}

	envelope := modelEnvelope{
		SchemaVersion: FeatureSchemaVersion,
		Model: persistedModel{
			Labels:  c.labels,
			Weights: weights,
			Means:   c.means,
			Stds:    c.stds,
		},
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	return nil
}

// Load restores a persisted model. A schema version mismatch returns
// ErrModelSchemaMismatch and leaves the classifier untrained rather than
// silently applying a model trained on a different feature layout.
func (c *MLClassifier) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}

	var envelope modelEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to parse model: %w", err)
	}

	if envelope.SchemaVersion != FeatureSchemaVersion {
		return fmt.Errorf("%w: model has v%d, current is v%d",
			ErrModelSchemaMismatch, envelope.SchemaVersion, FeatureSchemaVersion)
	}

	m := envelope.Model
	if len(m.Labels) == 0 || len(m.Weights) != len(m.Labels) {
		return errors.New("persisted model is malformed")
	}

	cols := len(m.Weights[0])
	weights := mat.NewDense(len(m.Labels), cols, nil)

	for i, row := range m.Weights {
		if len(row) != cols {
			return errors.New("persisted model has ragged weight rows")
		}

		weights.SetRow(i, row)
	}

	c.weights = weights
	c.labels = m.Labels
	c.means = m.Means
	c.stds = m.Stds

	return nil
}

func (c *MLClassifier) evaluate(split DatasetSplit, labelIndex map[string]int) *TrainingMetrics {
	n := len(split.TestLabels)
	if n == 0 {
		return &TrainingMetrics{PerClass: map[string]ClassMetrics{}}
	}

	correct := 0
	truePos := make([]int, len(c.labels))
	falsePos := make([]int, len(c.labels))
	falseNeg := make([]int, len(c.labels))
	support := make([]int, len(c.labels))

	for i, features := range split.TestFeatures {
		pred := c.predictVector(features)
		predIdx := labelIndex[string(pred.Category)]
		trueIdx := labelIndex[split.TestLabels[i]]

		support[trueIdx]++

		if predIdx == trueIdx {
			correct++
			truePos[trueIdx]++
		} else {
			falsePos[predIdx]++
			falseNeg[trueIdx]++
		}
	}

	perClass := make(map[string]ClassMetrics, len(c.labels))

	var weightedF1 float64

	for k, label := range c.labels {
		precision := safeRatio(float64(truePos[k]), float64(truePos[k]+falsePos[k]))
		recall := safeRatio(float64(truePos[k]), float64(truePos[k]+falseNeg[k]))
		f1 := 0.0

		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		perClass[label] = ClassMetrics{
			Precision: round4(precision),
			Recall:    round4(recall),
			F1:        round4(f1),
		}
		weightedF1 += f1 * float64(support[k]) / float64(n)
	}

	return &TrainingMetrics{
		Accuracy:   round4(float64(correct) / float64(n)),
		WeightedF1: round4(weightedF1),
		PerClass:   perClass,
	}
}

// fitSoftmax runs batch gradient descent on the cross-entropy loss with L2
// regularization. x is n x d (bias included), returns classes x d weights.
func fitSoftmax(x *mat.Dense, y []int, numClasses int) *mat.Dense {
	n, d := x.Dims()
	weights := mat.NewDense(numClasses, d, nil)

	probs := mat.NewDense(n, numClasses, nil)
	grad := mat.NewDense(numClasses, d, nil)

	for epoch := 0; epoch < trainEpochs; epoch++ {
		// Forward pass: P = softmax(X Wᵀ) row-wise.
		probs.Mul(x, weights.T())

		for i := 0; i < n; i++ {
			row := probs.RawRowView(i)
			copy(row, softmax(row))
			// Residual P - Y for the gradient.
			row[y[i]] -= 1.0
		}

		// Gradient: (P - Y)ᵀ X / n + λW.
		grad.Mul(probs.T(), x)
		grad.Scale(1.0/float64(n), grad)

		var reg mat.Dense
		reg.Scale(trainL2, weights)
		grad.Add(grad, &reg)

		grad.Scale(trainLearningRate, grad)
		weights.Sub(weights, grad)
	}

	return weights
}

// fitScaler computes per-feature mean and standard deviation.
func fitScaler(features [][]float64) (means, stds []float64) {
	if len(features) == 0 {
		return nil, nil
	}

	d := len(features[0])
	means = make([]float64, d)
	stds = make([]float64, d)

	for _, row := range features {
		for j, v := range row {
			means[j] += v
		}
	}

	for j := range means {
		means[j] /= float64(len(features))
	}

	for _, row := range features {
		for j, v := range row {
			diff := v - means[j]
			stds[j] += diff * diff
		}
	}

	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / float64(len(features)))
	}

	return means, stds
}

// designMatrix standardizes features and prepends a bias column.
func designMatrix(features [][]float64, means, stds []float64) *mat.Dense {
	n := len(features)
	d := len(means)
	x := mat.NewDense(n, d+1, nil)

	for i, row := range features {
		x.Set(i, 0, 1.0)

		for j, v := range row {
			if stds[j] > 0 {
				x.Set(i, j+1, (v-means[j])/stds[j])
			} else {
				x.Set(i, j+1, v)
			}
		}
	}

	return x
}

func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))

	var sum float64

	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}

	for i := range out {
		out[i] /= sum
	}

	return out
}

func collectLabels(groups ...[]string) []string {
	seen := make(map[string]struct{})

	var labels []string

	for _, group := range groups {
		for _, l := range group {
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}

				labels = append(labels, l)
			}
		}
	}

	sort.Strings(labels)

	return labels
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
