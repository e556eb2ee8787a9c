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
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/workray/taskmine/pkg/models"
)

// Label sources recorded on training samples.
const (
	SampleSourceRuleBased = "rule_based"
	SampleSourceHuman     = "human"
	SampleSourceCorrected = "corrected"
)

// LabeledSample is one feature vector with its ground-truth category.
type LabeledSample struct {
	Features  []float64 `json:"features"`
	Label     string    `json:"label"`
	SessionID string    `json:"session_id,omitempty"`
	Source    string    `json:"source"`
}

// DatasetSplit holds the train/test partitions of a dataset.
type DatasetSplit struct {
	TrainFeatures [][]float64
	TrainLabels   []string
	TestFeatures  [][]float64
	TestLabels    []string
}

// TrainingDataset is a versioned collection of labeled samples.
type TrainingDataset struct {
	Samples              []LabeledSample `json:"samples"`
	Version              int             `json:"version"`
	FeatureSchemaVersion int             `json:"feature_schema_version"`
	FeatureNames         []string        `json:"feature_names"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewTrainingDataset creates an empty dataset on the current feature schema.
func NewTrainingDataset() *TrainingDataset {
	return &TrainingDataset{
		Version:              1,
		FeatureSchemaVersion: FeatureSchemaVersion,
		FeatureNames:         append([]string(nil), FeatureNames...),
		CreatedAt:            time.Now().UTC(),
	}
}

// Size is the number of samples.
func (d *TrainingDataset) Size() int {
	return len(d.Samples)
}

// LabelDistribution counts samples per label.
func (d *TrainingDataset) LabelDistribution() map[string]int {
	dist := make(map[string]int)
	for _, s := range d.Samples {
		dist[s.Label]++
	}

	return dist
}

// AddSample appends one sample.
func (d *TrainingDataset) AddSample(sample LabeledSample) {
	d.Samples = append(d.Samples, sample)
}

// AddSamples appends samples and bumps the dataset version.
func (d *TrainingDataset) AddSamples(samples []LabeledSample) {
	d.Samples = append(d.Samples, samples...)
	d.Version++
}

// StratifiedSplit partitions the dataset so each label is represented
// proportionally in both partitions. At least one sample per label lands in
// the test set.
func (d *TrainingDataset) StratifiedSplit(testRatio float64, seed int64) DatasetSplit {
	rng := rand.New(rand.NewSource(seed))

	byLabel := make(map[string][]LabeledSample)
	for _, s := range d.Samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	var split DatasetSplit

	for _, label := range labels {
		shuffled := append([]LabeledSample(nil), byLabel[label]...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		nTest := int(float64(len(shuffled)) * testRatio)
		if nTest < 1 {
			nTest = 1
		}

		for _, s := range shuffled[:nTest] {
			split.TestFeatures = append(split.TestFeatures, s.Features)
			split.TestLabels = append(split.TestLabels, s.Label)
		}

		for _, s := range shuffled[nTest:] {
			split.TrainFeatures = append(split.TrainFeatures, s.Features)
			split.TrainLabels = append(split.TrainLabels, s.Label)
		}
	}

	return split
}

// BuildDataset extracts features from sessions and pairs them with labels.
func BuildDataset(sessions []*models.AggregatedSession, labels []models.ActionCategory, source string) (*TrainingDataset, error) {
	if len(sessions) != len(labels) {
		return nil, fmt.Errorf("sessions (%d) and labels (%d) must have the same length",
			len(sessions), len(labels))
	}

	dataset := NewTrainingDataset()

	for i, session := range sessions {
		dataset.AddSample(LabeledSample{
			Features:  ExtractFeatures(session),
			Label:     string(labels[i]),
			SessionID: session.SessionID,
			Source:    source,
		})
	}

	return dataset, nil
}

// ExportDataset writes the dataset as JSON, creating parent directories.
func ExportDataset(dataset *TrainingDataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	data, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	return nil
}

// ImportDataset reads a dataset previously written by ExportDataset.
func ImportDataset(path string) (*TrainingDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset TrainingDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	return &dataset, nil
}
