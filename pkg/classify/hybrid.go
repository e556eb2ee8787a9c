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
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

// DefaultMLConfidenceThreshold is the minimum top-1 probability for a model
// prediction to override the rules.
const DefaultMLConfidenceThreshold = 0.75

// MLPredictor is the model surface the hybrid classifier depends on.
type MLPredictor interface {
	IsTrained() bool
	Predict(session *models.AggregatedSession) *models.MLPrediction
}

// HybridClassifier prefers confident model predictions and falls back to the
// rule engine. The model output rides along on rule-based results so low
// confidence predictions stay observable.
type HybridClassifier struct {
	rules     *RuleClassifier
	ml        MLPredictor
	threshold float64
	log       logger.Logger
}

// NewHybridClassifier wires the rule and model classifiers together. A
// threshold of 0 selects the default.
func NewHybridClassifier(rules *RuleClassifier, ml MLPredictor, threshold float64, log logger.Logger) *HybridClassifier {
	if rules == nil {
		rules = NewRuleClassifier(nil)
	}

	if threshold <= 0 {
		threshold = DefaultMLConfidenceThreshold
	}

	return &HybridClassifier{rules: rules, ml: ml, threshold: threshold, log: log}
}

// Classify assigns a category to a session. The model wins only when it is
// trained and its top-1 probability reaches the threshold; a probability
// exactly at the threshold counts as confident.
func (h *HybridClassifier) Classify(session *models.AggregatedSession) models.HybridResult {
	var prediction *models.MLPrediction
	if h.ml != nil && h.ml.IsTrained() {
		prediction = h.ml.Predict(session)
	}

	if prediction != nil && prediction.Confidence >= h.threshold {
		return models.HybridResult{
			Category:     prediction.Category,
			Confidence:   prediction.Confidence,
			Source:       models.ClassificationSourceML,
			Description:  describe(session, prediction.Category),
			MLCategory:   string(prediction.Category),
			MLConfidence: &prediction.Confidence,
			MLProbs:      prediction.Probabilities,
		}
	}

	ruleResult := h.rules.Classify(session)

	result := models.HybridResult{
		Category:    ruleResult.Category,
		Confidence:  ruleResult.Confidence,
		Source:      models.ClassificationSourceRuleBased,
		RuleName:    ruleResult.RuleName,
		Description: ruleResult.Description,
	}

	if prediction != nil {
		result.MLCategory = string(prediction.Category)
		result.MLConfidence = &prediction.Confidence
		result.MLProbs = prediction.Probabilities

		h.log.Debug().
			Str("app_name", session.AppName).
			Str("ml_category", string(prediction.Category)).
			Float64("ml_confidence", prediction.Confidence).
			Str("rule_category", string(ruleResult.Category)).
			Msg("Model prediction below confidence threshold, using rules")
	}

	return result
}

// ClassifyBatch classifies multiple sessions in order.
func (h *HybridClassifier) ClassifyBatch(sessions []*models.AggregatedSession) []models.HybridResult {
	results := make([]models.HybridResult, 0, len(sessions))
	for _, s := range sessions {
		results = append(results, h.Classify(s))
	}

	return results
}
