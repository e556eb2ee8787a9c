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

package models

// ActionCategory is the business-activity category assigned to a session.
type ActionCategory string

const (
	CategoryFileOperation   ActionCategory = "file_operation"
	CategoryDataEntry       ActionCategory = "data_entry"
	CategoryNavigation      ActionCategory = "navigation"
	CategoryCommunication   ActionCategory = "communication"
	CategoryReview          ActionCategory = "review"
	CategorySystemOperation ActionCategory = "system_operation"
	CategoryUnknown         ActionCategory = "unknown"
)

// Classification sources reported on hybrid results.
const (
	ClassificationSourceML        = "ml"
	ClassificationSourceRuleBased = "rule_based"
)

// ClassificationResult is the category a rule assigned to one session.
type ClassificationResult struct {
	Category    ActionCategory `json:"category"`
	Confidence  float64        `json:"confidence"`
	RuleName    string         `json:"rule_name"`
	Description string         `json:"description"`
}

// MLPrediction is the calibrated output of the trained model for one session.
type MLPrediction struct {
	Category      ActionCategory     `json:"category"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// HybridResult is the final classification for a session. Source is "ml" when
// the model prediction was confident enough, "rule_based" otherwise. The ML
// fields are populated for observability even when rules won.
type HybridResult struct {
	Category     ActionCategory     `json:"category"`
	Confidence   float64            `json:"confidence"`
	Source       string             `json:"source"`
	RuleName     string             `json:"rule_name,omitempty"`
	Description  string             `json:"description"`
	MLCategory   string             `json:"ml_category,omitempty"`
	MLConfidence *float64           `json:"ml_confidence,omitempty"`
	MLProbs      map[string]float64 `json:"ml_probabilities,omitempty"`
}
