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
	"fmt"

	"github.com/workray/taskmine/pkg/models"
)

// ConditionKind is the closed set of feature checks a rule may use. A
// condition with a kind outside this set never matches.
type ConditionKind string

const (
	CondFileOperationCountMin  ConditionKind = "file_operation_count_min"
	CondFileOperationRatioMin  ConditionKind = "file_operation_ratio_min"
	CondKeyboardEventCountMin  ConditionKind = "keyboard_event_count_min"
	CondKeyboardEventCountMax  ConditionKind = "keyboard_event_count_max"
	CondKeyboardRatioMin       ConditionKind = "keyboard_ratio_min"
	CondURLNavigationCountMin  ConditionKind = "url_navigation_count_min"
	CondScrollCountMin         ConditionKind = "scroll_count_min"
	CondCopyPasteCountMin      ConditionKind = "copy_paste_count_min"
	CondAppInCommunicationList ConditionKind = "app_in_communication_list"
)

// communicationApps holds app names and bundle identifiers treated as
// communication tools. App identity is the strongest category signal, so the
// communication rule runs first.
var communicationApps = map[string]struct{}{
	"com.microsoft.Outlook":     {},
	"com.microsoft.teams":       {},
	"com.microsoft.teams2":      {},
	"com.apple.mail":            {},
	"com.tinyspeck.slackmacgap": {},
	"com.google.Gmail":          {},
	"us.zoom.xos":               {},
	"com.apple.FaceTime":        {},
	"Outlook":                   {},
	"Teams":                     {},
	"Mail":                      {},
	"Slack":                     {},
	"Zoom":                      {},
	"Gmail":                     {},
}

// Condition is one feature-threshold check inside a rule.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Threshold float64       `json:"threshold,omitempty"`
}

func (c Condition) holds(session *models.AggregatedSession) bool {
	total := session.TotalEventCount

	switch c.Kind {
	case CondFileOperationCountMin:
		return float64(session.FileOperationCount) >= c.Threshold
	case CondFileOperationRatioMin:
		return total > 0 && float64(session.FileOperationCount)/float64(total) >= c.Threshold
	case CondKeyboardEventCountMin:
		return float64(session.KeyboardEventCount) >= c.Threshold
	case CondKeyboardEventCountMax:
		return float64(session.KeyboardEventCount) <= c.Threshold
	case CondKeyboardRatioMin:
		return total > 0 && float64(session.KeyboardEventCount)/float64(total) >= c.Threshold
	case CondURLNavigationCountMin:
		return float64(session.URLNavigationCount) >= c.Threshold
	case CondScrollCountMin:
		return float64(session.ScrollCount) >= c.Threshold
	case CondCopyPasteCountMin:
		return float64(session.CopyPasteCount) >= c.Threshold
	case CondAppInCommunicationList:
		_, ok := communicationApps[session.AppName]
		return ok
	default:
		return false
	}
}

// Rule assigns a category with a fixed confidence when every condition holds.
type Rule struct {
	Name       string                `json:"name"`
	Category   models.ActionCategory `json:"category"`
	Confidence float64               `json:"confidence"`
	Conditions []Condition           `json:"conditions"`
}

// Matches reports whether every condition holds for the session. Rules never
// match empty sessions.
func (r Rule) Matches(session *models.AggregatedSession) bool {
	if session.TotalEventCount == 0 {
		return false
	}

	for _, cond := range r.Conditions {
		if !cond.holds(session) {
			return false
		}
	}

	return true
}

// DefaultRules returns the built-in ordered rule list.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "communication",
			Category:   models.CategoryCommunication,
			Confidence: 0.90,
			Conditions: []Condition{
				{Kind: CondAppInCommunicationList},
			},
		},
		{
			Name:       "file_operation",
			Category:   models.CategoryFileOperation,
			Confidence: 0.85,
			Conditions: []Condition{
				{Kind: CondFileOperationCountMin, Threshold: 3},
				{Kind: CondFileOperationRatioMin, Threshold: 0.15},
			},
		},
		// Review stays ahead of navigation_scroll: it is the stricter
		// superset (adds a copy_paste floor).
		{
			Name:       "review",
			Category:   models.CategoryReview,
			Confidence: 0.75,
			Conditions: []Condition{
				{Kind: CondScrollCountMin, Threshold: 15},
				{Kind: CondKeyboardEventCountMax, Threshold: 10},
				{Kind: CondCopyPasteCountMin, Threshold: 2},
			},
		},
		{
			Name:       "data_entry",
			Category:   models.CategoryDataEntry,
			Confidence: 0.85,
			Conditions: []Condition{
				{Kind: CondKeyboardEventCountMin, Threshold: 30},
				{Kind: CondKeyboardRatioMin, Threshold: 0.50},
			},
		},
		{
			Name:       "navigation_url",
			Category:   models.CategoryNavigation,
			Confidence: 0.80,
			Conditions: []Condition{
				{Kind: CondURLNavigationCountMin, Threshold: 5},
			},
		},
		{
			Name:       "navigation_scroll",
			Category:   models.CategoryNavigation,
			Confidence: 0.75,
			Conditions: []Condition{
				{Kind: CondScrollCountMin, Threshold: 20},
				{Kind: CondKeyboardEventCountMax, Threshold: 10},
			},
		},
	}
}

// RuleClassifier evaluates an ordered rule list. First match wins.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier builds a classifier over the given rules, falling back to
// DefaultRules when none are supplied.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &RuleClassifier{rules: rules}
}

// Classify assigns a category to one session. Empty sessions are UNKNOWN at
// full confidence; a session no rule matches is UNKNOWN at 0.50.
func (c *RuleClassifier) Classify(session *models.AggregatedSession) models.ClassificationResult {
	if session.TotalEventCount == 0 {
		return models.ClassificationResult{
			Category:    models.CategoryUnknown,
			Confidence:  1.0,
			RuleName:    "empty_session",
			Description: fmt.Sprintf("Empty session in %s", session.AppName),
		}
	}

	for _, rule := range c.rules {
		if rule.Matches(session) {
			return models.ClassificationResult{
				Category:    rule.Category,
				Confidence:  rule.Confidence,
				RuleName:    rule.Name,
				Description: describe(session, rule.Category),
			}
		}
	}

	return models.ClassificationResult{
		Category:   models.CategoryUnknown,
		Confidence: 0.50,
		RuleName:   "no_match",
		Description: fmt.Sprintf("Unclassified activity in %s (%d events)",
			session.AppName, session.TotalEventCount),
	}
}

// ClassifyBatch classifies multiple sessions in order.
func (c *RuleClassifier) ClassifyBatch(sessions []*models.AggregatedSession) []models.ClassificationResult {
	results := make([]models.ClassificationResult, 0, len(sessions))
	for _, s := range sessions {
		results = append(results, c.Classify(s))
	}

	return results
}

func describe(session *models.AggregatedSession, category models.ActionCategory) string {
	durationS := float64(session.DurationMS) / 1000

	switch category {
	case models.CategoryFileOperation:
		return fmt.Sprintf("File operations in %s (%d ops, %.0fs)",
			session.AppName, session.FileOperationCount, durationS)
	case models.CategoryDataEntry:
		return fmt.Sprintf("Data entry in %s (%d keystrokes, %.0fs)",
			session.AppName, session.KeyboardEventCount, durationS)
	case models.CategoryNavigation:
		return fmt.Sprintf("Navigation in %s (%d URLs, %d scrolls, %.0fs)",
			session.AppName, session.URLNavigationCount, session.ScrollCount, durationS)
	case models.CategoryCommunication:
		return fmt.Sprintf("Communication via %s (%.0fs)", session.AppName, durationS)
	case models.CategoryReview:
		return fmt.Sprintf("Document review in %s (%d scrolls, %d copies, %.0fs)",
			session.AppName, session.ScrollCount, session.CopyPasteCount, durationS)
	default:
		return fmt.Sprintf("Activity in %s (%d events, %.0fs)",
			session.AppName, session.TotalEventCount, durationS)
	}
}
