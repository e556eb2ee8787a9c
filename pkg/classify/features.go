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

// Package classify turns aggregated sessions into business-activity
// categories. The rule engine covers the cold-start phase; once enough
// labeled sessions exist a trained model takes over for confident
// predictions, with the rules as fallback.
package classify

import (
	"strings"
	"time"

	"github.com/workray/taskmine/pkg/models"
)

// FeatureSchemaVersion identifies the feature-vector layout. Bump it whenever
// FeatureNames changes so persisted models trained on the old layout are
// rejected on load.
const FeatureSchemaVersion = 1

// AppCategories in one-hot encoding order.
var AppCategories = []string{
	"spreadsheet",
	"browser",
	"email",
	"communication",
	"document",
	"crm",
	"project_management",
	"development",
	"other",
}

// FeatureNames lists every feature in vector order.
var FeatureNames = []string{
	"keyboard_count",
	"mouse_count",
	"copy_paste_count",
	"scroll_count",
	"file_op_count",
	"url_nav_count",
	"total_event_count",
	"keyboard_ratio",
	"mouse_ratio",
	"copy_paste_ratio",
	"scroll_ratio",
	"file_op_ratio",
	"url_nav_ratio",
	"duration_seconds",
	"active_ratio",
	"events_per_second",
	"hour_of_day",
	"day_of_week",
	"is_business_hours",
	"keyboard_mouse_ratio",
	"input_diversity",
	"app_cat_spreadsheet",
	"app_cat_browser",
	"app_cat_email",
	"app_cat_communication",
	"app_cat_document",
	"app_cat_crm",
	"app_cat_project_management",
	"app_cat_development",
	"app_cat_other",
}

// appCategoryKeywords maps each category to case-insensitive substrings
// matched against the app name. Categories are tested in AppCategories order,
// first match wins, "other" is the fallback.
var appCategoryKeywords = map[string][]string{
	"spreadsheet":        {"excel", "sheets", "numbers"},
	"browser":            {"chrome", "safari", "firefox", "edge", "brave", "opera"},
	"email":              {"outlook", "mail", "gmail", "thunderbird"},
	"communication":      {"slack", "teams", "zoom", "facetime", "messages", "discord", "webex"},
	"document":           {"word", "docs", "pages", "acrobat", "preview", "onenote"},
	"crm":                {"salesforce", "hubspot", "dynamics", "zoho"},
	"project_management": {"jira", "asana", "trello", "monday", "basecamp", "linear"},
	"development":        {"code", "xcode", "intellij", "pycharm", "terminal", "iterm", "vim", "sublime"},
}

// DetectAppCategory maps an app name to one of AppCategories by
// case-insensitive substring match.
func DetectAppCategory(appName string) string {
	lower := strings.ToLower(appName)

	for _, category := range AppCategories {
		for _, keyword := range appCategoryKeywords[category] {
			if strings.Contains(lower, keyword) {
				return category
			}
		}
	}

	return "other"
}

// ExtractFeatures converts a session into the fixed-order feature vector.
// Every element is finite: ratios are 0 when their denominator is 0.
func ExtractFeatures(session *models.AggregatedSession) []float64 {
	features := make([]float64, 0, len(FeatureNames))

	keyboard := float64(session.KeyboardEventCount)
	mouse := float64(session.MouseEventCount)
	copyPaste := float64(session.CopyPasteCount)
	scroll := float64(session.ScrollCount)
	fileOps := float64(session.FileOperationCount)
	urlNav := float64(session.URLNavigationCount)
	total := float64(session.TotalEventCount)

	features = append(features, keyboard, mouse, copyPaste, scroll, fileOps, urlNav, total)

	// Per-type ratios.
	for _, count := range []float64{keyboard, mouse, copyPaste, scroll, fileOps, urlNav} {
		features = append(features, safeRatio(count, total))
	}

	durationSeconds := float64(session.DurationMS) / 1000.0
	features = append(features,
		durationSeconds,
		safeRatio(float64(session.ActiveDurationMS), float64(session.DurationMS)),
		safeRatio(total, durationSeconds),
	)

	// Temporal features from the session open timestamp.
	start := session.StartedAt.UTC()
	features = append(features,
		float64(start.Hour()),
		float64(mondayIndexed(start.Weekday())),
		boolFeature(isBusinessHours(start)),
	)

	features = append(features, keyboard/max(mouse, 1.0))

	features = append(features, inputDiversity(session))

	category := DetectAppCategory(session.AppName)
	for _, c := range AppCategories {
		features = append(features, boolFeature(c == category))
	}

	return features
}

// ExtractFeaturesBatch extracts vectors for multiple sessions.
func ExtractFeaturesBatch(sessions []*models.AggregatedSession) [][]float64 {
	out := make([][]float64, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ExtractFeatures(s))
	}

	return out
}

func safeRatio(numerator, denominator float64) float64 {
	if denominator <= 0 {
		return 0.0
	}

	return numerator / denominator
}

// mondayIndexed converts time.Weekday (Sunday=0) to Monday=0.
func mondayIndexed(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func isBusinessHours(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}

	return t.Hour() >= 8 && t.Hour() < 18
}

// inputDiversity is the fraction of the six interaction types with a
// non-zero count.
func inputDiversity(session *models.AggregatedSession) float64 {
	counts := []int{
		session.KeyboardEventCount,
		session.MouseEventCount,
		session.CopyPasteCount,
		session.ScrollCount,
		session.FileOperationCount,
		session.URLNavigationCount,
	}

	nonZero := 0

	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}

	return float64(nonZero) / float64(len(counts))
}

func boolFeature(b bool) float64 {
	if b {
		return 1.0
	}

	return 0.0
}
