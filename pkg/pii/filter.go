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

package pii

import (
	"github.com/workray/taskmine/pkg/models"
)

// RedactionMarker replaces every match span. It contains no digits so
// redaction is idempotent: redact(redact(x)) == redact(x).
const RedactionMarker = "[PII_REDACTED]"

// DefaultQuarantineThreshold is the detection confidence at or above which
// an event is routed to quarantine instead of normal storage.
const DefaultQuarantineThreshold = 0.80

// Filter scans structured event fields against a pattern library. It is pure
// and side-effect-free; a single instance is safe for concurrent use.
type Filter struct {
	patterns  []Pattern
	threshold float64
}

// NewFilter builds a Filter over an explicit pattern set and quarantine
// threshold.
func NewFilter(patterns []Pattern, quarantineThreshold float64) *Filter {
	return &Filter{patterns: patterns, threshold: quarantineThreshold}
}

// NewDefaultFilter builds a Filter with the built-in pattern set and the
// default quarantine threshold.
func NewDefaultFilter() *Filter {
	return NewFilter(DefaultPatternSet(), DefaultQuarantineThreshold)
}

// ScanText runs every pattern over the text and returns one detection per
// match.
func (f *Filter) ScanText(text, fieldName string) []models.PIIDetection {
	var detections []models.PIIDetection

	for _, p := range f.patterns {
		for _, match := range p.Regex.FindAllString(text, -1) {
			detections = append(detections, models.PIIDetection{
				Category:    p.Category,
				FieldName:   fieldName,
				MatchedText: match,
				Confidence:  p.Confidence,
				Description: p.Description,
			})
		}
	}

	return detections
}

// RedactText replaces every pattern match with the redaction marker.
func (f *Filter) RedactText(text string) string {
	for _, p := range f.patterns {
		text = p.Regex.ReplaceAllString(text, RedactionMarker)
	}

	return text
}

// FilterEvent scans every scannable field of an event payload. String fields
// are scanned and redacted in place; nested maps are handled recursively.
// When redact is false, detections are still reported but CleanData keeps the
// original values.
func (f *Filter) FilterEvent(event map[string]any, redact bool) models.FilterResult {
	clean := make(map[string]any, len(event))

	var detections []models.PIIDetection

	f.filterInto(event, clean, "", redact, &detections)

	quarantine := false

	for _, d := range detections {
		if d.Confidence >= f.threshold {
			quarantine = true
			break
		}
	}

	return models.FilterResult{
		CleanData:             clean,
		Detections:            detections,
		HasPII:                len(detections) > 0,
		QuarantineRecommended: quarantine,
	}
}

// RedactEventData returns a deep copy of the payload with every string field
// redacted. Used for quarantine records, which never store raw values.
func (f *Filter) RedactEventData(event map[string]any) map[string]any {
	redacted := make(map[string]any, len(event))

	for key, value := range event {
		switch v := value.(type) {
		case string:
			redacted[key] = f.RedactText(v)
		case map[string]any:
			redacted[key] = f.RedactEventData(v)
		default:
			redacted[key] = value
		}
	}

	return redacted
}

func (f *Filter) filterInto(
	src, dst map[string]any, prefix string, redact bool, detections *[]models.PIIDetection,
) {
	for key, value := range src {
		fieldName := key
		if prefix != "" {
			fieldName = prefix + "." + key
		}

		switch v := value.(type) {
		case string:
			found := f.ScanText(v, fieldName)
			*detections = append(*detections, found...)

			if redact && len(found) > 0 {
				dst[key] = f.RedactText(v)
			} else {
				dst[key] = v
			}
		case map[string]any:
			nested := make(map[string]any, len(v))
			f.filterInto(v, nested, fieldName, redact, detections)
			dst[key] = nested
		default:
			dst[key] = value
		}
	}
}
