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

import "time"

// PIICategory classifies the kind of personal data a pattern detects.
type PIICategory string

const (
	PIICategorySSN         PIICategory = "ssn"
	PIICategoryCreditCard  PIICategory = "credit_card"
	PIICategoryEmail       PIICategory = "email"
	PIICategoryPhone       PIICategory = "phone"
	PIICategoryAddress     PIICategory = "address"
	PIICategoryDateOfBirth PIICategory = "date_of_birth"
	PIICategoryFinancial   PIICategory = "financial"
)

// QuarantineStatus is the review state of a quarantined event.
type QuarantineStatus string

const (
	QuarantinePendingReview QuarantineStatus = "pending_review"
	QuarantineReleased      QuarantineStatus = "released"
	QuarantineDeleted       QuarantineStatus = "deleted"
	QuarantineAutoDeleted   QuarantineStatus = "auto_deleted"
)

// PIIDetection is one pattern match found while scanning an event field.
type PIIDetection struct {
	Category    PIICategory `json:"category"`
	FieldName   string      `json:"field_name"`
	MatchedText string      `json:"matched_text"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
}

// FilterResult is the outcome of running the PII filter over one event.
// CleanData holds the redacted copy of the event payload.
type FilterResult struct {
	CleanData             map[string]any `json:"clean_data"`
	Detections            []PIIDetection `json:"detections,omitempty"`
	HasPII                bool           `json:"has_pii"`
	QuarantineRecommended bool           `json:"quarantine_recommended"`
}

// QuarantineRecord holds a redacted copy of an event whose PII confidence
// crossed the quarantine threshold. It never stores unredacted content.
type QuarantineRecord struct {
	ID                  string           `json:"id"`
	EngagementID        string           `json:"engagement_id"`
	RedactedEventData   map[string]any   `json:"redacted_event_data"`
	PIICategory         PIICategory      `json:"pii_category"`
	PIIField            string           `json:"pii_field"`
	DetectionConfidence float64          `json:"detection_confidence"`
	Status              QuarantineStatus `json:"status"`
	AutoDeleteAt        time.Time        `json:"auto_delete_at"`
	CreatedAt           time.Time        `json:"created_at"`
}
