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

// Package pii detects and redacts personally identifiable content in
// event payloads before anything is persisted.
package pii

import (
	"regexp"

	"github.com/workray/taskmine/pkg/models"
)

// Pattern is one detection rule of the library: a category, a matcher, a
// human description, and the base confidence assigned to its matches.
type Pattern struct {
	Name        string
	Category    models.PIICategory
	Regex       *regexp.Regexp
	Description string
	Confidence  float64
}

// DefaultPatternSet materializes the built-in detection rules. Callers get a
// fresh slice; the compiled expressions are shared and immutable.
func DefaultPatternSet() []Pattern {
	return []Pattern{
		{
			Name:        "ssn_dashed",
			Category:    models.PIICategorySSN,
			Regex:       reSSNDashed,
			Description: "Social Security number (3-2-4 dashed format)",
			Confidence:  0.95,
		},
		{
			Name:        "ssn_plain",
			Category:    models.PIICategorySSN,
			Regex:       reSSNPlain,
			Description: "Possible Social Security number (9 contiguous digits)",
			Confidence:  0.65,
		},
		{
			Name:        "credit_card_visa",
			Category:    models.PIICategoryCreditCard,
			Regex:       reCCVisa,
			Description: "Visa card number",
			Confidence:  0.95,
		},
		{
			Name:        "credit_card_mastercard",
			Category:    models.PIICategoryCreditCard,
			Regex:       reCCMastercard,
			Description: "Mastercard card number",
			Confidence:  0.95,
		},
		{
			Name:        "credit_card_amex",
			Category:    models.PIICategoryCreditCard,
			Regex:       reCCAmex,
			Description: "American Express card number",
			Confidence:  0.95,
		},
		{
			Name:        "credit_card_discover",
			Category:    models.PIICategoryCreditCard,
			Regex:       reCCDiscover,
			Description: "Discover card number",
			Confidence:  0.95,
		},
		{
			Name:        "email",
			Category:    models.PIICategoryEmail,
			Regex:       reEmail,
			Description: "Email address",
			Confidence:  0.95,
		},
		{
			Name:        "phone_us",
			Category:    models.PIICategoryPhone,
			Regex:       rePhoneUS,
			Description: "North American phone number",
			Confidence:  0.85,
		},
		{
			Name:        "phone_international",
			Category:    models.PIICategoryPhone,
			Regex:       rePhoneIntl,
			Description: "International phone number with country code",
			Confidence:  0.75,
		},
		{
			Name:        "address_street",
			Category:    models.PIICategoryAddress,
			Regex:       reStreetAddress,
			Description: "US street address",
			Confidence:  0.70,
		},
		{
			Name:        "address_zip",
			Category:    models.PIICategoryAddress,
			Regex:       reZipCode,
			Description: "ZIP / postal code with context keyword",
			Confidence:  0.70,
		},
		{
			Name:        "date_of_birth",
			Category:    models.PIICategoryDateOfBirth,
			Regex:       reDateOfBirth,
			Description: "Date of birth with context keyword",
			Confidence:  0.85,
		},
		{
			Name:        "financial_account",
			Category:    models.PIICategoryFinancial,
			Regex:       reAccountNumber,
			Description: "Financial account number with context keyword",
			Confidence:  0.75,
		},
	}
}

var (
	reSSNDashed = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	reSSNPlain  = regexp.MustCompile(`\b\d{9}\b`)

	reCCVisa       = regexp.MustCompile(`\b4\d{3}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	reCCMastercard = regexp.MustCompile(`\b5[1-5]\d{2}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	reCCAmex       = regexp.MustCompile(`\b3[47]\d{2}[- ]?\d{6}[- ]?\d{5}\b`)
	reCCDiscover   = regexp.MustCompile(`\b6(?:011|5\d{2})[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)

	reEmail = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	rePhoneUS   = regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)|\d{3})[-. ]\d{3}[-. ]?\d{4}\b`)
	rePhoneIntl = regexp.MustCompile(`\+\d{1,3}[-. ]?\d{6,12}\b`)

	reStreetAddress = regexp.MustCompile(
		`\b\d{1,5}\s+[A-Z][A-Za-z]*\s+(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Lane|Ln|Road|Rd|Court|Ct|Place|Pl|Way)\b`)
	reZipCode = regexp.MustCompile(`(?i)\b(?:zip|postal\s+code|postal|area)\s*:?\s*\d{5}(?:-\d{4})?\b`)

	reDateOfBirth = regexp.MustCompile(
		`(?i)\b(?:dob|date\s+of\s+birth|born|birthday)\s*:?\s*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)

	reAccountNumber = regexp.MustCompile(`(?i)\b(?:account|acct)\s*#?\s*:?\s*\d{6,17}\b`)
)

// PatternsForCategory returns the subset of patterns detecting the given
// category.
func PatternsForCategory(patterns []Pattern, category models.PIICategory) []Pattern {
	var out []Pattern

	for _, p := range patterns {
		if p.Category == category {
			out = append(out, p)
		}
	}

	return out
}
