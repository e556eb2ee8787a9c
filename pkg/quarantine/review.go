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

package quarantine

import (
	"context"
	"errors"
	"fmt"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

// ErrNotPending rejects a review decision on a record that already left the
// pending-review state.
var ErrNotPending = errors.New("quarantine record is not pending review")

// ReviewStore is the persistence surface of the review service. Decisions
// update status only; redacted content is immutable.
type ReviewStore interface {
	GetQuarantineRecord(ctx context.Context, id string) (*models.QuarantineRecord, error)
	ListQuarantineRecords(ctx context.Context, engagementID string, status models.QuarantineStatus) ([]models.QuarantineRecord, error)
	UpdateQuarantineStatus(ctx context.Context, id string, status models.QuarantineStatus) error
}

// ReviewService applies manual release/delete decisions to quarantined
// events.
type ReviewService struct {
	store ReviewStore
	log   logger.Logger
}

// NewReviewService builds a quarantine review service.
func NewReviewService(store ReviewStore, log logger.Logger) *ReviewService {
	return &ReviewService{store: store, log: log}
}

// List returns the quarantine records of an engagement, optionally filtered
// by status.
func (s *ReviewService) List(ctx context.Context, engagementID string, status models.QuarantineStatus) ([]models.QuarantineRecord, error) {
	return s.store.ListQuarantineRecords(ctx, engagementID, status)
}

// Release marks a pending record as reviewed-and-released.
func (s *ReviewService) Release(ctx context.Context, id string) error {
	return s.decide(ctx, id, models.QuarantineReleased)
}

// Delete marks a pending record as reviewed-and-deleted.
func (s *ReviewService) Delete(ctx context.Context, id string) error {
	return s.decide(ctx, id, models.QuarantineDeleted)
}

func (s *ReviewService) decide(ctx context.Context, id string, decision models.QuarantineStatus) error {
	record, err := s.store.GetQuarantineRecord(ctx, id)
	if err != nil {
		return err
	}

	if record.Status != models.QuarantinePendingReview {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, id, record.Status)
	}

	if err := s.store.UpdateQuarantineStatus(ctx, id, decision); err != nil {
		return fmt.Errorf("update quarantine status: %w", err)
	}

	s.log.Info().
		Str("quarantine_id", id).
		Str("decision", string(decision)).
		Msg("Quarantine review decision applied")

	return nil
}
