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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/db"
	"github.com/workray/taskmine/pkg/ingest"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/quarantine"
)

type fakeIngester struct {
	counts models.BatchCounts
	err    error
	got    *models.EventBatch
}

func (f *fakeIngester) ProcessBatch(_ context.Context, batch *models.EventBatch) (models.BatchCounts, error) {
	f.got = batch
	return f.counts, f.err
}

type fakeReviewer struct {
	records    []models.QuarantineRecord
	releaseErr error
	deleteErr  error
	decided    []string
}

func (f *fakeReviewer) List(_ context.Context, _ string, _ models.QuarantineStatus) ([]models.QuarantineRecord, error) {
	return f.records, nil
}

func (f *fakeReviewer) Release(_ context.Context, id string) error {
	f.decided = append(f.decided, "release:"+id)
	return f.releaseErr
}

func (f *fakeReviewer) Delete(_ context.Context, id string) error {
	f.decided = append(f.decided, "delete:"+id)
	return f.deleteErr
}

type fakeSwitching struct {
	traces   []*models.SwitchingTrace
	matrix   *models.TransitionMatrix
	analysis *models.FrictionAnalysis
}

func (f *fakeSwitching) AssembleTraces(_ context.Context, _, _ string) ([]*models.SwitchingTrace, error) {
	return f.traces, nil
}

func (f *fakeSwitching) ComputeTransitionMatrix(_ context.Context, _, _ string, _, _ time.Time) (*models.TransitionMatrix, error) {
	return f.matrix, nil
}

func (f *fakeSwitching) FrictionAnalysis(_ context.Context, _ string) (*models.FrictionAnalysis, error) {
	return f.analysis, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s := NewAPIServer(logger.NewTestLogger())

	w := get(s.Router(), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestIngestBatch(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{counts: models.BatchCounts{Accepted: 2, Rejected: 1}}
	s := NewAPIServer(logger.NewTestLogger(), WithIngester(ingester))

	batch := models.EventBatch{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Events:    []models.IngestEvent{{EventType: "scroll", Timestamp: "2026-03-01T10:00:00Z"}},
	}

	w := postJSON(t, s.Router(), "/api/events", batch)
	require.Equal(t, http.StatusOK, w.Code)

	var counts models.BatchCounts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, ingester.counts, counts)
	assert.Equal(t, "agent-1", ingester.got.AgentID)
}

func TestIngestBatch_AccessDeniedMapsTo403(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{err: fmt.Errorf("%w: agent suspended", ingest.ErrAccessDenied)}
	s := NewAPIServer(logger.NewTestLogger(), WithIngester(ingester))

	w := postJSON(t, s.Router(), "/api/events", models.EventBatch{AgentID: "agent-1", SessionID: "sess-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIngestBatch_MalformedBody(t *testing.T) {
	t.Parallel()

	s := NewAPIServer(logger.NewTestLogger(), WithIngester(&fakeIngester{}))

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListQuarantine(t *testing.T) {
	t.Parallel()

	reviewer := &fakeReviewer{records: []models.QuarantineRecord{
		{ID: "q-1", Status: models.QuarantinePendingReview},
	}}
	s := NewAPIServer(logger.NewTestLogger(), WithReviewer(reviewer))

	w := get(s.Router(), "/api/engagements/eng-1/quarantine?status=pending_review")
	require.Equal(t, http.StatusOK, w.Code)

	var records []models.QuarantineRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "q-1", records[0].ID)
}

func TestQuarantineDecisions(t *testing.T) {
	t.Parallel()

	reviewer := &fakeReviewer{}
	s := NewAPIServer(logger.NewTestLogger(), WithReviewer(reviewer))

	w := postJSON(t, s.Router(), "/api/quarantine/q-1/release", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, s.Router(), "/api/quarantine/q-2/delete", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"release:q-1", "delete:q-2"}, reviewer.decided)
}

func TestQuarantineDecision_NotFound(t *testing.T) {
	t.Parallel()

	reviewer := &fakeReviewer{releaseErr: db.ErrQuarantineItemNotFound}
	s := NewAPIServer(logger.NewTestLogger(), WithReviewer(reviewer))

	w := postJSON(t, s.Router(), "/api/quarantine/missing/release", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuarantineDecision_AlreadySettled(t *testing.T) {
	t.Parallel()

	reviewer := &fakeReviewer{deleteErr: fmt.Errorf("%w: q-1 is released", quarantine.ErrNotPending)}
	s := NewAPIServer(logger.NewTestLogger(), WithReviewer(reviewer))

	w := postJSON(t, s.Router(), "/api/quarantine/q-1/delete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAssembleTraces(t *testing.T) {
	t.Parallel()

	analytics := &fakeSwitching{traces: []*models.SwitchingTrace{
		{EngagementID: "eng-1", TraceSequence: []string{"Excel", "Chrome"}},
	}}
	s := NewAPIServer(logger.NewTestLogger(), WithSwitchingAnalytics(analytics))

	w := postJSON(t, s.Router(), "/api/engagements/eng-1/switching/traces", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var traces []models.SwitchingTrace
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &traces))
	require.Len(t, traces, 1)
	assert.Equal(t, []string{"Excel", "Chrome"}, traces[0].TraceSequence)
}

func TestTransitionMatrix_RequiresPeriod(t *testing.T) {
	t.Parallel()

	s := NewAPIServer(logger.NewTestLogger(), WithSwitchingAnalytics(&fakeSwitching{}))

	w := get(s.Router(), "/api/engagements/eng-1/switching/matrix")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(s.Router(), "/api/engagements/eng-1/switching/matrix?start=notatime&end=2026-03-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionMatrix(t *testing.T) {
	t.Parallel()

	analytics := &fakeSwitching{matrix: &models.TransitionMatrix{
		EngagementID:     "eng-1",
		TotalTransitions: 4,
		UniqueApps:       3,
	}}
	s := NewAPIServer(logger.NewTestLogger(), WithSwitchingAnalytics(analytics))

	w := get(s.Router(), "/api/engagements/eng-1/switching/matrix?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)

	var matrix models.TransitionMatrix
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &matrix))
	assert.Equal(t, 4, matrix.TotalTransitions)
}

func TestFrictionAnalysis(t *testing.T) {
	t.Parallel()

	analytics := &fakeSwitching{analysis: &models.FrictionAnalysis{
		AvgFrictionScore:    0.42,
		TotalTracesAnalyzed: 7,
	}}
	s := NewAPIServer(logger.NewTestLogger(), WithSwitchingAnalytics(analytics))

	w := get(s.Router(), "/api/engagements/eng-1/switching/friction")
	require.Equal(t, http.StatusOK, w.Code)

	var analysis models.FrictionAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.InDelta(t, 0.42, analysis.AvgFrictionScore, 1e-9)
	assert.Equal(t, 7, analysis.TotalTracesAnalyzed)
}

func TestUnconfiguredDependenciesReturn500(t *testing.T) {
	t.Parallel()

	s := NewAPIServer(logger.NewTestLogger())

	w := postJSON(t, s.Router(), "/api/events", models.EventBatch{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = get(s.Router(), "/api/engagements/eng-1/quarantine")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = get(s.Router(), "/api/engagements/eng-1/switching/friction")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIKeyGatesAPIRoutes(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{counts: models.BatchCounts{Accepted: 1}}
	s := NewAPIServer(logger.NewTestLogger(),
		WithAPIKey("secret-key"),
		WithIngester(ingester),
	)

	batch := models.EventBatch{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Events:    []models.IngestEvent{{EventType: "scroll", Timestamp: "2026-03-01T10:00:00Z"}},
	}
	payload, err := json.Marshal(batch)
	require.NoError(t, err)

	// Missing key.
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, ingester.got)

	// Wrong key.
	req = httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(payload))
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct key.
	req = httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(payload))
	req.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ingester.got)

	// Health stays open for probes without the key.
	assert.Equal(t, http.StatusOK, get(s.Router(), "/health").Code)
}

func TestNoAPIKeyLeavesRoutesOpen(t *testing.T) {
	t.Parallel()

	ingester := &fakeIngester{}
	s := NewAPIServer(logger.NewTestLogger(), WithIngester(ingester))

	batch := models.EventBatch{
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Events:    []models.IngestEvent{{EventType: "scroll", Timestamp: "2026-03-01T10:00:00Z"}},
	}

	w := postJSON(t, s.Router(), "/api/events", batch)
	assert.Equal(t, http.StatusOK, w.Code)
}
