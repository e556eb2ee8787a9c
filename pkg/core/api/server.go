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

// Package api provides the HTTP API of the core service: batch ingestion,
// quarantine review, and switching analytics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	taskhttp "github.com/workray/taskmine/pkg/http"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// BatchIngester accepts agent event batches.
type BatchIngester interface {
	ProcessBatch(ctx context.Context, batch *models.EventBatch) (models.BatchCounts, error)
}

// QuarantineReviewer lists quarantined events and applies review decisions.
type QuarantineReviewer interface {
	List(ctx context.Context, engagementID string, status models.QuarantineStatus) ([]models.QuarantineRecord, error)
	Release(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SwitchingAnalytics serves the app-switching analyses.
type SwitchingAnalytics interface {
	AssembleTraces(ctx context.Context, engagementID, sessionID string) ([]*models.SwitchingTrace, error)
	ComputeTransitionMatrix(ctx context.Context, engagementID, roleID string, periodStart, periodEnd time.Time) (*models.TransitionMatrix, error)
	FrictionAnalysis(ctx context.Context, engagementID string) (*models.FrictionAnalysis, error)
}

// SessionReader lists classified sessions for an engagement.
type SessionReader interface {
	ListClassifiedSessions(ctx context.Context, engagementID string) ([]models.AggregatedSession, error)
}

// APIServer routes and serves the core HTTP API.
type APIServer struct {
	router    *mux.Router
	ingester  BatchIngester
	reviewer  QuarantineReviewer
	switching SwitchingAnalytics
	sessions  SessionReader
	apiKey    string
	log       logger.Logger
}

// NewAPIServer creates an API server instance.
func NewAPIServer(log logger.Logger, options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		router: mux.NewRouter(),
		log:    log,
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithIngester adds the batch ingestion pipeline to the API server.
func WithIngester(i BatchIngester) func(*APIServer) {
	return func(s *APIServer) { s.ingester = i }
}

// WithReviewer adds the quarantine review service to the API server.
func WithReviewer(r QuarantineReviewer) func(*APIServer) {
	return func(s *APIServer) { s.reviewer = r }
}

// WithSwitchingAnalytics adds the switching analytics service.
func WithSwitchingAnalytics(a SwitchingAnalytics) func(*APIServer) {
	return func(s *APIServer) { s.switching = a }
}

// WithSessionReader adds the classified-session read side.
func WithSessionReader(r SessionReader) func(*APIServer) {
	return func(s *APIServer) { s.sessions = r }
}

// WithAPIKey requires the X-API-Key header on /api routes. An empty key
// leaves the API open.
func WithAPIKey(key string) func(*APIServer) {
	return func(s *APIServer) { s.apiKey = key }
}

func (s *APIServer) setupRoutes() {
	s.router.Use(taskhttp.RequestLogging(s.log))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Health stays open; everything under /api is gated by the API key
	// when one is configured.
	api := s.router.PathPrefix("/api").Subrouter()
	if s.apiKey != "" {
		api.Use(taskhttp.APIKeyAuth(s.apiKey))
	}

	api.HandleFunc("/events", s.handleIngestBatch).Methods(http.MethodPost)

	api.HandleFunc("/engagements/{engagement_id}/sessions", s.handleListSessions).Methods(http.MethodGet)

	api.HandleFunc("/engagements/{engagement_id}/quarantine", s.handleListQuarantine).Methods(http.MethodGet)
	api.HandleFunc("/quarantine/{id}/release", s.handleReleaseQuarantine).Methods(http.MethodPost)
	api.HandleFunc("/quarantine/{id}/delete", s.handleDeleteQuarantine).Methods(http.MethodPost)

	api.HandleFunc("/engagements/{engagement_id}/switching/traces", s.handleAssembleTraces).Methods(http.MethodPost)
	api.HandleFunc("/engagements/{engagement_id}/switching/matrix", s.handleTransitionMatrix).Methods(http.MethodGet)
	api.HandleFunc("/engagements/{engagement_id}/switching/friction", s.handleFrictionAnalysis).Methods(http.MethodGet)
}

// Router exposes the handler for tests and embedding.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start serves the API until the listener fails or the process exits.
func (s *APIServer) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return srv.ListenAndServe()
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, map[string]string{"status": "ok"})
}

func (s *APIServer) encodeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
