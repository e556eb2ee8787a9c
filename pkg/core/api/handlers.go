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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/workray/taskmine/pkg/db"
	"github.com/workray/taskmine/pkg/ingest"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/quarantine"
)

func (s *APIServer) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		http.Error(w, "Ingestion not configured", http.StatusInternalServerError)
		return
	}

	var batch models.EventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	counts, err := s.ingester.ProcessBatch(r.Context(), &batch)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrAccessDenied):
			http.Error(w, err.Error(), http.StatusForbidden)
		case batch.AgentID == "" || batch.SessionID == "":
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.Error().Err(err).Str("agent_id", batch.AgentID).Msg("Batch ingestion failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}

		return
	}

	s.encodeJSONResponse(w, counts)
}

func (s *APIServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "Sessions not configured", http.StatusInternalServerError)
		return
	}

	engagementID := mux.Vars(r)["engagement_id"]

	list, err := s.sessions.ListClassifiedSessions(r.Context(), engagementID)
	if err != nil {
		s.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Failed to list sessions")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSONResponse(w, list)
}

func (s *APIServer) handleListQuarantine(w http.ResponseWriter, r *http.Request) {
	if s.reviewer == nil {
		http.Error(w, "Quarantine review not configured", http.StatusInternalServerError)
		return
	}

	engagementID := mux.Vars(r)["engagement_id"]
	status := models.QuarantineStatus(r.URL.Query().Get("status"))

	records, err := s.reviewer.List(r.Context(), engagementID, status)
	if err != nil {
		s.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Failed to list quarantine records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	if records == nil {
		records = []models.QuarantineRecord{}
	}

	s.encodeJSONResponse(w, records)
}

func (s *APIServer) handleReleaseQuarantine(w http.ResponseWriter, r *http.Request) {
	s.handleQuarantineDecision(w, r, models.QuarantineReleased)
}

func (s *APIServer) handleDeleteQuarantine(w http.ResponseWriter, r *http.Request) {
	s.handleQuarantineDecision(w, r, models.QuarantineDeleted)
}

func (s *APIServer) handleQuarantineDecision(w http.ResponseWriter, r *http.Request, decision models.QuarantineStatus) {
	if s.reviewer == nil {
		http.Error(w, "Quarantine review not configured", http.StatusInternalServerError)
		return
	}

	id := mux.Vars(r)["id"]

	var err error
	if decision == models.QuarantineReleased {
		err = s.reviewer.Release(r.Context(), id)
	} else {
		err = s.reviewer.Delete(r.Context(), id)
	}

	if err != nil {
		switch {
		case errors.Is(err, db.ErrQuarantineItemNotFound):
			http.Error(w, "Quarantine record not found", http.StatusNotFound)
		case errors.Is(err, quarantine.ErrNotPending):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error().Err(err).Str("quarantine_id", id).Msg("Quarantine decision failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}

		return
	}

	s.encodeJSONResponse(w, map[string]string{"id": id, "status": string(decision)})
}

func (s *APIServer) handleAssembleTraces(w http.ResponseWriter, r *http.Request) {
	if s.switching == nil {
		http.Error(w, "Switching analytics not configured", http.StatusInternalServerError)
		return
	}

	engagementID := mux.Vars(r)["engagement_id"]
	sessionID := r.URL.Query().Get("session_id")

	traces, err := s.switching.AssembleTraces(r.Context(), engagementID, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Trace assembly failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	if traces == nil {
		traces = []*models.SwitchingTrace{}
	}

	s.encodeJSONResponse(w, traces)
}

func (s *APIServer) handleTransitionMatrix(w http.ResponseWriter, r *http.Request) {
	if s.switching == nil {
		http.Error(w, "Switching analytics not configured", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()

	startStr := query.Get("start")
	endStr := query.Get("end")

	if startStr == "" || endStr == "" {
		http.Error(w, "start and end parameters are required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		http.Error(w, "Invalid start time format", http.StatusBadRequest)
		return
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		http.Error(w, "Invalid end time format", http.StatusBadRequest)
		return
	}

	engagementID := mux.Vars(r)["engagement_id"]

	matrix, err := s.switching.ComputeTransitionMatrix(r.Context(), engagementID, query.Get("role_id"), start, end)
	if err != nil {
		s.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Transition matrix failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSONResponse(w, matrix)
}

func (s *APIServer) handleFrictionAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.switching == nil {
		http.Error(w, "Switching analytics not configured", http.StatusInternalServerError)
		return
	}

	engagementID := mux.Vars(r)["engagement_id"]

	analysis, err := s.switching.FrictionAnalysis(r.Context(), engagementID)
	if err != nil {
		s.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Friction analysis failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	s.encodeJSONResponse(w, analysis)
}
