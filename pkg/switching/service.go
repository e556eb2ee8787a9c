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

package switching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

// Store is the persistence surface the switching service needs. Event lists
// must be ordered by timestamp ascending.
type Store interface {
	ListAppSwitchEvents(ctx context.Context, engagementID, sessionID string) ([]models.RawEvent, error)
	ListAppSwitchEventsInPeriod(ctx context.Context, engagementID string, start, end time.Time) ([]models.RawEvent, error)
	InsertSwitchingTrace(ctx context.Context, trace *models.SwitchingTrace) error
	InsertTransitionMatrix(ctx context.Context, matrix *models.TransitionMatrix) error
	ListSwitchingTraces(ctx context.Context, engagementID string) ([]models.SwitchingTrace, error)
}

func toSwitchEvents(events []models.RawEvent) []SwitchEvent {
	out := make([]SwitchEvent, len(events))
	for i, e := range events {
		out[i] = SwitchEvent{
			SessionID:    e.SessionID.String(),
			EngagementID: e.EngagementID.String(),
			AppName:      e.ApplicationName,
			Timestamp:    e.Timestamp,
		}
	}

	return out
}

// Config tunes the trace assembly thresholds. Zero values select defaults.
type Config struct {
	IdleGap           time.Duration
	RapidSwitchMS     int64
	PingPongThreshold int
}

// Service assembles and persists switching traces and serves the derived
// friction analytics.
type Service struct {
	store  Store
	config Config
	log    logger.Logger
}

// NewService creates a switching service over the given store.
func NewService(store Store, config Config, log logger.Logger) *Service {
	if config.IdleGap <= 0 {
		config.IdleGap = DefaultIdleGap
	}

	if config.RapidSwitchMS <= 0 {
		config.RapidSwitchMS = DefaultRapidSwitchMS
	}

	if config.PingPongThreshold < 1 {
		config.PingPongThreshold = DefaultPingPongThreshold
	}

	return &Service{store: store, config: config, log: log}
}

// AssembleTraces groups an engagement's app_switch events into traces and
// persists them. An empty sessionID covers every session.
func (s *Service) AssembleTraces(ctx context.Context, engagementID, sessionID string) ([]*models.SwitchingTrace, error) {
	events, err := s.store.ListAppSwitchEvents(ctx, engagementID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list app_switch events: %w", err)
	}

	if len(events) == 0 {
		s.log.Info().
			Str("engagement_id", engagementID).
			Msg("No app_switch events found")

		return nil, nil
	}

	traces := AssembleTraces(toSwitchEvents(events), s.config.IdleGap, s.config.RapidSwitchMS, s.config.PingPongThreshold)

	for _, trace := range traces {
		if err := s.store.InsertSwitchingTrace(ctx, trace); err != nil {
			return nil, fmt.Errorf("failed to persist switching trace: %w", err)
		}
	}

	s.log.Info().
		Str("engagement_id", engagementID).
		Int("traces", len(traces)).
		Msg("Assembled switching traces")

	return traces, nil
}

// ComputeTransitionMatrix tallies from→to switch counts over a period and
// persists the result.
func (s *Service) ComputeTransitionMatrix(ctx context.Context, engagementID, roleID string, periodStart, periodEnd time.Time) (*models.TransitionMatrix, error) {
	events, err := s.store.ListAppSwitchEventsInPeriod(ctx, engagementID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list app_switch events: %w", err)
	}

	matrix := BuildTransitionMatrix(toSwitchEvents(events), engagementID, roleID, periodStart, periodEnd)

	if err := s.store.InsertTransitionMatrix(ctx, matrix); err != nil {
		return nil, fmt.Errorf("failed to persist transition matrix: %w", err)
	}

	s.log.Info().
		Str("engagement_id", engagementID).
		Int("transitions", matrix.TotalTransitions).
		Int("unique_apps", matrix.UniqueApps).
		Msg("Computed transition matrix")

	return matrix, nil
}

// FrictionAnalysis aggregates persisted traces into an engagement-level
// friction report: average score, the five highest-friction traces, and the
// app pairs that most often ping-pong.
func (s *Service) FrictionAnalysis(ctx context.Context, engagementID string) (*models.FrictionAnalysis, error) {
	traces, err := s.store.ListSwitchingTraces(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list switching traces: %w", err)
	}

	analysis := &models.FrictionAnalysis{
		HighFrictionTraces:  []models.TraceSummary{},
		TopPingPongPairs:    []models.PingPongPair{},
		TotalTracesAnalyzed: len(traces),
	}

	if len(traces) == 0 {
		return analysis, nil
	}

	var sum float64

	for _, t := range traces {
		sum += t.FrictionScore
	}

	analysis.AvgFrictionScore = math.Round(sum/float64(len(traces))*10000) / 10000

	byFriction := append([]models.SwitchingTrace(nil), traces...)
	sort.SliceStable(byFriction, func(i, j int) bool {
		return byFriction[i].FrictionScore > byFriction[j].FrictionScore
	})

	for _, t := range byFriction[:min(5, len(byFriction))] {
		analysis.HighFrictionTraces = append(analysis.HighFrictionTraces, models.TraceSummary{
			ID:              t.ID,
			FrictionScore:   t.FrictionScore,
			AppCount:        t.AppCount,
			IsPingPong:      t.IsPingPong,
			TotalDurationMS: t.TotalDurationMS,
		})
	}

	analysis.TopPingPongPairs = topPingPongPairs(traces)

	return analysis, nil
}

// topPingPongPairs finds the dominant undirected app pair of each ping-pong
// trace and ranks pairs by how many traces they dominate.
func topPingPongPairs(traces []models.SwitchingTrace) []models.PingPongPair {
	pairCounts := make(map[string]int)

	for _, trace := range traces {
		if !trace.IsPingPong || len(trace.TraceSequence) == 0 {
			continue
		}

		freqs := make(map[string]int)
		seq := trace.TraceSequence

		for i := 0; i < len(seq)-1; i++ {
			a, b := seq[i], seq[i+1]
			if a == b {
				continue
			}

			if a > b {
				a, b = b, a
			}

			freqs[a+"↔"+b]++
		}

		dominant := ""

		for label, count := range freqs {
			if dominant == "" || count > freqs[dominant] ||
				(count == freqs[dominant] && label < dominant) {
				dominant = label
			}
		}

		if dominant != "" {
			pairCounts[dominant]++
		}
	}

	pairs := make([]models.PingPongPair, 0, len(pairCounts))
	for label, count := range pairCounts {
		pairs = append(pairs, models.PingPongPair{Pair: label, TraceCount: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TraceCount != pairs[j].TraceCount {
			return pairs[i].TraceCount > pairs[j].TraceCount
		}

		return pairs[i].Pair < pairs[j].Pair
	})

	if len(pairs) > 5 {
		pairs = pairs[:5]
	}

	return pairs
}
