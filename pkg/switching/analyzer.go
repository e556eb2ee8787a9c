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

// Package switching analyzes app_switch event chains: it assembles them into
// traces, scores context-switching friction, and detects ping-pong patterns.
package switching

import (
	"math"
	"sort"
	"time"

	"github.com/workray/taskmine/pkg/models"
)

const (
	// DefaultIdleGap breaks a trace when no switch occurs for this long.
	DefaultIdleGap = 5 * time.Minute

	// DefaultRapidSwitchMS marks dwell times below this as high friction.
	DefaultRapidSwitchMS = 5000

	// DefaultPingPongThreshold is the minimum alternation count for a trace
	// to qualify as ping-pong.
	DefaultPingPongThreshold = 3

	// topTransitions caps the persisted transition summary.
	topTransitions = 10

	// pingPongSeverityCap is the alternation count treated as max severity.
	pingPongSeverityCap = 10.0
)

// DetectPingPong looks for A→B→A→B alternations in a trace sequence. The
// returned count is the alternation count of the most frequent pair, reported
// as 0 when the trace does not qualify.
func DetectPingPong(sequence []string, threshold int) (bool, int) {
	if threshold < 1 {
		threshold = DefaultPingPongThreshold
	}

	if len(sequence) < threshold*2 {
		return false, 0
	}

	type pair struct{ from, to string }

	counts := make(map[pair]int)

	for i := 0; i < len(sequence)-1; i++ {
		if sequence[i] != sequence[i+1] {
			counts[pair{sequence[i], sequence[i+1]}]++
		}
	}

	// A ping-pong needs crossings in both directions; the alternation count
	// is the dominant direction's crossings. A one-way chain through many
	// apps never qualifies.
	maxAlternations := 0

	for p, fwd := range counts {
		rev := counts[pair{p.to, p.from}]
		if rev == 0 {
			continue
		}

		if alt := max(fwd, rev); alt > maxAlternations {
			maxAlternations = alt
		}
	}

	if maxAlternations < threshold {
		return false, 0
	}

	return true, maxAlternations
}

// ComputeFrictionScore scores a trace on a 0.0–1.0 scale from three weighted
// components: rapid-switch ratio (40%), ping-pong severity (40%), and context
// diversity (20%). Rounded to four decimals.
func ComputeFrictionScore(trace *models.SwitchingTrace, rapidSwitchMS int64) float64 {
	if len(trace.TraceSequence) == 0 || trace.TotalDurationMS <= 0 {
		return 0.0
	}

	if rapidSwitchMS <= 0 {
		rapidSwitchMS = DefaultRapidSwitchMS
	}

	rapidCount := 0

	for _, d := range trace.DwellDurationsMS {
		if d < rapidSwitchMS {
			rapidCount++
		}
	}

	rapidComponent := float64(rapidCount) / float64(max(len(trace.DwellDurationsMS), 1))

	pingPongComponent := 0.0
	if trace.IsPingPong && trace.PingPongCount > 0 {
		pingPongComponent = math.Min(float64(trace.PingPongCount)/pingPongSeverityCap, 1.0)
	}

	diversityComponent := 0.0

	if switches := len(trace.TraceSequence) - 1; switches > 0 {
		diversityComponent = math.Min(float64(trace.AppCount)/float64(switches), 1.0)
	}

	score := 0.40*rapidComponent + 0.40*pingPongComponent + 0.20*diversityComponent
	score = math.Min(math.Max(score, 0.0), 1.0)

	return math.Round(score*10000) / 10000
}

// SwitchEvent is the minimal view of an app_switch event the analyzer needs.
type SwitchEvent struct {
	SessionID    string
	EngagementID string
	AppName      string
	Timestamp    time.Time
}

// BuildTrace turns one window of app_switch events into a trace. Windows with
// fewer than two events have no switch and yield nil.
func BuildTrace(events []SwitchEvent, rapidSwitchMS int64, pingPongThreshold int) *models.SwitchingTrace {
	if len(events) < 2 {
		return nil
	}

	sequence := make([]string, len(events))
	for i, e := range events {
		sequence[i] = appOrUnknown(e.AppName)
	}

	// Dwell per app until the next switch; the last app has no known end.
	dwells := make([]int64, len(events))

	var total int64

	for i := 0; i < len(events)-1; i++ {
		d := events[i+1].Timestamp.Sub(events[i].Timestamp).Milliseconds()
		if d < 0 {
			d = 0
		}

		dwells[i] = d
		total += d
	}

	unique := make(map[string]struct{}, len(sequence))
	for _, app := range sequence {
		unique[app] = struct{}{}
	}

	trace := &models.SwitchingTrace{
		EngagementID:     events[0].EngagementID,
		SessionID:        events[0].SessionID,
		TraceSequence:    sequence,
		DwellDurationsMS: dwells,
		TotalDurationMS:  total,
		AppCount:         len(unique),
		StartedAt:        events[0].Timestamp,
		EndedAt:          events[len(events)-1].Timestamp,
	}

	isPP, count := DetectPingPong(sequence, pingPongThreshold)
	trace.IsPingPong = isPP
	trace.PingPongCount = count
	trace.FrictionScore = ComputeFrictionScore(trace, rapidSwitchMS)

	return trace
}

// AssembleTraces groups ordered app_switch events into traces, breaking the
// window whenever the gap between consecutive events exceeds idleGap.
func AssembleTraces(events []SwitchEvent, idleGap time.Duration, rapidSwitchMS int64, pingPongThreshold int) []*models.SwitchingTrace {
	if len(events) == 0 {
		return nil
	}

	if idleGap <= 0 {
		idleGap = DefaultIdleGap
	}

	var traces []*models.SwitchingTrace

	window := []SwitchEvent{events[0]}

	flush := func() {
		if trace := BuildTrace(window, rapidSwitchMS, pingPongThreshold); trace != nil {
			traces = append(traces, trace)
		}
	}

	for _, e := range events[1:] {
		if e.Timestamp.Sub(window[len(window)-1].Timestamp) > idleGap {
			flush()

			window = []SwitchEvent{e}

			continue
		}

		window = append(window, e)
	}

	flush()

	return traces
}

// BuildTransitionMatrix tallies from→to application pairs over consecutive
// app_switch events and keeps the top transitions by frequency.
func BuildTransitionMatrix(events []SwitchEvent, engagementID, roleID string, periodStart, periodEnd time.Time) *models.TransitionMatrix {
	matrix := make(map[string]map[string]int)
	apps := make(map[string]struct{})
	total := 0

	for i := 0; i < len(events)-1; i++ {
		from := appOrUnknown(events[i].AppName)
		to := appOrUnknown(events[i+1].AppName)

		apps[from] = struct{}{}
		apps[to] = struct{}{}

		if matrix[from] == nil {
			matrix[from] = make(map[string]int)
		}

		matrix[from][to]++
		total++
	}

	var flat []models.AppTransition

	for from, row := range matrix {
		for to, count := range row {
			flat = append(flat, models.AppTransition{FromApp: from, ToApp: to, Count: count})
		}
	}

	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Count != flat[j].Count {
			return flat[i].Count > flat[j].Count
		}

		if flat[i].FromApp != flat[j].FromApp {
			return flat[i].FromApp < flat[j].FromApp
		}

		return flat[i].ToApp < flat[j].ToApp
	})

	if len(flat) > topTransitions {
		flat = flat[:topTransitions]
	}

	return &models.TransitionMatrix{
		EngagementID:     engagementID,
		RoleID:           roleID,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		Matrix:           matrix,
		TotalTransitions: total,
		UniqueApps:       len(apps),
		TopTransitions:   flat,
	}
}

func appOrUnknown(app string) string {
	if app == "" {
		return "unknown"
	}

	return app
}
