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

package sessions

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

const defaultPartitionBuffer = 256

// ClosedHandler receives sessions as the state machine closes them.
type ClosedHandler func(ctx context.Context, closed []models.AggregatedSession) error

// Dispatcher fans events out to per-partition goroutines keyed by session id:
// ordering within a partition, parallelism across partitions. Events for one
// session always land on the same partition, so one aggregator sees them in
// the order they were dispatched.
type Dispatcher struct {
	partitions []chan dispatchItem
	wg         sync.WaitGroup
	onClosed   ClosedHandler
	log        logger.Logger

	mu      sync.Mutex
	started bool
}

type dispatchItem struct {
	ctx   context.Context
	event Event
	group *batchGroup
	flush bool
}

// batchGroup tracks completion of one dispatched batch and keeps the first
// handler error raised by any partition while processing it.
type batchGroup struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

func (g *batchGroup) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err == nil {
		g.err = err
	}
}

func (g *batchGroup) wait() error {
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.err
}

// NewDispatcher creates a dispatcher with the given partition count.
func NewDispatcher(partitionCount int, onClosed ClosedHandler, log logger.Logger) *Dispatcher {
	if partitionCount < 1 {
		partitionCount = 1
	}

	parts := make([]chan dispatchItem, partitionCount)
	for i := range parts {
		parts[i] = make(chan dispatchItem, defaultPartitionBuffer)
	}

	return &Dispatcher{partitions: parts, onClosed: onClosed, log: log}
}

// Start launches one goroutine per partition.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true

	for i := range d.partitions {
		d.wg.Add(1)

		go d.runPartition(d.partitions[i])
	}
}

// ProcessBatch routes a batch to its partitions and waits until every event
// has been applied. Any closed-session handler failure surfaces as the
// returned error, so callers only acknowledge queue messages after the
// closed sessions really landed — that preserves the at-least-once contract.
func (d *Dispatcher) ProcessBatch(ctx context.Context, events []Event) error {
	group := &batchGroup{}

	for _, ev := range events {
		group.wg.Add(1)

		item := dispatchItem{ctx: ctx, event: ev, group: group}

		select {
		case d.partitions[d.partitionFor(ev.SessionID)] <- item:
		case <-ctx.Done():
			group.wg.Done()
			return ctx.Err()
		}
	}

	return group.wait()
}

// Flush force-closes every open session on every partition and waits for the
// closed-session handlers to finish.
func (d *Dispatcher) Flush(ctx context.Context) error {
	group := &batchGroup{}

	for i := range d.partitions {
		group.wg.Add(1)
		d.partitions[i] <- dispatchItem{ctx: ctx, group: group, flush: true}
	}

	return group.wait()
}

// Stop flushes open sessions, closes the partitions, and waits for the
// goroutines to drain.
func (d *Dispatcher) Stop(ctx context.Context) error {
	err := d.Flush(ctx)

	for i := range d.partitions {
		close(d.partitions[i])
	}

	d.wg.Wait()

	return err
}

func (d *Dispatcher) partitionFor(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))

	return int(h.Sum32() % uint32(len(d.partitions)))
}

func (d *Dispatcher) runPartition(ch <-chan dispatchItem) {
	defer d.wg.Done()

	// One aggregator per capture session owned by this partition.
	aggregators := make(map[string]*Aggregator)

	for item := range ch {
		if item.flush {
			for sessionID, agg := range aggregators {
				if err := d.emit(item.ctx, sessionID, agg.Flush()); err != nil {
					item.group.fail(err)
				}
			}

			item.group.wg.Done()

			continue
		}

		agg, ok := aggregators[item.event.SessionID]
		if !ok {
			agg = NewAggregator()
			aggregators[item.event.SessionID] = agg
		}

		agg.ProcessEvent(item.event)

		if err := d.emit(item.ctx, item.event.SessionID, agg.Drain()); err != nil {
			item.group.fail(err)
		}

		item.group.wg.Done()
	}
}

func (d *Dispatcher) emit(ctx context.Context, sessionID string, closed []models.AggregatedSession) error {
	if len(closed) == 0 {
		return nil
	}

	if err := d.onClosed(ctx, closed); err != nil {
		d.log.Error().
			Err(err).
			Str("session_id", sessionID).
			Int("closed_sessions", len(closed)).
			Msg("Failed to handle closed sessions")

		return err
	}

	return nil
}
