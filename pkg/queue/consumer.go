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

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

const (
	maxPullMessages = 50
	pullExpiry      = 30 * time.Second
	maxDeliveries   = 3
	fetchBackoff    = time.Second
)

// TaskProcessor applies a fetched batch of aggregation tasks. An error fails
// the whole batch; every message is redelivered.
type TaskProcessor interface {
	ProcessTasks(ctx context.Context, tasks []*models.AggregationTask) error
}

// Consumer pulls aggregation tasks from the durable work queue. Messages are
// acknowledged only after the processor returns, so a crash mid-batch
// redelivers rather than loses work.
type Consumer struct {
	consumer jetstream.Consumer
	log      logger.Logger
}

// NewConsumer creates or retrieves the durable pull consumer for the task
// subject.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg *models.QueueConfig, log logger.Logger) (*Consumer, error) {
	consumer, err := js.Consumer(ctx, cfg.StreamName, cfg.ConsumerName)
	if err != nil {
		consumer, err = js.CreateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    maxDeliveries,
			MaxAckPending: 1000,
			FilterSubject: cfg.TaskSubject,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.ConsumerName, err)
		}
	}

	return &Consumer{consumer: consumer, log: log}, nil
}

// Run fetches and processes messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context, processor TaskProcessor) {
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Stopping task consumer")
			return
		default:
			batch, err := c.consumer.Fetch(maxPullMessages, jetstream.FetchMaxWait(pullExpiry))
			if err != nil {
				c.log.Error().Err(err).Msg("Failed to fetch aggregation tasks")
				time.Sleep(fetchBackoff)

				continue
			}

			msgs := make([]jetstream.Msg, 0, maxPullMessages)
			for msg := range batch.Messages() {
				msgs = append(msgs, msg)
			}

			if err := batch.Error(); err != nil {
				c.log.Error().Err(err).Msg("Fetch returned an error")
			}

			if len(msgs) > 0 {
				c.handleBatch(ctx, msgs, processor)
			}
		}
	}
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []jetstream.Msg, processor TaskProcessor) {
	tasks := make([]*models.AggregationTask, 0, len(msgs))
	valid := make([]jetstream.Msg, 0, len(msgs))

	for _, msg := range msgs {
		var task models.AggregationTask

		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			// Poison message: redelivery cannot fix it.
			c.log.Error().Err(err).Str("subject", msg.Subject()).Msg("Dropping malformed aggregation task")

			_ = msg.Ack()

			continue
		}

		tasks = append(tasks, &task)
		valid = append(valid, msg)
	}

	if len(tasks) == 0 {
		return
	}

	if err := processor.ProcessTasks(ctx, tasks); err != nil {
		c.log.Error().Err(err).Int("tasks", len(tasks)).Msg("Failed to process aggregation tasks")

		for _, msg := range valid {
			metadata, metaErr := msg.Metadata()
			if metaErr == nil && metadata.NumDelivered >= maxDeliveries {
				_ = msg.Ack()
			} else {
				_ = msg.Nak()
			}
		}

		return
	}

	for _, msg := range valid {
		_ = msg.Ack()
	}
}
