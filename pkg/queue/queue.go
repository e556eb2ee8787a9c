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

// Package queue moves work between the ingestion core and the aggregation
// workers over a JetStream work queue, and publishes classified-session
// events for downstream collaborators.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/workray/taskmine/pkg/models"
)

// Connect dials NATS and opens a JetStream context.
func Connect(natsCfg *models.NATSConfig) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsCfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to open JetStream: %w", err)
	}

	return nc, js, nil
}

// EnsureStream creates the pipeline stream when it does not exist yet. The
// stream carries both the aggregation task subject and the classified-session
// event subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg *models.QueueConfig) error {
	_, err := js.Stream(ctx, cfg.StreamName)
	if err == nil {
		return nil
	}

	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream %s: %w", cfg.StreamName, err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.TaskSubject, cfg.EventSubject},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	return nil
}
