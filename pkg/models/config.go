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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	errNATSURLRequired    = errors.New("nats url is required")
	errPostgresHostNeeded = errors.New("postgres host is required")
	errPostgresDBNeeded   = errors.New("postgres database is required")
	errListenAddrNeeded   = errors.New("listen_addr is required")
	errInvalidDuration    = errors.New("invalid duration")
)

// Duration unmarshals from either a duration string ("24h") or a bare
// nanosecond number.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %q", errInvalidDuration, value)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// NATSConfig configures NATS connectivity.
type NATSConfig struct {
	URL string `json:"url"`
}

// Validate ensures the NATS configuration is valid.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURLRequired
	}

	return nil
}

// QueueConfig configures the JetStream work queue the pipeline publishes
// aggregation tasks to and workers consume from.
type QueueConfig struct {
	StreamName   string `json:"stream_name"`
	TaskSubject  string `json:"task_subject"`
	EventSubject string `json:"event_subject"`
	ConsumerName string `json:"consumer_name"`
}

// Validate fills queue defaults.
func (c *QueueConfig) Validate() error {
	if c.StreamName == "" {
		c.StreamName = "taskmine"
	}

	if c.TaskSubject == "" {
		c.TaskSubject = "taskmine.tasks.aggregate"
	}

	if c.EventSubject == "" {
		c.EventSubject = "taskmine.events.session.classified"
	}

	if c.ConsumerName == "" {
		c.ConsumerName = "taskmine-worker"
	}

	return nil
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	SSLMode         string `json:"ssl_mode,omitempty"`
	ApplicationName string `json:"application_name,omitempty"`
	MaxConnections  int32  `json:"max_connections,omitempty"`
}

// Validate ensures the Postgres configuration is usable.
func (c *PostgresConfig) Validate() error {
	if c.Host == "" {
		return errPostgresHostNeeded
	}

	if c.Database == "" {
		return errPostgresDBNeeded
	}

	if c.Port == 0 {
		c.Port = 5432
	}

	return nil
}

// PipelineConfig carries the tunable constants of the ingestion and
// analytics pipeline. Zero values are replaced with the documented defaults.
type PipelineConfig struct {
	QuarantineThreshold     float64  `json:"quarantine_threshold"`
	QuarantineTTL           Duration `json:"quarantine_ttl"`
	QuarantineSweepInterval Duration `json:"quarantine_sweep_interval"`
	IdleGapSeconds          int      `json:"idle_gap_seconds"`
	RapidSwitchMS           int64    `json:"rapid_switch_ms"`
	MLConfidenceThreshold   float64  `json:"ml_confidence_threshold"`
	PingPongThreshold       int      `json:"ping_pong_threshold"`
	AggregationPartitions   int      `json:"aggregation_partitions"`
	ModelPath               string   `json:"model_path,omitempty"`
}

// Validate fills pipeline defaults.
func (c *PipelineConfig) Validate() error {
	if c.QuarantineThreshold == 0 {
		c.QuarantineThreshold = 0.80
	}

	if c.QuarantineTTL == 0 {
		c.QuarantineTTL = Duration(24 * time.Hour)
	}

	if c.QuarantineSweepInterval == 0 {
		c.QuarantineSweepInterval = Duration(time.Hour)
	}

	if c.IdleGapSeconds == 0 {
		c.IdleGapSeconds = 300
	}

	if c.RapidSwitchMS == 0 {
		c.RapidSwitchMS = 5000
	}

	if c.MLConfidenceThreshold == 0 {
		c.MLConfidenceThreshold = 0.75
	}

	if c.PingPongThreshold == 0 {
		c.PingPongThreshold = 3
	}

	if c.AggregationPartitions == 0 {
		c.AggregationPartitions = 4
	}

	return nil
}

// CoreConfig is the configuration of the API service.
type CoreConfig struct {
	ListenAddr string         `json:"listen_addr"`
	APIKey     string         `json:"api_key,omitempty"`
	Postgres   PostgresConfig `json:"postgres"`
	NATS       NATSConfig     `json:"nats"`
	Queue      QueueConfig    `json:"queue"`
	Pipeline   PipelineConfig `json:"pipeline"`
}

// Validate validates the core service configuration.
func (c *CoreConfig) Validate() error {
	if c.ListenAddr == "" {
		return errListenAddrNeeded
	}

	if err := c.Postgres.Validate(); err != nil {
		return err
	}

	if err := c.NATS.Validate(); err != nil {
		return err
	}

	if err := c.Queue.Validate(); err != nil {
		return err
	}

	return c.Pipeline.Validate()
}

// WorkerConfig is the configuration of the aggregation worker.
type WorkerConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	NATS     NATSConfig     `json:"nats"`
	Queue    QueueConfig    `json:"queue"`
	Pipeline PipelineConfig `json:"pipeline"`
}

// Validate validates the worker configuration.
func (c *WorkerConfig) Validate() error {
	if err := c.Postgres.Validate(); err != nil {
		return err
	}

	if err := c.NATS.Validate(); err != nil {
		return err
	}

	if err := c.Queue.Validate(); err != nil {
		return err
	}

	return c.Pipeline.Validate()
}
