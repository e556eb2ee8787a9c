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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalString(t *testing.T) {
	t.Parallel()

	var cfg PipelineConfig

	require.NoError(t, json.Unmarshal([]byte(`{"quarantine_ttl":"24h","quarantine_sweep_interval":"30m"}`), &cfg))

	assert.Equal(t, Duration(24*time.Hour), cfg.QuarantineTTL)
	assert.Equal(t, Duration(30*time.Minute), cfg.QuarantineSweepInterval)
}

func TestDuration_UnmarshalNanoseconds(t *testing.T) {
	t.Parallel()

	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`60000000000`), &d))
	assert.Equal(t, Duration(time.Minute), d)
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	t.Parallel()

	var d Duration

	require.ErrorIs(t, json.Unmarshal([]byte(`"soon"`), &d), errInvalidDuration)
	require.ErrorIs(t, json.Unmarshal([]byte(`true`), &d), errInvalidDuration)
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}

func TestPipelineConfig_ValidateFillsDefaults(t *testing.T) {
	t.Parallel()

	var cfg PipelineConfig
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.80, cfg.QuarantineThreshold)
	assert.Equal(t, Duration(24*time.Hour), cfg.QuarantineTTL)
	assert.Equal(t, Duration(time.Hour), cfg.QuarantineSweepInterval)
	assert.Equal(t, 300, cfg.IdleGapSeconds)
	assert.Equal(t, 4, cfg.AggregationPartitions)
}
