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

// Package config loads service configuration from local JSON files.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Validator is implemented by config structs that can check and default
// their own fields after loading.
type Validator interface {
	Validate() error
}

// FileConfigLoader loads configuration from a local JSON file.
type FileConfigLoader struct{}

// Load implements config loading by reading and unmarshaling a JSON file.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// LoadAndValidate reads a JSON config file into dst and runs its Validate
// hook when present.
func LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	loader := &FileConfigLoader{}
	if err := loader.Load(ctx, path, dst); err != nil {
		return err
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid configuration in '%s': %w", path, err)
		}
	}

	return nil
}
