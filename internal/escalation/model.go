// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package escalation

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Model is a trained logistic classifier over the numeric features. Weights
// are keyed by feature name; names absent from a request's vector contribute
// nothing. String-valued features are never weighted.
type Model struct {
	Weights   map[string]float64 `json:"weights"`
	Intercept float64            `json:"intercept"`
}

// LoadModel reads the model JSON at path. The model is optional; callers
// treat an error as "score with rules alone".
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("model %s has no weights", path)
	}
	return &m, nil
}

// Predict returns the bot probability in [0, 1] for the feature vector.
// Booleans contribute 0 or 1; the -1 no-prior-hit sentinel passes through as
// a numeric value the training pipeline saw too.
func (m *Model) Predict(f Features) float64 {
	z := m.Intercept
	for name, weight := range m.Weights {
		v, ok := f[name]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case bool:
			if x {
				z += weight
			}
		case int:
			z += weight * float64(x)
		case int64:
			z += weight * float64(x)
		case float64:
			z += weight * x
		}
	}
	return 1 / (1 + math.Exp(-z))
}
