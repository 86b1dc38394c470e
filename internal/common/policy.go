/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/policy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// PolicyConfig is the on-disk amount policy. Amounts are strings so they keep
// exact decimal precision.
type PolicyConfig struct {
	Variant   string `yaml:"variant"` // "default" or "extended"
	MinAmount string `yaml:"min_amount"`
	MaxAmount string `yaml:"max_amount"`
	MinFee    string `yaml:"min_fee"`
	FeeRate   string `yaml:"fee_rate"`
}

// LoadPolicy reads the amount policy from policyFile. A missing file yields
// the default policy.
func LoadPolicy(policyFile string) (*policy.Policy, error) {
	if policyFile == "" {
		return policy.New(policy.Default)
	}

	var policyPath string
	if filepath.IsAbs(policyFile) {
		policyPath = policyFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		policyPath = filepath.Join(wd, policyFile)
	}

	data, err := os.ReadFile(policyPath)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("No policy file found, using default amount policy", zap.String("path", policyPath))
		return policy.New(policy.Default)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", policyFile, err)
	}

	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy. Omitted fields keep the
// value of the selected variant.
func ParsePolicy(data []byte) (*policy.Policy, error) {
	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse policy: %w", err)
	}

	var p models.AmountPolicy
	switch cfg.Variant {
	case "", "default":
		p = policy.Default
	case "extended":
		p = policy.Extended
	default:
		return nil, fmt.Errorf("unknown policy variant %q", cfg.Variant)
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"min_amount", cfg.MinAmount, &p.MinAmount},
		{"max_amount", cfg.MaxAmount, &p.MaxAmount},
		{"min_fee", cfg.MinFee, &p.MinFee},
		{"fee_rate", cfg.FeeRate, &p.FeeRate},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return nil, fmt.Errorf("policy %s %q is not a number", f.name, f.value)
		}
		*f.dst = d
	}

	return policy.New(p)
}
