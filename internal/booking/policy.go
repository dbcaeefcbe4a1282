package booking

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// UnlimitedCapacity is the effective limit for treatments no category rule
// matches. Routine visits share the chairs freely; only the named
// categories are scarce.
const UnlimitedCapacity = 99

// CategoryRule maps treatment names onto a concurrency limit by keyword.
// Matching is a case-insensitive substring test, which is how the clinic's
// treatment menu distinguishes its categories (the same keyword appears in
// every variant of a treatment name).
type CategoryRule struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Capacity int      `json:"capacity"`
}

// CapacityPolicy is the source of truth for per-slot occupancy limits.
// Rules are checked in order; the first keyword hit wins.
type CapacityPolicy struct {
	Rules           []CategoryRule `json:"rules"`
	DefaultCapacity int            `json:"default_capacity"`
}

// DefaultCapacityPolicy mirrors the clinic's menu: consultations and exams
// need the consultation room (one at a time), whitening and cleaning run on
// the hygienist chairs (four), everything else is effectively unlimited.
func DefaultCapacityPolicy() CapacityPolicy {
	return CapacityPolicy{
		Rules: []CategoryRule{
			{
				Name:     "consultation",
				Keywords: []string{"初診", "無料相談", "精密検査", "カウンセリング", "consultation", "counseling", "detailed exam"},
				Capacity: 1,
			},
			{
				Name:     "hygiene",
				Keywords: []string{"ホワイトニング", "クリーニング", "whitening", "cleaning"},
				Capacity: 4,
			},
		},
		DefaultCapacity: UnlimitedCapacity,
	}
}

// LoadCapacityPolicy reads a policy from a JSON file, or returns the
// default policy when path is empty.
func LoadCapacityPolicy(path string) (CapacityPolicy, error) {
	if path == "" {
		return DefaultCapacityPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return CapacityPolicy{}, fmt.Errorf("read capacity policy: %w", err)
	}

	var p CapacityPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return CapacityPolicy{}, fmt.Errorf("parse capacity policy: %w", err)
	}

	if p.DefaultCapacity <= 0 {
		p.DefaultCapacity = UnlimitedCapacity
	}
	for _, rule := range p.Rules {
		if rule.Capacity <= 0 {
			return CapacityPolicy{}, fmt.Errorf("capacity policy rule %q has non-positive capacity %d", rule.Name, rule.Capacity)
		}
	}

	return p, nil
}

// Capacity returns the per-slot limit for a treatment name.
func (p CapacityPolicy) Capacity(treatmentName string) int {
	name := strings.ToLower(treatmentName)
	for _, rule := range p.Rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return rule.Capacity
			}
		}
	}
	return p.DefaultCapacity
}
