// Package policy holds the static governance policy: per-action-type base
// risk, the restricted-resource set, per-resource hourly ceilings, approval
// timeouts, and the circuit-breaker threshold. The table is loaded once at
// startup and never mutated, so reads need no locking.
package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"warden/internal/domain"
)

// Table is the immutable policy lookup surface the rest of the engine
// consults. Construct via Default or Load; zero values are not usable.
type Table struct {
	baseRisk         map[domain.ActionType]domain.RiskLevel
	restricted       map[string]bool
	ceilings         map[string]int
	defaultCeiling   int
	highTimeout      time.Duration
	criticalTimeout  time.Duration
	breakerThreshold int
}

// Default returns the compiled-in policy. Unknown action types fall through to
// the CRITICAL default row (fail closed) rather than being rejected, so new
// legitimate action types are not silently dropped.
func Default() *Table {
	return &Table{
		baseRisk: map[domain.ActionType]domain.RiskLevel{
			domain.ActionQuery:        domain.RiskSafe,
			domain.ActionRead:         domain.RiskSafe,
			domain.ActionWrite:        domain.RiskMedium,
			domain.ActionRestart:      domain.RiskHigh,
			domain.ActionStop:         domain.RiskHigh,
			domain.ActionConfigChange: domain.RiskCritical,
			domain.ActionApplyFix:     domain.RiskMedium,
		},
		restricted: map[string]bool{
			"kiro-tools": true,
		},
		ceilings:         map[string]int{},
		defaultCeiling:   100,
		highTimeout:      5 * time.Minute,
		criticalTimeout:  2 * time.Minute,
		breakerThreshold: 3,
	}
}

// file is the YAML shape of a policy overlay.
type file struct {
	ActionRisk          map[string]string `yaml:"action_risk"`
	RestrictedResources []string          `yaml:"restricted_resources"`
	HourlyCeilings      map[string]int    `yaml:"hourly_ceilings"`
	DefaultCeiling      *int              `yaml:"default_ceiling"`
	ApprovalTimeouts    struct {
		High     time.Duration `yaml:"high"`
		Critical time.Duration `yaml:"critical"`
	} `yaml:"approval_timeouts"`
	CircuitFailureThreshold *int `yaml:"circuit_failure_threshold"`
}

// Load reads a YAML policy file and merges it over the compiled-in defaults.
// Entries in the file replace or extend default rows; absent sections keep
// their defaults.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	t := Default()
	for action, riskName := range f.ActionRisk {
		level, ok := domain.ParseRiskLevel(riskName)
		if !ok {
			return nil, fmt.Errorf("policy file: unknown risk level %q for action %q", riskName, action)
		}
		t.baseRisk[domain.ActionType(action)] = level
	}
	for _, resource := range f.RestrictedResources {
		t.restricted[resource] = true
	}
	for resource, ceiling := range f.HourlyCeilings {
		if ceiling < 0 {
			return nil, fmt.Errorf("policy file: negative ceiling for resource %q", resource)
		}
		t.ceilings[resource] = ceiling
	}
	if f.DefaultCeiling != nil {
		t.defaultCeiling = *f.DefaultCeiling
	}
	if f.ApprovalTimeouts.High > 0 {
		t.highTimeout = f.ApprovalTimeouts.High
	}
	if f.ApprovalTimeouts.Critical > 0 {
		t.criticalTimeout = f.ApprovalTimeouts.Critical
	}
	if f.CircuitFailureThreshold != nil && *f.CircuitFailureThreshold > 0 {
		t.breakerThreshold = *f.CircuitFailureThreshold
	}
	return t, nil
}

// BaseRisk returns the static risk for an action type. Unknown types resolve
// to CRITICAL with known=false so callers can audit the fail-closed default.
func (t *Table) BaseRisk(action domain.ActionType) (level domain.RiskLevel, known bool) {
	if level, ok := t.baseRisk[action]; ok {
		return level, true
	}
	return domain.RiskCritical, false
}

// IsRestricted reports whether the resource is on the restricted list.
// Restricted resources are permanently excluded from auto-approval.
func (t *Table) IsRestricted(resource string) bool {
	return t.restricted[resource]
}

// Ceiling returns the hourly action ceiling for a resource, falling back to
// the default when the resource has no explicit entry.
func (t *Table) Ceiling(resource string) int {
	if ceiling, ok := t.ceilings[resource]; ok {
		return ceiling
	}
	return t.defaultCeiling
}

// ApprovalTimeout returns the pending-approval expiry for a risk level.
// MEDIUM deliberately has no engine-enforced expiry (hasExpiry=false): its SLA
// belongs to the external notification channel, asymmetric with HIGH/CRITICAL.
func (t *Table) ApprovalTimeout(level domain.RiskLevel) (timeout time.Duration, hasExpiry bool) {
	switch level {
	case domain.RiskHigh:
		return t.highTimeout, true
	case domain.RiskCritical:
		return t.criticalTimeout, true
	default:
		return 0, false
	}
}

// BreakerThreshold returns the consecutive-failure count that trips a circuit.
func (t *Table) BreakerThreshold() int {
	return t.breakerThreshold
}
