package domain

// RiskLevel is the ordered classification of how dangerous an action is.
// The total ordering matters: escalation always moves up, never down, within
// one authorization decision.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskSafe:     "safe",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

// ParseRiskLevel constructs a RiskLevel from external input such as a policy
// file. Unknown names return ok=false.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for level, name := range riskNames {
		if name == s {
			return level, true
		}
	}
	return RiskCritical, false
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return "unknown"
}

// Escalate raises the level by n steps, clamped at CRITICAL. Negative n is
// ignored so classification can never lower risk.
func (r RiskLevel) Escalate(n int) RiskLevel {
	if n <= 0 {
		return r
	}
	e := r + RiskLevel(n)
	if e > RiskCritical {
		return RiskCritical
	}
	return e
}

// RequiresApproval reports whether the level needs a human sign-off before
// execution.
func (r RiskLevel) RequiresApproval() bool {
	return r >= RiskMedium
}
