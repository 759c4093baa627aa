package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/internal/domain"
	"warden/internal/policy"
)

// stubHistory satisfies FailureHistory with fixed per-resource counts.
type stubHistory map[string]int

func (h stubHistory) ConsecutiveFailures(resource string) int {
	return h[resource]
}

func request(action domain.ActionType, target string) domain.ActionRequest {
	return domain.ActionRequest{ID: "req-1", Type: action, Target: target, RequestedBy: "agent"}
}

func TestClassify(t *testing.T) {
	table := policy.Default()

	t.Run("base risk from the policy table", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{})
		out := c.Classify(request(domain.ActionRead, "groq-llm"))
		assert.Equal(t, domain.RiskSafe, out.Level)
		assert.False(t, out.UnknownAction)
		assert.False(t, out.Restricted)
	})

	t.Run("restricted target escalates one level", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{})
		out := c.Classify(request(domain.ActionRestart, "kiro-tools"))
		assert.True(t, out.Restricted)
		assert.Equal(t, domain.RiskCritical, out.Level)
	})

	t.Run("failure history escalates one more level", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{"groq-llm": 2})
		out := c.Classify(request(domain.ActionWrite, "groq-llm"))
		assert.Equal(t, domain.RiskHigh, out.Level)
	})

	t.Run("single failure does not escalate", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{"groq-llm": 1})
		out := c.Classify(request(domain.ActionWrite, "groq-llm"))
		assert.Equal(t, domain.RiskMedium, out.Level)
	})

	t.Run("escalation clamps at critical", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{"kiro-tools": 5})
		out := c.Classify(request(domain.ActionConfigChange, "kiro-tools"))
		assert.Equal(t, domain.RiskCritical, out.Level)
	})

	t.Run("unknown action fails closed to critical", func(t *testing.T) {
		c := NewClassifier(table, stubHistory{})
		out := c.Classify(request(domain.ActionType("teleport"), "groq-llm"))
		assert.True(t, out.UnknownAction)
		assert.Equal(t, domain.RiskCritical, out.Level)
	})

	t.Run("classification never lowers risk", func(t *testing.T) {
		// Same request with extra escalation signals must never come out lower.
		plain := NewClassifier(table, stubHistory{}).Classify(request(domain.ActionStop, "pg-mcp"))
		loaded := NewClassifier(table, stubHistory{"pg-mcp": 3}).Classify(request(domain.ActionStop, "pg-mcp"))
		assert.GreaterOrEqual(t, int(loaded.Level), int(plain.Level))
	})
}
