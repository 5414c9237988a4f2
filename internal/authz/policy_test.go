package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyMatchesPatterns(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		resource string
		action   string
		want     bool
	}{
		{
			name:     "exact resource and action",
			policy:   Policy{Resource: "submission", Action: "grade"},
			resource: "submission", action: "grade",
			want: true,
		},
		{
			name:     "wildcard resource",
			policy:   Policy{Resource: "*", Action: "grade"},
			resource: "assignment", action: "grade",
			want: true,
		},
		{
			name:     "wildcard action",
			policy:   Policy{Resource: "submission", Action: "*"},
			resource: "submission", action: "delete",
			want: true,
		},
		{
			name:     "wildcard both",
			policy:   Policy{Resource: "*", Action: "*"},
			resource: "anything", action: "whatever",
			want: true,
		},
		{
			name:     "resource mismatch",
			policy:   Policy{Resource: "submission", Action: "grade"},
			resource: "assignment", action: "grade",
			want: false,
		},
		{
			name:     "action mismatch",
			policy:   Policy{Resource: "submission", Action: "grade"},
			resource: "submission", action: "delete",
			want: false,
		},
		{
			name:     "no partial globbing",
			policy:   Policy{Resource: "sub*", Action: "grade"},
			resource: "submission", action: "grade",
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.Matches(tc.resource, tc.action, nil))
		})
	}
}

func TestPolicyMatchesConditions(t *testing.T) {
	policy := Policy{
		Resource:   "submission",
		Action:     "grade",
		Conditions: map[string]string{"course": "cs101", "term": "spring"},
	}

	assert.True(t, policy.Matches("submission", "grade", map[string]string{
		"course": "cs101", "term": "spring", "extra": "ignored",
	}), "all condition keys equal, extra attributes irrelevant")

	assert.False(t, policy.Matches("submission", "grade", map[string]string{
		"course": "cs101",
	}), "missing condition key is a non-match")

	assert.False(t, policy.Matches("submission", "grade", map[string]string{
		"course": "cs101", "term": "fall",
	}), "value mismatch is a non-match")

	assert.False(t, policy.Matches("submission", "grade", nil),
		"nil attributes cannot satisfy conditions")

	unconditional := Policy{Resource: "submission", Action: "grade"}
	assert.True(t, unconditional.Matches("submission", "grade", nil),
		"policy without conditions matches on patterns alone")
}

func TestFirstMatchUsesInsertionOrder(t *testing.T) {
	policies := []Policy{
		{ID: "p1", Resource: "*", Action: "delete", Effect: EffectAllow},
		{ID: "p2", Resource: "assignment", Action: "delete", Effect: EffectDeny},
	}

	// The wildcard sits first, so it wins even though p2 is more specific.
	p, ok := firstMatch(policies, "assignment", "delete", nil)
	require.True(t, ok)
	assert.Equal(t, "p1", p.ID)

	// Reversed order, reversed outcome.
	p, ok = firstMatch([]Policy{policies[1], policies[0]}, "assignment", "delete", nil)
	require.True(t, ok)
	assert.Equal(t, "p2", p.ID)

	_, ok = firstMatch(policies, "assignment", "grade", nil)
	assert.False(t, ok)
}
