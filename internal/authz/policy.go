package authz

// Matches reports whether the policy applies to the given resource, action
// and request attributes. Patterns match on equality or the wildcard; every
// condition key must be present in the attributes with an equal value, so a
// missing key is a non-match, never a pass.
func (p Policy) Matches(resource, action string, attrs map[string]string) bool {
	if !matchPattern(p.Resource, resource) || !matchPattern(p.Action, action) {
		return false
	}
	for key, want := range p.Conditions {
		got, ok := attrs[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func matchPattern(pattern, value string) bool {
	return pattern == Wildcard || pattern == value
}

// firstMatch scans policies in order and returns the first that matches.
// Evaluation order is insertion order; there is no specificity ranking.
func firstMatch(policies []Policy, resource, action string, attrs map[string]string) (Policy, bool) {
	for _, p := range policies {
		if p.Matches(resource, action, attrs) {
			return p, true
		}
	}
	return Policy{}, false
}
