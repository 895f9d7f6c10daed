package policy

import (
	"strconv"
	"strings"
)

// Request is the attribute view of a connection request that rules are
// evaluated against: identity attributes, the synthetic "resource"
// attribute (the union of requested resources), and the peer's
// trust-level.
type Request struct {
	// Attributes holds identity-derived attributes (e.g. "user-id",
	// "device-type"). Looked up directly by Rule.Attribute.
	Attributes map[string]string
	// Resources is the requested-resources set. Exposed to rules under
	// the synthetic attribute name "resource".
	Resources []string
	// TrustLevel is the peer's current TrustScore. Exposed under the
	// synthetic attribute name "trust-level".
	TrustLevel int
}

const (
	attrResource   = "resource"
	attrTrustLevel = "trust-level"
)

// Evaluate walks policies in order and returns the first matching policy's
// action, or Allow if none match.
func Evaluate(policies []Policy, req Request) Action {
	for _, p := range policies {
		if allRulesMatch(p.Rules, req) {
			return p.Action
		}
	}
	return Allow
}

func allRulesMatch(rules []Rule, req Request) bool {
	for _, r := range rules {
		if !r.matches(req) {
			return false
		}
	}
	return true
}

func (r Rule) matches(req Request) bool {
	switch r.Attribute {
	case attrResource:
		return matchResource(r, req.Resources)
	case attrTrustLevel:
		return matchNumeric(r, strconv.Itoa(req.TrustLevel))
	default:
		value, ok := req.Attributes[r.Attribute]
		if !ok {
			return false
		}
		return matchString(r, value)
	}
}

func matchResource(r Rule, resources []string) bool {
	switch r.Operator {
	case OpEquals:
		for _, res := range resources {
			if res == r.Value {
				return true
			}
		}
		return false
	case OpContains:
		for _, res := range resources {
			if strings.Contains(res, r.Value) {
				return true
			}
		}
		return false
	case OpInSet:
		set := splitSet(r.Value)
		for _, res := range resources {
			if _, ok := set[res]; ok {
				return true
			}
		}
		return false
	default:
		// less-than/greater-than against a resource set is ill-typed.
		return false
	}
}

func matchString(r Rule, value string) bool {
	switch r.Operator {
	case OpEquals:
		return value == r.Value
	case OpContains:
		return strings.Contains(value, r.Value)
	case OpInSet:
		set := splitSet(r.Value)
		_, ok := set[value]
		return ok
	case OpLessThan, OpGreaterThan:
		return matchNumeric(r, value)
	default:
		return false
	}
}

func matchNumeric(r Rule, value string) bool {
	got, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	want, err := strconv.Atoi(r.Value)
	if err != nil {
		return false
	}
	switch r.Operator {
	case OpLessThan:
		return got < want
	case OpGreaterThan:
		return got > want
	case OpEquals:
		return got == want
	default:
		return false
	}
}

func splitSet(value string) map[string]struct{} {
	parts := strings.Split(value, ",")
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		set[strings.TrimSpace(p)] = struct{}{}
	}
	return set
}
