package policy

// DefaultPolicies returns the baked-in policy set evaluated when no
// operator-supplied policy file overrides it: sandbox-gate anything
// touching a "critical" resource, then deny any peer whose trust score
// has fallen below 20.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name: "critical-resource-sandbox",
			Rules: []Rule{
				{Attribute: attrResource, Operator: OpContains, Value: "critical"},
			},
			Action: RequireSandbox,
		},
		{
			Name: "low-trust-deny",
			Rules: []Rule{
				{Attribute: attrTrustLevel, Operator: OpLessThan, Value: "20"},
			},
			Action: Deny("insufficient trust"),
		},
	}
}
