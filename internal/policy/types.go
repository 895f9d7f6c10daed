// Package policy implements the admission core's access control policy
// schema and evaluator: ordered policies of conjunctive attribute rules
// that resolve a connection request to an Allow, Deny, RequireSandbox, or
// RequireMultiFactor action.
package policy

// Policy is the top-level container for an ordered set of rules. Policies
// are evaluated in declaration order; the first whose rules all match
// dictates the Action.
type Policy struct {
	Name   string `yaml:"name" json:"name"`
	Rules  []Rule `yaml:"rules" json:"rules"`
	Action Action `yaml:"action" json:"action"`
}

// Rule is a single attribute comparison. A Policy's rules are conjunctive:
// every rule must match for the policy to fire.
type Rule struct {
	Attribute string   `yaml:"attribute" json:"attribute"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Value     string   `yaml:"value" json:"value"`
}

// Operator names a rule comparison. Unknown operators and type-mismatched
// comparisons always evaluate false: rules are total functions, never
// panics or errors.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpLessThan    Operator = "less-than"
	OpGreaterThan Operator = "greater-than"
	OpInSet       Operator = "in-set"
)

// Action is the outcome of a matched (or unmatched) policy.
type Action struct {
	Kind   ActionKind `yaml:"kind" json:"kind"`
	Reason string     `yaml:"reason,omitempty" json:"reason,omitempty"` // populated only for ActionDeny
}

// ActionKind enumerates the possible policy outcomes.
type ActionKind string

const (
	ActionAllow              ActionKind = "allow"
	ActionDeny               ActionKind = "deny"
	ActionRequireSandbox     ActionKind = "require_sandbox"
	ActionRequireMultiFactor ActionKind = "require_multi_factor"
)

// Allow is the zero-reason allow action, also the default when no policy matches.
var Allow = Action{Kind: ActionAllow}

// Deny builds a deny action carrying an operator-facing reason.
func Deny(reason string) Action {
	return Action{Kind: ActionDeny, Reason: reason}
}

// RequireSandbox is the action returned by sandbox-gating rules.
var RequireSandbox = Action{Kind: ActionRequireSandbox}

// RequireMultiFactor is the action returned by step-up-auth rules.
var RequireMultiFactor = Action{Kind: ActionRequireMultiFactor}

func (a Action) String() string {
	if a.Kind == ActionDeny && a.Reason != "" {
		return string(a.Kind) + ": " + a.Reason
	}
	return string(a.Kind)
}
