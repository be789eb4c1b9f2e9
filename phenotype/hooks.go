package phenotype

// HookKind tags the slot a behavior occupies on a definition.
type HookKind uint8

const (
	HookNone       HookKind = iota
	HookPhenotype           // per-step phenotype update
	HookCustomRule          // per-step custom rule
	HookContact             // pairwise contact rule
	numHookKinds
)

// String returns the hook name.
func (k HookKind) String() string {
	switch k {
	case HookNone:
		return "none"
	case HookPhenotype:
		return "phenotype"
	case HookCustomRule:
		return "custom_rule"
	case HookContact:
		return "contact"
	}
	return "unknown"
}

// Behavior is an optional per-agent callback. other is nil except for contact hooks.
type Behavior interface {
	Kind() HookKind
	Apply(self, other *Agent, dt float64)
}

// NoOp is the do-nothing behavior every unset slot holds.
type NoOp struct {
	kind HookKind
}

// Kind returns the slot this no-op fills.
func (n NoOp) Kind() HookKind { return n.kind }

// Apply does nothing.
func (NoOp) Apply(*Agent, *Agent, float64) {}

// IsNoOp reports whether b does nothing, letting hosts skip dispatch.
func IsNoOp(b Behavior) bool {
	_, ok := b.(NoOp)
	return ok
}

// Func adapts a function to a Behavior in the given slot.
type Func struct {
	Slot HookKind
	Fn   func(self, other *Agent, dt float64)
}

// Kind returns the slot.
func (f Func) Kind() HookKind { return f.Slot }

// Apply calls Fn.
func (f Func) Apply(self, other *Agent, dt float64) { f.Fn(self, other, dt) }
