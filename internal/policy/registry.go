package policy

// Registry holds every known policy in priority order and resolves a
// concrete adapter spawn to the first match, defaulting to Default.
// Selection happens once, at worker init, against an explicit ordered
// list built in the composition root rather than scattered type switches.
type Registry struct {
	ordered []Policy
	def     Policy
}

// NewRegistry builds the registry with the five supported adapter
// families, the test-only mock included.
func NewRegistry() *Registry {
	def := NewDefault("")
	return &Registry{
		ordered: []Policy{
			NewMock(),
			NewDebugpy(),
			NewJSDebug(),
			NewCodeLLDB(),
			NewLLDBDAP(),
		},
		def: def,
	}
}

// Register appends an additional policy ahead of the default, for tests
// that want to inject a bespoke policy without touching NewRegistry.
func (r *Registry) Register(p Policy) {
	r.ordered = append(r.ordered, p)
}

// Resolve returns the first policy whose MatchesAdapter reports true for
// spawn, falling back to Default.
func (r *Registry) Resolve(spawn SpawnConfig) Policy {
	for _, p := range r.ordered {
		if p.MatchesAdapter(spawn) {
			return p
		}
	}
	return r.def
}

// ByName looks up a registered policy (including the default) by its
// stable Name(), used by language->policy selection in the Session Manager
// before any process has been spawned.
func (r *Registry) ByName(name string) (Policy, bool) {
	for _, p := range r.ordered {
		if p.Name() == name {
			return p, true
		}
	}
	if r.def.Name() == name {
		return r.def, true
	}
	return nil, false
}
