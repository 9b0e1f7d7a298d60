package notification

// Registry maps provider names to configured providers.
type Registry map[string]Provider

// Register adds p under its own name.
func (r Registry) Register(p Provider) {
	r[p.Name()] = p
}

// Chain resolves names in order. Unknown names are skipped and reported so
// a missing credential disables one provider rather than the whole channel.
func (r Registry) Chain(names []string) ([]Provider, []string) {
	var chain []Provider
	var missing []string
	for _, name := range names {
		if p, ok := r[name]; ok {
			chain = append(chain, p)
			continue
		}
		missing = append(missing, name)
	}
	return chain, missing
}

// ChainOr is Chain with a provider to use when none of names resolve.
func (r Registry) ChainOr(names []string, fallback Provider) []Provider {
	chain, _ := r.Chain(names)
	if len(chain) == 0 && fallback != nil {
		return []Provider{fallback}
	}
	return chain
}
