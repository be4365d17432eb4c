package nodeid

// Address is the structured label of a task. The first path segment names
// the stage (for example `unload`), the remaining segments name the scope the
// stage works on (for example `public.orders`).
type Address struct {
	Path []string
}

// New builds an address from a stage and its scope segments.
func New(stage string, scope ...string) *Address {
	path := make([]string, 0, len(scope)+1)
	path = append(path, stage)
	path = append(path, scope...)
	return &Address{Path: path}
}

// Stage returns the first segment of the address.
func (a *Address) Stage() string {
	if a == nil || len(a.Path) == 0 {
		return ""
	}
	return a.Path[0]
}

// Scope returns the dot-joined segments after the stage.
func (a *Address) Scope() string {
	if a == nil || len(a.Path) < 2 {
		return ""
	}
	return join(a.Path[1:])
}
