package sim

// WorkToken travels with a work thread. A non-executable ("false") token
// still traverses the graph so that downstream joins count its arrival, but
// requests no activity. The visited set guards against re-entering a node
// under the same lineage.
type WorkToken struct {
	executable  bool
	cancelPoint string
	visited     map[string]struct{}
}

// NewWorkToken creates a token. cancelPoint is ignored for executable tokens.
func NewWorkToken(executable bool, cancelPoint string) *WorkToken {
	t := &WorkToken{visited: make(map[string]struct{})}
	t.SetExecutable(executable, cancelPoint)
	return t
}

// Executable reports whether the token may request activities.
func (t *WorkToken) Executable() bool {
	return t.executable
}

// CancelPoint returns the flow where the token became non-executable.
func (t *WorkToken) CancelPoint() string {
	return t.cancelPoint
}

// SetExecutable changes executability. A non-executable token always carries
// the flow at which cancellation started.
func (t *WorkToken) SetExecutable(executable bool, at string) {
	t.executable = executable
	if executable {
		t.cancelPoint = ""
		return
	}
	if at == "" {
		panic("non-executable token requires a cancel point")
	}
	t.cancelPoint = at
}

// Visit records flow id as visited and reports whether it was new.
func (t *WorkToken) Visit(id string) bool {
	if _, ok := t.visited[id]; ok {
		return false
	}
	t.visited[id] = struct{}{}
	return true
}

// Visited reports whether flow id was visited under this token.
func (t *WorkToken) Visited(id string) bool {
	_, ok := t.visited[id]
	return ok
}

// VisitedCount returns the size of the visited set.
func (t *WorkToken) VisitedCount() int {
	return len(t.visited)
}

func (t *WorkToken) resetVisited() {
	clear(t.visited)
}

// fork derives a child token: the visited set is copied so the child's lineage
// starts from the parent's history.
func (t *WorkToken) fork(executable bool, at string) *WorkToken {
	child := &WorkToken{visited: make(map[string]struct{}, len(t.visited))}
	for id := range t.visited {
		child.visited[id] = struct{}{}
	}
	if !executable && !t.executable {
		at = t.cancelPoint
	}
	child.SetExecutable(executable, at)
	return child
}

func (t *WorkToken) merge(other *WorkToken) {
	for id := range other.visited {
		t.visited[id] = struct{}{}
	}
}
