package collaborators

import "path/filepath"

// FSWorkspace resolves agent workspace roots under a single base
// directory, laid out as {base}/{projectID}/{agentID}.
type FSWorkspace struct {
	base string
}

// NewFSWorkspace constructs an FSWorkspace rooted at base.
func NewFSWorkspace(base string) *FSWorkspace {
	return &FSWorkspace{base: base}
}

func (w *FSWorkspace) PathFor(projectID, agentID string) (string, error) {
	return filepath.Join(w.base, projectID, agentID), nil
}

var _ Workspace = (*FSWorkspace)(nil)
