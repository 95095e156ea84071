// Package stackgraph provides pure, side-effect-free functions over a
// session's parent-chain ("stack") — depth calculation, root resolution,
// dependent enumeration, and cycle validation. None of these functions
// touch the database; callers load []models.SessionNode from the store
// first.
package stackgraph

import "github.com/agentrain/mergetrain/internal/models"

// DefaultMaxDepth is the default bound on stack depth before DepthExceeded
// is returned. Overridable via Settings.Stack.MaxDepth.
const DefaultMaxDepth = 10

// CycleDetected reports a parent cycle reachable from Workspace.
type CycleDetected struct {
	Workspace string
	CyclePath []string
}

func (e *CycleDetected) Error() string { return "cycle detected in stack for " + e.Workspace }
func (e *CycleDetected) ErrorCode() string { return "CYCLE_DETECTED" }
func (e *CycleDetected) Context() map[string]string {
	path := ""
	for i, w := range e.CyclePath {
		if i > 0 {
			path += " -> "
		}
		path += w
	}
	return map[string]string{"workspace": e.Workspace, "cycle_path": path}
}
func (e *CycleDetected) SuggestedAction() string {
	return "remove the circular parent reference before resubmitting"
}

// ParentNotFound reports a parent_workspace reference with no matching node.
type ParentNotFound struct {
	ParentWorkspace string
}

func (e *ParentNotFound) Error() string { return "parent workspace not found: " + e.ParentWorkspace }
func (e *ParentNotFound) ErrorCode() string { return "PARENT_NOT_FOUND" }
func (e *ParentNotFound) Context() map[string]string {
	return map[string]string{"parent_workspace": e.ParentWorkspace}
}
func (e *ParentNotFound) SuggestedAction() string {
	return "create the parent session first, or clear the parent reference"
}

// DepthExceeded reports a stack deeper than the configured maximum.
type DepthExceeded struct {
	Current int
	Max     int
}

func (e *DepthExceeded) Error() string { return "stack depth exceeds maximum" }
func (e *DepthExceeded) ErrorCode() string { return "DEPTH_EXCEEDED" }
func (e *DepthExceeded) Context() map[string]string {
	return map[string]string{
		"current": itoa(e.Current),
		"max":     itoa(e.Max),
	}
}
func (e *DepthExceeded) SuggestedAction() string {
	return "flatten or split the stack; it exceeds the configured max_depth"
}

// InvalidParent reports a parent assignment rejected for a domain reason
// other than a cycle (e.g. self-reference).
type InvalidParent struct {
	Workspace string
	Reason    string
}

func (e *InvalidParent) Error() string { return "invalid parent for " + e.Workspace + ": " + e.Reason }
func (e *InvalidParent) ErrorCode() string { return "INVALID_PARENT" }
func (e *InvalidParent) Context() map[string]string {
	return map[string]string{"workspace": e.Workspace, "reason": e.Reason}
}
func (e *InvalidParent) SuggestedAction() string {
	return "choose a different parent workspace"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func findNode(name string, nodes []models.SessionNode) (models.SessionNode, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return models.SessionNode{}, false
}

// ValidateNoCycle reports whether assigning parent as workspace's parent
// would create a cycle in the dependency chain.
func ValidateNoCycle(workspace, parent string, nodes []models.SessionNode) error {
	if workspace == parent {
		return &CycleDetected{Workspace: workspace, CyclePath: []string{workspace}}
	}
	if isAncestorOf(workspace, parent, nodes) {
		return &CycleDetected{Workspace: workspace, CyclePath: buildCyclePath(parent, nodes)}
	}
	return nil
}

func isAncestorOf(workspace, descendant string, nodes []models.SessionNode) bool {
	current := descendant
	visited := map[string]bool{}
	for !visited[current] {
		visited[current] = true
		node, ok := findNode(current, nodes)
		if !ok {
			return false
		}
		if node.Parent == "" {
			return false
		}
		if node.Parent == workspace {
			return true
		}
		current = node.Parent
	}
	return false
}

func buildCyclePath(start string, nodes []models.SessionNode) []string {
	path := []string{start}
	current := start
	visited := map[string]bool{}
	for !visited[current] {
		visited[current] = true
		node, ok := findNode(current, nodes)
		if !ok || node.Parent == "" {
			break
		}
		path = append(path, node.Parent)
		current = node.Parent
	}
	return path
}

// FindRoot walks the parent chain from workspace to its root (the node with
// no parent).
func FindRoot(workspace string, nodes []models.SessionNode) (string, error) {
	current := workspace
	visited := map[string]bool{}
	for {
		if visited[current] {
			return "", &CycleDetected{Workspace: workspace, CyclePath: buildCyclePath(current, nodes)}
		}
		visited[current] = true

		node, ok := findNode(current, nodes)
		if !ok {
			return "", &ParentNotFound{ParentWorkspace: current}
		}
		if node.Parent == "" {
			return current, nil
		}
		if node.Parent == current {
			return "", &CycleDetected{Workspace: workspace, CyclePath: buildCyclePath(current, nodes)}
		}
		current = node.Parent
	}
}

// CalculateDepth returns the number of ancestors between workspace and its
// root (0 for a root node, 1 for a direct child, and so on).
func CalculateDepth(workspace string, nodes []models.SessionNode) (int, error) {
	current := workspace
	depth := 0
	visited := map[string]bool{}
	for {
		if visited[current] {
			return 0, &CycleDetected{Workspace: workspace, CyclePath: buildCyclePath(current, nodes)}
		}
		visited[current] = true

		node, ok := findNode(current, nodes)
		if !ok {
			return 0, &ParentNotFound{ParentWorkspace: current}
		}
		if node.Parent == "" {
			return depth, nil
		}
		if node.Parent == current {
			return 0, &CycleDetected{Workspace: workspace, CyclePath: buildCyclePath(current, nodes)}
		}
		depth++
		current = node.Parent
	}
}

// BuildDependentList performs a breadth-first traversal and returns every
// descendant of workspace, in BFS order. Returns nil if workspace has no
// children.
func BuildDependentList(workspace string, nodes []models.SessionNode) []string {
	var result []string
	queue := []string{workspace}
	visited := map[string]bool{workspace: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, n := range nodes {
			if n.Parent == current && !visited[n.Name] {
				visited[n.Name] = true
				result = append(result, n.Name)
				queue = append(queue, n.Name)
			}
		}
	}
	return result
}

// CheckDepth validates depth against max and returns *DepthExceeded if over.
func CheckDepth(depth, max int) error {
	if max <= 0 {
		max = DefaultMaxDepth
	}
	if depth > max {
		return &DepthExceeded{Current: depth, Max: max}
	}
	return nil
}
