package manifest

import (
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// ValidationErrors aggregates every defect found in one validation pass; it
// never stops at the first error, so a manifest author sees every mistake
// at once.
type ValidationErrors struct {
	Errors []string
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any defect was found.
func (e *ValidationErrors) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// Error implements the error interface so a *ValidationErrors can be
// returned directly from Validate.
func (e *ValidationErrors) Error() string {
	msg := fmt.Sprintf("manifest validation failed (%d error(s)):", len(e.Errors))
	for _, s := range e.Errors {
		msg += "\n  - " + s
	}
	return msg
}

// Validate runs the eight ordered, aggregated checks against m using
// registry to resolve node types. It returns nil if the manifest is valid,
// or a non-nil *ValidationErrors otherwise (never returns a bare error, so
// callers can always range over .Errors).
func Validate(m *Manifest, registry *node.Registry) *ValidationErrors {
	r := &ValidationErrors{}

	validateVersion(m, r)
	validateNodeIDs(m, r)
	nodeByID := validateNodeTypes(m, registry, r)
	validateConnectionEndpoints(m, nodeByID, r)
	validatePortArity(m, r)
	validateAcyclic(m, r)
	validateKindCompatibility(m, nodeByID, registry, r)
	validateParams(m, registry, r)

	if !r.HasErrors() {
		return nil
	}
	return r
}

// validateVersion checks rule 1.
func validateVersion(m *Manifest, r *ValidationErrors) {
	if err := m.CheckVersion(); err != nil {
		r.add("%v", err)
	}
}

// validateNodeIDs checks rule 2: IDs non-empty and unique.
func validateNodeIDs(m *Manifest, r *ValidationErrors) {
	seen := make(map[string]bool, len(m.Nodes))
	for i, n := range m.Nodes {
		if n.ID == "" {
			r.add("nodes[%d]: id must not be empty", i)
			continue
		}
		if seen[n.ID] {
			r.add("nodes[%d]: duplicate node id %q", i, n.ID)
			continue
		}
		seen[n.ID] = true
	}
}

// validateNodeTypes checks rule 3: every node_type exists in the registry.
// It returns a map from node ID to its NodeSpec for use by later checks.
func validateNodeTypes(m *Manifest, registry *node.Registry, r *ValidationErrors) map[string]NodeSpec {
	byID := make(map[string]NodeSpec, len(m.Nodes))
	for i, n := range m.Nodes {
		if n.ID != "" {
			byID[n.ID] = n
		}
		if registry == nil {
			continue
		}
		if _, ok := registry.Lookup(n.NodeType); !ok {
			r.add("nodes[%d] (%s): unknown node_type %q", i, n.ID, n.NodeType)
		}
	}
	return byID
}

// validateConnectionEndpoints checks rule 4: every endpoint references an
// existing node.
func validateConnectionEndpoints(m *Manifest, nodeByID map[string]NodeSpec, r *ValidationErrors) {
	for i, c := range m.Connections {
		if _, ok := nodeByID[c.From]; !ok {
			r.add("connections[%d]: from %q does not reference an existing node", i, c.From)
		}
		if _, ok := nodeByID[c.To]; !ok {
			r.add("connections[%d]: to %q does not reference an existing node", i, c.To)
		}
	}
}

// portKey identifies one (node, port) pair, using the empty string for the
// default port.
type portKey struct {
	node string
	port string
}

// validatePortArity checks rule 5: no input port has more than one inbound
// edge.
func validatePortArity(m *Manifest, r *ValidationErrors) {
	inbound := make(map[portKey][]int)
	for i, c := range m.Connections {
		k := portKey{node: c.To, port: c.ToPort}
		inbound[k] = append(inbound[k], i)
	}
	for k, idxs := range inbound {
		if len(idxs) > 1 {
			r.add("node %q port %q has %d inbound edges (connections%v); at most one is allowed", k.node, defaultPort(k.port), len(idxs), idxs)
		}
	}
}

func defaultPort(p string) string {
	if p == "" {
		return "(default)"
	}
	return p
}

// validateAcyclic checks rule 6 via DFS white/gray/black coloring, reporting
// the full cycle path (every node in the cycle is named, satisfying the
// requirement that a 3-node cycle's error names all three).
func validateAcyclic(m *Manifest, r *ValidationErrors) {
	adj := make(map[string][]string)
	for _, c := range m.Connections {
		adj[c.From] = append(adj[c.From], c.To)
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var path []string
	var cycles [][]string

	var dfs func(n string)
	dfs = func(n string) {
		color[n] = gray
		path = append(path, n)
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				// Found a back-edge: extract the cycle from path.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), next)
				cycles = append(cycles, cycle)
			case white:
				dfs(next)
			}
		}
		path = path[:len(path)-1]
		color[n] = black
	}

	nodes := make([]string, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		nodes = append(nodes, n.ID)
	}
	for _, n := range nodes {
		if color[n] == white {
			dfs(n)
		}
	}

	for _, cycle := range cycles {
		r.add("cycle detected: %v", cycle)
	}
}

// validateKindCompatibility checks rule 7: the upstream node's produced
// kinds must include at least one of the downstream's accepted kinds.
// data.KindBinary gets no special treatment: a Binary-producing upstream is
// compatible only with a downstream that lists data.KindBinary among its
// accepted kinds.
func validateKindCompatibility(m *Manifest, nodeByID map[string]NodeSpec, registry *node.Registry, r *ValidationErrors) {
	if registry == nil {
		return
	}
	for i, c := range m.Connections {
		from, ok := nodeByID[c.From]
		if !ok {
			continue
		}
		to, ok := nodeByID[c.To]
		if !ok {
			continue
		}
		fromDesc, ok := registry.Lookup(from.NodeType)
		if !ok {
			continue
		}
		toDesc, ok := registry.Lookup(to.NodeType)
		if !ok {
			continue
		}
		if fromDesc.IsSink() || toDesc.IsSource() {
			continue
		}
		if !kindsCompatible(fromDesc.ProducedKinds, toDesc.AcceptedKinds) {
			r.add("connections[%d]: %s produces %v, incompatible with %s accepting %v", i, c.From, fromDesc.ProducedKinds, c.To, toDesc.AcceptedKinds)
		}
	}
}

func kindsCompatible(produced, accepted []data.Kind) bool {
	for _, p := range produced {
		for _, a := range accepted {
			if p == a {
				return true
			}
		}
	}
	return false
}

// validateParams checks rule 8: each node's params validate against its
// descriptor's schema.
func validateParams(m *Manifest, registry *node.Registry, r *ValidationErrors) {
	if registry == nil {
		return
	}
	for i, n := range m.Nodes {
		if _, ok := registry.Lookup(n.NodeType); !ok {
			continue // already reported by validateNodeTypes
		}
		if err := registry.ValidateParams(n.NodeType, n.Params); err != nil {
			r.add("nodes[%d] (%s): %v", i, n.ID, err)
		}
	}
}
