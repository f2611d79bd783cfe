// Package scheduler compiles a validated manifest into an immutable Plan
// and executes that Plan against a session's input/output streams.
package scheduler

import (
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/manifest"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// DefaultChannelCapacity is the bounded-channel capacity used for every
// edge when CompileOptions.ChannelCapacity is left at 0.
const DefaultChannelCapacity = 8

// CompileOptions configures Plan compilation.
type CompileOptions struct {
	// ChannelCapacity bounds every edge's channel. 0 means
	// DefaultChannelCapacity.
	ChannelCapacity int
}

// PlanNode is one node's compiled, static metadata: its resolved type,
// params, descriptor, and the port names it reads/writes.
type PlanNode struct {
	ID         string
	Type       string
	Params     map[string]any
	Descriptor node.Descriptor

	// InboundPorts are the distinct to_port names this node receives on,
	// in the order first seen. A node with zero inbound ports is a source.
	InboundPorts []string
	// OutboundPorts are the distinct from_port names this node sends on.
	// A node with zero outbound ports is a sink.
	OutboundPorts []string
}

// IsSource reports whether this node has no inbound edges — it is fed from
// the session's external input stream instead of a peer node.
func (n PlanNode) IsSource() bool {
	return len(n.InboundPorts) == 0
}

// IsSink reports whether this node has no outbound edges — its output is
// consumed as the session's external output stream.
func (n PlanNode) IsSink() bool {
	return len(n.OutboundPorts) == 0
}

// PlanEdge is one compiled connection: a bounded channel plus the
// originating/terminating (node, port) pair.
type PlanEdge struct {
	From, FromPort string
	To, ToPort     string
	Capacity       int
}

// Plan is the immutable, compiled representation of a validated manifest:
// topological node order, the edge set, and per-node port metadata. A Plan
// is safe for concurrent use by multiple sessions — it carries no runtime
// channels itself; Scheduler.Run instantiates fresh channels per session
// from the Plan's edge descriptions.
type Plan struct {
	ManifestHash string
	TopoOrder    []string
	Nodes        map[string]PlanNode
	Edges        []PlanEdge
}

// Compile validates m against registry and, if valid, produces a Plan:
// Kahn's-algorithm topological order, a bounded channel capacity per edge,
// and per-node port maps. It returns the *manifest.ValidationErrors from
// Validate unchanged if the manifest is invalid.
func Compile(m *manifest.Manifest, registry *node.Registry, opts CompileOptions) (*Plan, error) {
	if errs := manifest.Validate(m, registry); errs != nil {
		return nil, errs
	}

	capacity := opts.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}

	hash, err := m.Hash()
	if err != nil {
		return nil, fmt.Errorf("scheduler: compile: %w", err)
	}

	nodes := make(map[string]PlanNode, len(m.Nodes))
	for _, n := range m.Nodes {
		desc, _ := registry.Lookup(n.NodeType)
		nodes[n.ID] = PlanNode{ID: n.ID, Type: n.NodeType, Params: n.Params, Descriptor: desc}
	}

	edges := make([]PlanEdge, 0, len(m.Connections))
	adj := make(map[string][]string)
	indegree := make(map[string]int)
	for id := range nodes {
		indegree[id] = 0
	}

	for _, c := range m.Connections {
		edges = append(edges, PlanEdge{From: c.From, FromPort: c.FromPort, To: c.To, ToPort: c.ToPort, Capacity: capacity})
		adj[c.From] = append(adj[c.From], c.To)
		indegree[c.To]++

		fromNode := nodes[c.From]
		fromNode.OutboundPorts = appendUnique(fromNode.OutboundPorts, c.FromPort)
		nodes[c.From] = fromNode

		toNode := nodes[c.To]
		toNode.InboundPorts = appendUnique(toNode.InboundPorts, c.ToPort)
		nodes[c.To] = toNode
	}

	order, err := kahnTopoOrder(m, adj, indegree)
	if err != nil {
		// Validate already rejects cycles; this is an internal invariant
		// check, not a user-facing validation path.
		return nil, fmt.Errorf("scheduler: compile: %w", err)
	}

	return &Plan{ManifestHash: hash, TopoOrder: order, Nodes: nodes, Edges: edges}, nil
}

func appendUnique(ports []string, port string) []string {
	for _, p := range ports {
		if p == port {
			return ports
		}
	}
	return append(ports, port)
}

// kahnTopoOrder computes the topological order via Kahn's algorithm,
// processing nodes in manifest declaration order at each step so Compile
// is deterministic for a given manifest.
func kahnTopoOrder(m *manifest.Manifest, adj map[string][]string, indegree map[string]int) ([]string, error) {
	remaining := make(map[string]int, len(indegree))
	for k, v := range indegree {
		remaining[k] = v
	}

	var ready []string
	for _, n := range m.Nodes {
		if remaining[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	order := make([]string, 0, len(m.Nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, next := range adj[n] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(m.Nodes) {
		return nil, fmt.Errorf("cycle detected during topological sort")
	}
	return order, nil
}
