package document

import (
	"github.com/agentflare-ai/agentmlcore"
)

// Document is the compiled form of one SCXML source: an arena of Nodes
// plus the indexes needed to resolve ids and drive the interpreter.
// After Compile returns, the only changes made to a Document are each
// Node's first-entry flag (MarkFirstEntry, set when a late-binding session
// first enters it) and the Datamodel field, which engine.Runtime.New may
// fill in.
type Document struct {
	Nodes []*Node // arena; index == NodeID
	Root  NodeID

	// ByID maps every node's StateID to its NodeID for O(1) target
	// resolution.
	ByID map[string]NodeID

	Name    string // optional <scxml name="...">
	Binding string // "early" or "late", from <scxml binding="...">
	ExMode  string // "strict" or "lax", from <scxml exmode="...">
	Datamodel string // the datamodel type name, from <scxml datamodel="...">

	InitialTarget []string // root <scxml initial="...">
	InitialExe    []ExecOp

	InitData map[string]any // host-supplied overrides for matching data ids
}

// NewDocument creates an empty Document with its root scxml node.
func NewDocument() *Document {
	d := &Document{ByID: map[string]NodeID{}}
	root := &Node{ID: 0, Kind: KindSCXML, Parent: NoNode, N: 0}
	d.Nodes = append(d.Nodes, root)
	d.Root = 0
	return d
}

// AddNode appends a new node to the arena and returns its id.
func (d *Document) AddNode(n *Node) NodeID {
	id := NodeID(len(d.Nodes))
	n.ID = id
	d.Nodes = append(d.Nodes, n)
	if n.StateID != "" {
		d.ByID[n.StateID] = id
	}
	return id
}

// Node returns the node for id, or nil if out of range.
func (d *Document) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(d.Nodes) {
		return nil
	}
	return d.Nodes[id]
}

// State resolves a state id to its node, mirroring the original
// SCXMLDocument.getState; returns nil when the id is unknown.
func (d *Document) State(id string) *Node {
	nid, ok := d.ByID[id]
	if !ok {
		return nil
	}
	return d.Node(nid)
}

// RootNode returns the compiled root (<scxml>) node.
func (d *Document) RootNode() *Node {
	return d.Node(d.Root)
}

// TargetStates resolves a list of state ids to nodes, matching
// Interpreter.getTargetStates. Returns an error naming the first unknown id.
func (d *Document) TargetStates(ids []string) ([]*Node, error) {
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		n := d.State(id)
		if n == nil {
			return nil, &scxml.ExecutionError{Message: "the target state '" + id + "' does not exist"}
		}
		out = append(out, n)
	}
	return out, nil
}

// ProperAncestors returns state's proper ancestors, nearest first, up to
// and including the document root.
func (d *Document) ProperAncestors(n *Node) []*Node {
	return d.properAncestorsUpTo(n, NoNode)
}

// ProperAncestorsUpTo returns state's proper ancestors, nearest first,
// stopping before (not including) the node identified by stop.
func (d *Document) ProperAncestorsUpTo(n *Node, stop *Node) []*Node {
	stopID := NoNode
	if stop != nil {
		stopID = stop.ID
	}
	return d.properAncestorsUpTo(n, stopID)
}

func (d *Document) properAncestorsUpTo(n *Node, stop NodeID) []*Node {
	var out []*Node
	cur := n
	for cur != nil && cur.Parent != NoNode && cur.Parent != stop {
		cur = d.Node(cur.Parent)
		if cur == nil {
			break
		}
		out = append(out, cur)
	}
	return out
}

// IsDescendant reports whether a is a (possibly indirect) descendant of b.
// Every node is considered a descendant of nil/NoNode's ancestor chain
// terminator only if b is an ancestor found by walking Parent links.
func (d *Document) IsDescendant(a, b *Node) bool {
	if a == nil || b == nil {
		return false
	}
	cur := a
	for cur.Parent != NoNode {
		cur = d.Node(cur.Parent)
		if cur == nil {
			return false
		}
		if cur.ID == b.ID {
			return true
		}
	}
	return false
}

// DocumentOrder returns a sort key placing n in document order across the
// whole tree: its own N, then each ancestor's N, root-to-node.
func (d *Document) DocumentOrder(n *Node) []int {
	key := []int{n.N}
	cur := n
	for cur.Parent != NoNode {
		cur = d.Node(cur.Parent)
		if cur == nil {
			break
		}
		key = append(key, cur.N)
	}
	// reverse so root-most ancestor sorts first
	for i, j := 0, len(key)-1; i < j; i, j = i+1, j-1 {
		key[i], key[j] = key[j], key[i]
	}
	return key
}
