package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentflare-ai/agentmlcore/document"
)

// buildChain builds root > c > x > y, mirroring a history's container (c),
// an intermediate compound state (x), and the atomic state a deep history
// would have recorded (y).
func buildChain(t *testing.T) (doc *document.Document, c, x, y, h *document.Node) {
	t.Helper()
	doc = document.NewDocument()
	root := doc.RootNode()

	c = &document.Node{Kind: document.KindState, StateID: "c", N: 1, Parent: root.ID}
	cID := doc.AddNode(c)
	c = doc.Node(cID)
	root.States = append(root.States, cID)

	h = &document.Node{Kind: document.KindHistory, History: document.HistoryDeep, StateID: "h", N: 2, Parent: cID}
	hID := doc.AddNode(h)
	h = doc.Node(hID)
	c.Histories = append(c.Histories, hID)

	x = &document.Node{Kind: document.KindState, StateID: "x", N: 3, Parent: cID}
	xID := doc.AddNode(x)
	x = doc.Node(xID)
	c.States = append(c.States, xID)

	y = &document.Node{Kind: document.KindState, StateID: "y", N: 4, Parent: xID}
	yID := doc.AddNode(y)
	y = doc.Node(yID)
	x.States = append(x.States, yID)

	return doc, c, x, y, h
}

// TestProperAncestorsUpToStopsAtRealAncestor guards the exact defect from
// the history-entry regression: passing a node that never appears as
// anyone's Parent (like a history pseudostate, whose own id is never a
// child's Parent) must not silently fall back to walking to the document
// root.
func TestProperAncestorsUpToStopsAtRealAncestor(t *testing.T) {
	doc, c, x, y, _ := buildChain(t)

	got := doc.ProperAncestorsUpTo(y, c)
	assert.ElementsMatch(t, []*document.Node{x}, got, "ancestor walk from y stopping at c must yield exactly the intermediate state x")
}

// TestProperAncestorsUpToWithNonAncestorStopWalksToRoot demonstrates the
// bug class: stopping at a node that is not actually an ancestor in the
// Parent chain degrades to walking all the way to the document root
// instead of early-exiting.
func TestProperAncestorsUpToWithNonAncestorStopWalksToRoot(t *testing.T) {
	doc, c, x, y, h := buildChain(t)

	got := doc.ProperAncestorsUpTo(y, h)
	assert.ElementsMatch(t, []*document.Node{x, c, doc.RootNode()}, got, "stop=h (never any node's Parent) must walk past both x and c all the way to the document root")
}

func TestProperAncestorsReturnsFullChainToRoot(t *testing.T) {
	doc, c, x, y, _ := buildChain(t)

	got := doc.ProperAncestors(y)
	assert.ElementsMatch(t, []*document.Node{x, c, doc.RootNode()}, got)
}
