package graph

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/flowmodel/document"
)

// ToDocument renders the graph's current live state into the portable
// document format.
func (g *FlowGraph) ToDocument() *document.Document {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := &document.Document{
		FlowID:   g.id,
		Name:     g.name,
		Settings: g.settings,
	}
	for id := 1; int64(id) <= g.nextNodeID; id++ {
		rn, ok := g.nodes[int64(id)]
		if !ok {
			continue
		}
		settingsMap, err := document.FromSettings(rn.node.Settings)
		if err != nil {
			settingsMap = map[string]any{}
		}
		nd := document.NodeDoc{
			ID:          rn.node.ID,
			Kind:        rn.node.Kind,
			Settings:    settingsMap,
			CacheFlag:   rn.node.CacheFlag,
			Description: rn.node.Description,
		}
		if rn.node.Position != (flowmodel.Position{}) {
			pos := rn.node.Position
			nd.Position = &pos
		}
		for _, c := range rn.node.Inputs {
			nd.Inputs = append(nd.Inputs, document.ConnectionDoc{SourceID: c.SourceID, Label: c.Label})
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, document.EdgeDoc{Source: e.SourceID, Target: e.TargetID, Label: e.Label})
	}
	return doc
}

// LoadDocument replaces the graph's live state with the document's
// contents, resolving each node's typed settings against the registry.
// It is used both for initial loads and for history-driven restores;
// it records no history entry itself, so a restore adds no undo entry.
func (g *FlowGraph) LoadDocument(ctx context.Context, doc *document.Document) error {
	if err := g.checkNotBusy("load_document"); err != nil {
		return err
	}

	nodes := make(map[int64]*runtimeNode, len(doc.Nodes))
	var maxID int64
	for _, nd := range doc.Nodes {
		settings, err := document.ToSettings(g.registry, nd.Kind, nd.Settings)
		if err != nil {
			return fmt.Errorf("graph: load node %d: %w", nd.ID, err)
		}
		node := &flowmodel.Node{
			ID:          nd.ID,
			Kind:        nd.Kind,
			Settings:    settings,
			CacheFlag:   nd.CacheFlag,
			Description: nd.Description,
		}
		if nd.Position != nil {
			node.Position = *nd.Position
		}
		for _, c := range nd.Inputs {
			node.Inputs = append(node.Inputs, flowmodel.Connection{SourceID: c.SourceID, Label: c.Label})
		}
		nodes[nd.ID] = &runtimeNode{node: node, state: flowmodel.StateConfigured}
		if nd.ID > maxID {
			maxID = nd.ID
		}
	}

	var edges []flowmodel.Edge
	for _, ed := range doc.Edges {
		edges = append(edges, flowmodel.Edge{SourceID: ed.Source, TargetID: ed.Target, Label: ed.Label})
	}

	g.mu.Lock()
	g.name = doc.Name
	g.settings = doc.Settings
	g.nodes = nodes
	g.edges = edges
	g.nextNodeID = maxID
	g.mu.Unlock()

	// The cache is keyed by content fingerprint, not node id, so it is
	// deliberately left untouched here: restoring an earlier document
	// (e.g. via undo) whose nodes still fingerprint identically should
	// still hit cache rather than recompute.

	order, err := g.TopologicalOrder()
	if err != nil {
		return fmt.Errorf("graph: loaded document is not acyclic: %w", err)
	}
	for _, id := range order {
		g.recomputeOneSchema(ctx, id)
	}
	return nil
}
