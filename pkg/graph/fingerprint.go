package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/flowfile/flowfile/pkg/flowmodel"
)

// Fingerprint returns node id's fingerprint, combining its own kind and
// settings with every upstream node's fingerprint so any change anywhere
// upstream invalidates every downstream fingerprint in turn.
func (g *FlowGraph) Fingerprint(id int64) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fingerprintLocked(id, map[int64]string{})
}

func (g *FlowGraph) fingerprintLocked(id int64, memo map[int64]string) (string, error) {
	if fp, ok := memo[id]; ok {
		return fp, nil
	}
	rn, ok := g.nodes[id]
	if !ok {
		return "", &flowmodel.NotFoundError{Kind: "node", ID: id}
	}

	inputs := append([]flowmodel.Connection(nil), rn.node.Inputs...)
	sort.Slice(inputs, func(i, j int) bool {
		if inputs[i].Label != inputs[j].Label {
			return inputs[i].Label < inputs[j].Label
		}
		return inputs[i].SourceID < inputs[j].SourceID
	})

	h := sha256.New()
	fmt.Fprintf(h, "kind:%s|", rn.node.Kind)
	if rn.node.Settings != nil {
		fmt.Fprintf(h, "settings:%s|", rn.node.Settings.Fingerprint())
	}
	for _, c := range inputs {
		upFP, err := g.fingerprintLocked(c.SourceID, memo)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "in:%s:%s|", c.Label, upFP)
	}
	fp := hex.EncodeToString(h.Sum(nil))
	memo[id] = fp
	return fp, nil
}

// RecomputeFingerprints refreshes every node's cached fingerprint in one
// pass, used after a bulk load and before scheduling a run.
func (g *FlowGraph) RecomputeFingerprints() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	memo := map[int64]string{}
	for id := range g.nodes {
		fp, err := g.fingerprintLocked(id, memo)
		if err != nil {
			return err
		}
		g.nodes[id].fingerprint = fp
	}
	return nil
}
