// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package defi

import (
	"github.com/bigbangcore/bigbang/core/types"
	"github.com/bigbangcore/bigbang/storage/blockdb"
	"github.com/pkg/errors"
)

// RelationNode is one member of the invite relation forest.
type RelationNode struct {
	Dest    types.Destination
	Parent  types.Destination
	TxID    types.Hash
	parent  *RelationNode
	subline []*RelationNode

	// Amount and Power are scratch fields of the promotion walk.
	Amount int64
	Power  int64
}

// RelationGraph is the invite relation forest of one fork. Nodes live in
// a flat arena keyed by destination; roots are destinations that were
// never invited themselves.
type RelationGraph struct {
	mapDestNode map[types.Destination]*RelationNode
	roots       []types.Destination
}

// NewRelationGraph returns an empty graph.
func NewRelationGraph() *RelationGraph {
	return &RelationGraph{mapDestNode: make(map[types.Destination]*RelationNode)}
}

// Size returns the number of nodes, implicit roots included.
func (g *RelationGraph) Size() int {
	return len(g.mapDestNode)
}

// Roots returns the root destinations in insertion order.
func (g *RelationGraph) Roots() []types.Destination {
	return g.roots
}

// Construct builds the forest from the persisted invite records.
func (g *RelationGraph) Construct(mapAddress map[types.Destination]*blockdb.AddrInfo) error {
	dests := make([]types.Destination, 0, len(mapAddress))
	for dest := range mapAddress {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	for _, dest := range dests {
		info := mapAddress[dest]
		if err := g.updateAddress(dest, info.DestParent, info.TxidInvite); err != nil {
			log.Infof("Construct: update address fail: %v", err)
			return err
		}
	}
	if err := g.updateParent(); err != nil {
		log.Infof("Construct: update parent fail: %v", err)
		return err
	}
	return nil
}

func (g *RelationGraph) updateAddress(dest, parent types.Destination, txid types.Hash) error {
	if dest.IsNull() || parent.IsNull() || txid.IsZero() {
		return errors.New("relation record incomplete")
	}
	if _, ok := g.mapDestNode[dest]; ok {
		return errors.Errorf("duplicate relation address %s", dest)
	}
	g.mapDestNode[dest] = &RelationNode{Dest: dest, Parent: parent, TxID: txid}
	return nil
}

// updateParent links every node to its parent, creating implicit root
// nodes for parents that were never invited themselves.
func (g *RelationGraph) updateParent() error {
	dests := make([]types.Destination, 0, len(g.mapDestNode))
	for dest := range g.mapDestNode {
		dests = append(dests, dest)
	}
	types.SortDestinations(dests)
	for _, dest := range dests {
		node := g.mapDestNode[dest]
		if node.Parent.IsNull() {
			continue
		}
		parent, ok := g.mapDestNode[node.Parent]
		if !ok {
			parent = &RelationNode{Dest: node.Parent}
			g.mapDestNode[node.Parent] = parent
			g.roots = append(g.roots, node.Parent)
		}
		node.parent = parent
		parent.subline = append(parent.subline, node)
	}
	return nil
}

// HasRoot reports whether dest is a root of the forest.
func (g *RelationGraph) HasRoot(dest types.Destination) bool {
	for _, root := range g.roots {
		if root == dest {
			return true
		}
	}
	return false
}

// PostorderTraversal walks every tree of the forest bottom up. The
// walker sees each node after all of its sublines; returning false
// aborts the walk.
func (g *RelationGraph) PostorderTraversal(walker func(node *RelationNode) bool) bool {
	for _, root := range g.roots {
		node := g.mapDestNode[root]
		if node == nil {
			log.Errorf("PostorderTraversal: no root address, dest: %s", root)
			return false
		}
		var visit func(n *RelationNode) bool
		visit = func(n *RelationNode) bool {
			for _, child := range n.subline {
				if !visit(child) {
					return false
				}
			}
			return walker(n)
		}
		if !visit(node) {
			return false
		}
	}
	return true
}
