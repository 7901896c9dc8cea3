package server

import (
	"math/bits"

	"gossip_node/internal/dataType"
)

// FanoutTopology returns the neighbors of the node at position index among
// nodeIDs: the nodes 1, 2, 4, ... positions ahead, wrapping around. That is
// ceil(log2 n) distinct peers for a cluster of n, and the union over all
// nodes floods a value to everyone in that many lossless rounds.
func FanoutTopology(nodeIDs []string, index int) []string {
	n := len(nodeIDs)
	if n < 2 || index < 0 {
		return []string{}
	}
	neighbors := make([]string, 0, bits.Len(uint(n-1)))
	for step := 1; step < n; step *= 2 {
		neighbors = append(neighbors, nodeIDs[(index+step)%n])
	}
	return neighbors
}

// TopologyFor derives the fanout list for an identity. A node missing from
// its own node list is placed by its ordinal instead and never lists itself.
func TopologyFor(id dataType.Identity) []string {
	n := len(id.NodeIDs)
	if n == 0 {
		return []string{}
	}
	index := id.Index()
	if index < 0 {
		index = int(id.Ordinal % int64(n))
	}
	neighbors := FanoutTopology(id.NodeIDs, index)
	out := neighbors[:0]
	for _, peer := range neighbors {
		if peer != id.NodeID {
			out = append(out, peer)
		}
	}
	return out
}
