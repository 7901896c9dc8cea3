package dataType

import (
	"errors"
	"strconv"
)

var ErrEmptyNodeID = errors.New("empty node id")

// Identity is the node's place in the cluster, fixed by the first init.
type Identity struct {
	NodeID  string
	Ordinal int64
	NodeIDs []string
}

func NewIdentity(nodeID string, nodeIDs []string) (Identity, error) {
	if nodeID == "" {
		return Identity{}, ErrEmptyNodeID
	}
	ids := make([]string, len(nodeIDs))
	copy(ids, nodeIDs)
	id := Identity{NodeID: nodeID, NodeIDs: ids}
	id.Ordinal = ParseOrdinal(nodeID, id.Index())
	return id, nil
}

// Index is the node's position in NodeIDs, or -1 when it is not listed.
func (id Identity) Index() int {
	for i, n := range id.NodeIDs {
		if n == id.NodeID {
			return i
		}
	}
	return -1
}

// ParseOrdinal reads the trailing decimal digits of a node id ("n3" -> 3).
// Ids without trailing digits fall back to fallback, clamped at zero.
func ParseOrdinal(nodeID string, fallback int) int64 {
	end := len(nodeID)
	start := end
	for start > 0 && nodeID[start-1] >= '0' && nodeID[start-1] <= '9' {
		start--
	}
	if start < end {
		if v, err := strconv.ParseInt(nodeID[start:end], 10, 64); err == nil {
			return v
		}
	}
	if fallback < 0 {
		return 0
	}
	return int64(fallback)
}
