package handler

import (
	"sync"
	"time"

	"gossip_node/internal/dataType"
	"gossip_node/internal/server"

	"github.com/google/uuid"
)

const (
	IDModeSnowflake = "snowflake"
	IDModeUUID      = "uuid"
)

// Snowflake layout: 43 bits of unix milliseconds, 8 bits of node ordinal,
// 12 bits of per-millisecond sequence.
const (
	ordinalBits  = 8
	sequenceBits = 12
	ordinalMask  = 1<<ordinalBits - 1
	sequenceMask = 1<<sequenceBits - 1
)

type IDGenerator struct {
	mu     sync.Mutex
	lastMs int64
	seq    int64
	now    func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns an id unique across nodes with distinct ordinals (mod 256).
// When a millisecond's sequence is used up it waits for the next one; a
// clock step backwards keeps issuing from the last millisecond seen.
func (g *IDGenerator) Next(ordinal int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		g.seq++
		if g.seq > sequenceMask {
			for ms <= g.lastMs {
				time.Sleep(50 * time.Microsecond)
				ms = g.now().UnixMilli()
			}
			g.seq = 0
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms
	return ms<<(ordinalBits+sequenceBits) | (ordinal&ordinalMask)<<sequenceBits | g.seq
}

type generateOkBody struct {
	Type string `json:"type"`
	ID   any    `json:"id"`
}

// Generate returns the generate handler for the given id mode.
func Generate(mode string) server.HandlerFunc {
	if mode == IDModeUUID {
		return func(n *server.Node, msg dataType.Message) error {
			return n.Reply(msg, generateOkBody{Type: dataType.TypeGenerateOk, ID: uuid.NewString()})
		}
	}
	gen := NewIDGenerator()
	return func(n *server.Node, msg dataType.Message) error {
		id, _ := n.Identity()
		return n.Reply(msg, generateOkBody{Type: dataType.TypeGenerateOk, ID: gen.Next(id.Ordinal)})
	}
}
