package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"gossip_node/internal/config"
	"gossip_node/internal/dataType"

	"go.uber.org/zap"
)

// captureWriter records every line a node writes.
type captureWriter struct {
	mu    sync.Mutex
	lines []dataType.Message
}

func (w *captureWriter) Write(p []byte) (int, error) {
	msg, err := dataType.ParseMessage(bytes.TrimSpace(p))
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.lines = append(w.lines, msg)
	w.mu.Unlock()
	return len(p), nil
}

func (w *captureWriter) messages() []dataType.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]dataType.Message(nil), w.lines...)
}

// matching returns the captured messages of type typ sent to dest ("" for any).
func (w *captureWriter) matching(typ, dest string) []dataType.Message {
	var out []dataType.Message
	for _, m := range w.messages() {
		if m.Type() == typ && (dest == "" || m.Dest == dest) {
			out = append(out, m)
		}
	}
	return out
}

func testConfig() *config.MainConfig {
	cfg := config.DefaultConfig()
	cfg.RPCTimeout = time.Hour
	cfg.RetryFlushInterval = 0
	cfg.ShardCount = 4
	return cfg
}

func newTestNode(t *testing.T, cfg *config.MainConfig) (*Node, *captureWriter) {
	t.Helper()
	out := &captureWriter{}
	return NewNode(cfg, out, zap.NewNop(), nil), out
}

func mustParse(t *testing.T, line string) dataType.Message {
	t.Helper()
	msg, err := dataType.ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return msg
}

func request(t *testing.T, src, dest, body string) dataType.Message {
	t.Helper()
	return mustParse(t, fmt.Sprintf(`{"src":%q,"dest":%q,"body":%s}`, src, dest, body))
}

func bodyMap(t *testing.T, msg dataType.Message) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func msgID(t *testing.T, msg dataType.Message) int64 {
	t.Helper()
	head, err := msg.Head()
	if err != nil || head.MsgID == nil {
		t.Fatalf("message %s has no msg_id", msg)
	}
	return *head.MsgID
}

func gossipValue(t *testing.T, msg dataType.Message) int64 {
	t.Helper()
	var body dataType.ValueBody
	if err := msg.DecodeBody(&body); err != nil || body.Message == nil {
		t.Fatalf("message %s carries no value", msg)
	}
	return *body.Message
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// simNetwork connects in-memory nodes. Node-to-node traffic may be dropped
// or duplicated; traffic to clients is always delivered.
type simNetwork struct {
	mu       sync.Mutex
	rng      *rand.Rand
	dropRate float64
	dupRate  float64

	nodes    map[string]*Node
	managers map[string]*GossipManager
	order    []string

	clientMu sync.Mutex
	toClient []dataType.Message
}

type simLink struct {
	net *simNetwork
}

func (l simLink) Write(p []byte) (int, error) {
	msg, err := dataType.ParseMessage(bytes.TrimSpace(p))
	if err != nil {
		return 0, err
	}
	l.net.route(msg)
	return len(p), nil
}

func (s *simNetwork) route(msg dataType.Message) {
	target, ok := s.nodes[msg.Dest]
	if !ok {
		s.clientMu.Lock()
		s.toClient = append(s.toClient, msg)
		s.clientMu.Unlock()
		return
	}

	copies := 1
	if _, fromNode := s.nodes[msg.Src]; fromNode {
		s.mu.Lock()
		if s.rng.Float64() < s.dropRate {
			copies = 0
		} else if s.rng.Float64() < s.dupRate {
			copies = 2
		}
		s.mu.Unlock()
	}
	for i := 0; i < copies; i++ {
		go target.HandleMessage(msg)
	}
}

// clientReply finds the reply sent to a client for request id.
func (s *simNetwork) clientReply(client string, inReplyTo int64) (dataType.Message, bool) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for _, m := range s.toClient {
		head, err := m.Head()
		if err == nil && m.Dest == client && head.InReplyTo != nil && *head.InReplyTo == inReplyTo {
			return m, true
		}
	}
	return dataType.Message{}, false
}

func newSimNetwork(t *testing.T, size int, cfg *config.MainConfig, dropRate, dupRate float64) *simNetwork {
	t.Helper()
	s := &simNetwork{
		rng:      rand.New(rand.NewSource(42)),
		dropRate: dropRate,
		dupRate:  dupRate,
		nodes:    make(map[string]*Node),
		managers: make(map[string]*GossipManager),
	}
	for i := 0; i < size; i++ {
		s.order = append(s.order, fmt.Sprintf("n%d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for _, id := range s.order {
		n := NewNode(cfg, simLink{net: s}, zap.NewNop(), nil)
		gm := NewGossipManager(n)
		s.nodes[id] = n
		s.managers[id] = gm
	}
	for _, id := range s.order {
		if err := s.nodes[id].Init(id, s.order); err != nil {
			t.Fatalf("init %s: %v", id, err)
		}
		s.managers[id].Start(ctx)
	}
	return s
}

func containsValue(values []int64, v int64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func lineCount(s string) int {
	return len(strings.Split(strings.TrimSpace(s), "\n"))
}
