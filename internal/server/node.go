package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"gossip_node/internal/config"
	"gossip_node/internal/dataType"
	"gossip_node/internal/telemetry"

	"go.uber.org/zap"
)

var (
	ErrAlreadyInitialized = errors.New("node already initialized")
	ErrNotInitialized     = errors.New("node not initialized")
	ErrUnterminatedLine   = errors.New("unterminated input line")
)

// InitHook runs once, after the identity is published and before init_ok is
// sent.
type InitHook func(id dataType.Identity)

// Node is one cluster member speaking the line protocol on a reader/writer
// pair.
type Node struct {
	cfg     *config.MainConfig
	logger  *zap.Logger
	metrics *telemetry.Metrics

	initMu    sync.Mutex
	identity  atomic.Pointer[dataType.Identity]
	initHooks []InitHook

	nextMsgID atomic.Int64
	pending   *dataType.ShardedMap[int64, *Completion]

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	outMu sync.Mutex
	out   io.Writer

	inflight sync.WaitGroup
}

func NewNode(cfg *config.MainConfig, out io.Writer, logger *zap.Logger, metrics *telemetry.Metrics) *Node {
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Node{
		cfg:      cfg,
		logger:   logger.Named("node"),
		metrics:  metrics,
		pending:  dataType.NewShardedMap[int64, *Completion](cfg.ShardCount, dataType.HashInt64),
		handlers: make(map[string]HandlerFunc),
		out:      out,
	}
}

func (n *Node) Config() *config.MainConfig { return n.cfg }

func (n *Node) Logger() *zap.Logger { return n.logger }

func (n *Node) Metrics() *telemetry.Metrics { return n.metrics }

// OnInit registers a hook. Hooks added after init never run.
func (n *Node) OnInit(hook InitHook) {
	n.initMu.Lock()
	defer n.initMu.Unlock()
	n.initHooks = append(n.initHooks, hook)
}

// Init sets the node identity. Repeating it with the same node id is a
// no-op; a different node id fails with ErrAlreadyInitialized.
func (n *Node) Init(nodeID string, nodeIDs []string) error {
	id, err := dataType.NewIdentity(nodeID, nodeIDs)
	if err != nil {
		return err
	}

	n.initMu.Lock()
	defer n.initMu.Unlock()
	if cur := n.identity.Load(); cur != nil {
		if cur.NodeID == nodeID {
			return nil
		}
		return fmt.Errorf("%w as %s, refusing %s", ErrAlreadyInitialized, cur.NodeID, nodeID)
	}
	n.identity.Store(&id)
	for _, hook := range n.initHooks {
		hook(id)
	}
	n.logger.Info("node initialized",
		zap.String("node_id", id.NodeID),
		zap.Int64("ordinal", id.Ordinal),
		zap.Strings("node_ids", id.NodeIDs))
	return nil
}

// Identity returns the node identity and whether init has happened.
func (n *Node) Identity() (dataType.Identity, bool) {
	id := n.identity.Load()
	if id == nil {
		return dataType.Identity{}, false
	}
	return *id, true
}

func (n *Node) NodeID() string {
	if id := n.identity.Load(); id != nil {
		return id.NodeID
	}
	return ""
}

func (n *Node) NextMsgID() int64 {
	return n.nextMsgID.Add(1)
}

// Send writes one message to dest, assigning a msg_id when the body has none.
func (n *Node) Send(dest string, body any) error {
	raw, err := dataType.MergeFields(body, nil)
	if err != nil {
		return err
	}
	if !dataType.HasField(raw, "msg_id") {
		raw, err = dataType.MergeFields(raw, map[string]any{"msg_id": n.NextMsgID()})
		if err != nil {
			return err
		}
	}
	return n.write(dataType.Message{Src: n.NodeID(), Dest: dest, Body: raw})
}

// RPC sends body to dest and returns immediately. The returned completion
// resolves with the matching reply, or with a *dataType.ProtocolError when
// the reply is an error.
func (n *Node) RPC(dest string, body any) *Completion {
	c := NewCompletion()
	id := n.NextMsgID()

	raw, err := dataType.MergeFields(body, map[string]any{"msg_id": id})
	if err != nil {
		c.Resolve(dataType.Message{}, dataType.Crash("encode rpc body: %v", err))
		return c
	}

	n.pending.Store(id, c)
	n.metrics.RPCsSent.Inc()
	if err := n.write(dataType.Message{Src: n.NodeID(), Dest: dest, Body: raw}); err != nil {
		n.pending.Delete(id)
		c.Resolve(dataType.Message{}, err)
	}
	return c
}

// Reply answers req with body, setting in_reply_to to the request's msg_id.
func (n *Node) Reply(req dataType.Message, body any) error {
	head, err := req.Head()
	if err != nil {
		return err
	}
	var fields map[string]any
	if head.MsgID != nil {
		fields = map[string]any{"in_reply_to": *head.MsgID}
	}
	raw, err := dataType.MergeFields(body, fields)
	if err != nil {
		return err
	}
	return n.Send(req.Src, raw)
}

// ReplyError answers req with an error body.
func (n *Node) ReplyError(req dataType.Message, perr *dataType.ProtocolError) error {
	return n.Reply(req, perr.Body())
}

func (n *Node) write(msg dataType.Message) error {
	line, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message to %s: %w", msg.Dest, err)
	}
	line = append(line, '\n')

	n.outMu.Lock()
	_, err = n.out.Write(line)
	n.outMu.Unlock()
	if err != nil {
		return fmt.Errorf("write message to %s: %w", msg.Dest, err)
	}
	if ce := n.logger.Check(zap.DebugLevel, "sent"); ce != nil {
		ce.Write(zap.Stringer("msg", msg))
	}
	return nil
}

func (n *Node) resolveReply(inReplyTo int64, msg dataType.Message, typ string) {
	c, ok := n.pending.LoadAndDelete(inReplyTo)
	if !ok {
		n.logger.Debug("reply for unknown or settled rpc",
			zap.Int64("in_reply_to", inReplyTo), zap.String("src", msg.Src))
		return
	}
	if typ == dataType.TypeError {
		perr := dataType.ErrorFromMessage(msg)
		n.metrics.ObserveRPCError(perr.Code)
		c.Resolve(msg, perr)
		return
	}
	c.Resolve(msg, nil)
}

type inputLine struct {
	data []byte
	err  error
}

// Run reads one message per line from in and handles each on its own
// goroutine. A clean EOF waits for in-flight handlers and returns nil. A read
// failure or a line that is not a complete message returns an error at once.
func (n *Node) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan inputLine)
	go func() {
		reader := bufio.NewReader(in)
		for {
			data, err := reader.ReadBytes('\n')
			select {
			case lines <- inputLine{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var line inputLine
		select {
		case line = <-lines:
		case <-ctx.Done():
			n.inflight.Wait()
			return ctx.Err()
		}

		if line.err != nil {
			if !errors.Is(line.err, io.EOF) {
				return fmt.Errorf("read input: %w", line.err)
			}
			if len(bytes.TrimSpace(line.data)) > 0 {
				return fmt.Errorf("%w: %q", ErrUnterminatedLine, line.data)
			}
			n.inflight.Wait()
			return nil
		}

		data := bytes.TrimSpace(line.data)
		if len(data) == 0 {
			continue
		}
		msg, err := dataType.ParseMessage(data)
		if err != nil {
			return fmt.Errorf("malformed input line %q: %w", data, err)
		}

		n.inflight.Add(1)
		go func() {
			defer n.inflight.Done()
			n.HandleMessage(msg)
		}()
	}
}
