package server

import (
	"context"
	"sync/atomic"
	"time"

	"gossip_node/internal/config"
	"gossip_node/internal/dataType"
	"gossip_node/internal/telemetry"

	"go.uber.org/zap"
)

// GossipManager floods broadcast values through the cluster. Every value is
// pushed once to the fanout topology and to preferred peers; deliveries that
// time out or fail with a retryable code are queued per destination and
// resent after the next successful delivery to it or on the flush tick.
type GossipManager struct {
	node    *Node
	cfg     *config.MainConfig
	logger  *zap.Logger
	metrics *telemetry.Metrics

	seen      *dataType.Set[int64]
	preferred *dataType.Set[string]
	pending   *dataType.RetryQueue
	lastHeard *dataType.ShardedMap[string, time.Time]
	topology  atomic.Pointer[[]string]

	RetryFlushInterval time.Duration
}

// NewGossipManager attaches the broadcast workload to node: it registers the
// request handlers and computes the topology once init happens.
func NewGossipManager(node *Node) *GossipManager {
	cfg := node.Config()
	gm := &GossipManager{
		node:               node,
		cfg:                cfg,
		logger:             node.Logger().Named("gossip"),
		metrics:            node.Metrics(),
		seen:               dataType.NewValueSet(cfg.ShardCount),
		preferred:          dataType.NewPeerSet(cfg.ShardCount),
		pending:            dataType.NewRetryQueue(cfg.ShardCount),
		lastHeard:          dataType.NewShardedMap[string, time.Time](cfg.ShardCount, dataType.HashString),
		RetryFlushInterval: cfg.RetryFlushInterval,
	}

	node.OnInit(func(id dataType.Identity) {
		neighbors := TopologyFor(id)
		gm.topology.Store(&neighbors)
		gm.logger.Info("topology built", zap.Strings("neighbors", neighbors))
	})

	node.Handle(dataType.TypeBroadcast, gm.handleBroadcast)
	node.Handle(dataType.TypeGossip, gm.handleGossip)
	node.Handle(dataType.TypeRead, gm.handleRead)
	node.Handle(dataType.TypeTopology, gm.handleTopology)
	node.Handle(dataType.TypeAreYouThere, gm.handleAreYouThere)
	node.Handle(dataType.TypeAreYouThereAlt, gm.handleAreYouThere)
	return gm
}

// Start runs the retry flush loop until ctx is done.
func (gm *GossipManager) Start(ctx context.Context) {
	if gm.RetryFlushInterval <= 0 {
		gm.logger.Info("retry flush loop disabled")
		return
	}
	go gm.startRetryFlush(ctx)
}

func (gm *GossipManager) startRetryFlush(ctx context.Context) {
	ticker := time.NewTicker(gm.RetryFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.FlushRetries()
		case <-ctx.Done():
			return
		}
	}
}

// FlushRetries resends everything queued for every destination.
func (gm *GossipManager) FlushRetries() {
	for _, dest := range gm.pending.Destinations() {
		gm.drain(dest)
	}
}

// Topology returns the fanout list, empty before init.
func (gm *GossipManager) Topology() []string {
	if t := gm.topology.Load(); t != nil {
		return append([]string(nil), (*t)...)
	}
	return []string{}
}

// Values returns every value this node has accepted, unordered.
func (gm *GossipManager) Values() []int64 {
	return gm.seen.Values()
}

func (gm *GossipManager) PreferredPeers() []string {
	return gm.preferred.Values()
}

// PendingRetries is the number of values queued for dest.
func (gm *GossipManager) PendingRetries(dest string) int {
	return gm.pending.Pending(dest)
}

// LastHeard reports when peer last gossiped to this node.
func (gm *GossipManager) LastHeard(peer string) (time.Time, bool) {
	return gm.lastHeard.Load(peer)
}

// Propagate accepts v and pushes it to every destination. Only the first
// caller for a given value sends anything.
func (gm *GossipManager) Propagate(v int64) {
	if !gm.seen.Add(v) {
		return
	}
	gm.metrics.ValuesSeen.Inc()
	for _, dest := range gm.destinations() {
		gm.sendGossip(dest, v)
	}
}

// destinations is the union of preferred peers and the topology, without
// this node itself.
func (gm *GossipManager) destinations() []string {
	self := gm.node.NodeID()
	seen := make(map[string]struct{})
	var dests []string
	add := func(peer string) {
		if peer == self {
			return
		}
		if _, ok := seen[peer]; ok {
			return
		}
		seen[peer] = struct{}{}
		dests = append(dests, peer)
	}
	for _, peer := range gm.preferred.Values() {
		add(peer)
	}
	if t := gm.topology.Load(); t != nil {
		for _, peer := range *t {
			add(peer)
		}
	}
	return dests
}

func (gm *GossipManager) sendGossip(dest string, v int64) {
	value := v
	c := gm.node.RPC(dest, dataType.ValueBody{Type: dataType.TypeGossip, Message: &value})

	// The reply and the timeout check race; only one of them may queue v.
	var remediated atomic.Bool
	requeue := func(reason string, fields ...zap.Field) {
		if !remediated.CompareAndSwap(false, true) {
			return
		}
		gm.pending.Enqueue(dest, v)
		gm.metrics.RetriesEnqueued.Inc()
		gm.logger.Debug("queued for retry",
			append(fields, zap.String("dest", dest), zap.Int64("value", v), zap.String("reason", reason))...)
	}

	c.OnComplete(func(_ dataType.Message, err error) {
		if err == nil {
			go gm.drain(dest)
			return
		}
		code, ok := dataType.ErrorCode(err)
		if !ok || gm.cfg.IsRetryable(code) {
			requeue("error", zap.Error(err))
			return
		}
		gm.logger.Warn("gossip rejected, dropping",
			zap.String("dest", dest), zap.Int64("value", v), zap.Int("code", code), zap.Error(err))
	})

	ScheduleTimeoutCheck(c, gm.cfg.RPCTimeout, func() {
		gm.metrics.RPCTimeouts.Inc()
		requeue("timeout")
	})
}

// drain detaches dest's queue and sends each value again.
func (gm *GossipManager) drain(dest string) {
	values := gm.pending.Drain(dest)
	if len(values) == 0 {
		return
	}
	gm.logger.Debug("resending queued values", zap.String("dest", dest), zap.Int("count", len(values)))
	for _, v := range values {
		gm.metrics.RetriesResent.Inc()
		gm.sendGossip(dest, v)
	}
}

func decodeValue(msg dataType.Message) (int64, error) {
	var body dataType.ValueBody
	if err := msg.DecodeBody(&body); err != nil {
		return 0, dataType.MalformedRequest("%v", err)
	}
	if body.Message == nil {
		return 0, dataType.MalformedRequest("%s without an integer message", body.Type)
	}
	return *body.Message, nil
}

func (gm *GossipManager) handleBroadcast(n *Node, msg dataType.Message) error {
	v, err := decodeValue(msg)
	if err != nil {
		return err
	}
	if err := n.Reply(msg, dataType.TypeOnly{Type: dataType.TypeBroadcastOk}); err != nil {
		return err
	}
	gm.Propagate(v)
	return nil
}

func (gm *GossipManager) handleGossip(n *Node, msg dataType.Message) error {
	v, err := decodeValue(msg)
	if err != nil {
		return err
	}
	if err := n.Reply(msg, dataType.TypeOnly{Type: dataType.TypeGossipOk}); err != nil {
		return err
	}
	gm.lastHeard.Store(msg.Src, time.Now())
	gm.Propagate(v)
	return nil
}

func (gm *GossipManager) handleRead(n *Node, msg dataType.Message) error {
	return n.Reply(msg, dataType.ReadOkBody{Type: dataType.TypeReadOk, Messages: gm.seen.Values()})
}

// handleTopology acknowledges the harness topology; the derived one is kept.
func (gm *GossipManager) handleTopology(n *Node, msg dataType.Message) error {
	var body dataType.TopologyBody
	if err := msg.DecodeBody(&body); err == nil {
		gm.logger.Debug("ignoring harness topology", zap.Int("nodes", len(body.Topology)))
	}
	return n.Reply(msg, dataType.TypeOnly{Type: dataType.TypeTopologyOk})
}

func (gm *GossipManager) handleAreYouThere(n *Node, msg dataType.Message) error {
	if gm.preferred.Add(msg.Src) {
		gm.logger.Info("preferred peer added", zap.String("peer", msg.Src))
	}
	return n.Reply(msg, dataType.TypeOnly{Type: dataType.OkType(msg.Type())})
}
