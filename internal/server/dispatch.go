package server

import (
	"errors"
	"fmt"
	"runtime/debug"

	"gossip_node/internal/dataType"

	"go.uber.org/zap"
)

// HandlerFunc serves one request type. It is expected to send its own reply;
// a returned error is turned into an error reply instead.
type HandlerFunc func(n *Node, msg dataType.Message) error

// Handle registers fn for requests of type typ, replacing any earlier one.
func (n *Node) Handle(typ string, fn HandlerFunc) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[typ] = fn
}

func (n *Node) handler(typ string) (HandlerFunc, bool) {
	n.handlersMu.RLock()
	defer n.handlersMu.RUnlock()
	fn, ok := n.handlers[typ]
	return fn, ok
}

// HandleMessage routes one inbound message: init, a reply to an outstanding
// RPC, or a request for a registered handler. Every failure on the request
// path is answered with an error reply and never escapes.
func (n *Node) HandleMessage(msg dataType.Message) {
	if ce := n.logger.Check(zap.DebugLevel, "received"); ce != nil {
		ce.Write(zap.Stringer("msg", msg))
	}

	head, err := msg.Head()
	if err != nil {
		n.replyFault(msg, dataType.MalformedRequest("malformed body: %v", err))
		return
	}

	switch {
	case head.Type == dataType.TypeInit:
		n.handleInit(msg)
	case head.InReplyTo != nil:
		n.resolveReply(*head.InReplyTo, msg, head.Type)
	case head.Type == "":
		n.replyFault(msg, dataType.MalformedRequest("message has no type"))
	default:
		n.dispatch(msg, head.Type)
	}
}

func (n *Node) handleInit(msg dataType.Message) {
	var body dataType.InitBody
	if err := msg.DecodeBody(&body); err != nil {
		n.replyFault(msg, dataType.MalformedRequest("%v", err))
		return
	}
	if err := n.Init(body.NodeID, body.NodeIDs); err != nil {
		if errors.Is(err, ErrAlreadyInitialized) {
			n.replyFault(msg, dataType.NewProtocolError(dataType.CodePreconditionFailed, "%v", err))
			return
		}
		n.replyFault(msg, dataType.MalformedRequest("%v", err))
		return
	}
	if err := n.Reply(msg, dataType.TypeOnly{Type: dataType.TypeInitOk}); err != nil {
		n.logger.Error("failed to acknowledge init", zap.Error(err))
	}
}

func (n *Node) dispatch(msg dataType.Message, typ string) {
	if _, ok := n.Identity(); !ok {
		n.replyFault(msg, dataType.TemporarilyUnavailable("%v", ErrNotInitialized))
		return
	}
	fn, ok := n.handler(typ)
	if !ok {
		n.metrics.MessagesHandled.WithLabelValues("unhandled").Inc()
		n.replyFault(msg, dataType.Crash("unhandled message type: %s", typ))
		return
	}
	n.metrics.MessagesHandled.WithLabelValues(typ).Inc()

	if err := n.invoke(fn, msg); err != nil {
		var perr *dataType.ProtocolError
		if !errors.As(err, &perr) {
			perr = dataType.Crash("error processing %s: %v", msg, err)
		}
		n.replyFault(msg, perr)
	}
}

// invoke runs fn and turns a panic into an error.
func (n *Node) invoke(fn HandlerFunc, msg dataType.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("handler panic",
				zap.Any("panic", r),
				zap.Stringer("msg", msg),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(n, msg)
}

func (n *Node) replyFault(msg dataType.Message, perr *dataType.ProtocolError) {
	n.logger.Warn("request failed",
		zap.Int("code", perr.Code),
		zap.String("text", perr.Text),
		zap.String("src", msg.Src))
	if err := n.ReplyError(msg, perr); err != nil {
		n.logger.Error("failed to send error reply", zap.Error(err))
	}
}
