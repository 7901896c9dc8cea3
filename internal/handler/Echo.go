package handler

import (
	"encoding/json"

	"gossip_node/internal/dataType"
	"gossip_node/internal/server"
)

type echoBody struct {
	Type string          `json:"type"`
	Echo json.RawMessage `json:"echo"`
}

// Echo replies with the request's echo field unchanged.
func Echo(n *server.Node, msg dataType.Message) error {
	var body echoBody
	if err := msg.DecodeBody(&body); err != nil {
		return dataType.MalformedRequest("%v", err)
	}
	if len(body.Echo) == 0 {
		return dataType.MalformedRequest("echo without an echo field")
	}
	return n.Reply(msg, echoBody{Type: dataType.TypeEchoOk, Echo: body.Echo})
}
