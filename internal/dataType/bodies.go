package dataType

// Message type tags.
const (
	TypeInit           = "init"
	TypeInitOk         = "init_ok"
	TypeBroadcast      = "broadcast"
	TypeBroadcastOk    = "broadcast_ok"
	TypeGossip         = "gossip"
	TypeGossipOk       = "gossip_ok"
	TypeRead           = "read"
	TypeReadOk         = "read_ok"
	TypeTopology       = "topology"
	TypeTopologyOk     = "topology_ok"
	TypeAreYouThere    = "are-you-there"
	TypeAreYouThereAlt = "areyouthere"
	TypeEcho           = "echo"
	TypeEchoOk         = "echo_ok"
	TypeGenerate       = "generate"
	TypeGenerateOk     = "generate_ok"
)

// OkType is the reply tag for a request tag.
func OkType(requestType string) string {
	return requestType + "_ok"
}

type InitBody struct {
	Type    string   `json:"type"`
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// ValueBody carries one broadcast value. Message is a pointer so a missing
// field can be told apart from zero.
type ValueBody struct {
	Type    string `json:"type"`
	Message *int64 `json:"message"`
}

type ReadOkBody struct {
	Type     string  `json:"type"`
	Messages []int64 `json:"messages"`
}

type TopologyBody struct {
	Type     string              `json:"type"`
	Topology map[string][]string `json:"topology"`
}

// TypeOnly is a body with nothing but its type tag.
type TypeOnly struct {
	Type string `json:"type"`
}
