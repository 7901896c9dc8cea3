package dataType

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
		typ     string
	}{
		{"broadcast", `{"src":"c1","dest":"n0","body":{"type":"broadcast","msg_id":1,"message":42}}`, false, "broadcast"},
		{"surrounding space", ` {"src":"c1","dest":"n0","body":{"type":"read"}} `, false, "read"},
		{"no type", `{"src":"c1","dest":"n0","body":{}}`, false, ""},
		{"not json", `{"src":"c1"`, true, ""},
		{"body array", `{"src":"c1","dest":"n0","body":[]}`, true, ""},
		{"body missing", `{"src":"c1","dest":"n0"}`, true, ""},
		{"two documents", `{"src":"a","dest":"b","body":{}} {"src":"a"}`, true, ""},
		{"trailing brace", `{"src":"c","dest":"n0","body":{"type":"read","msg_id":1}}}`, true, ""},
		{"trailing bracket", `{"src":"c","dest":"n0","body":{"type":"read","msg_id":1}}]`, true, ""},
		{"trailing comma", `{"src":"c","dest":"n0","body":{"type":"read","msg_id":1}},`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type() != tt.typ {
				t.Errorf("type = %q, want %q", msg.Type(), tt.typ)
			}
		})
	}
}

func TestMessageHead(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"src":"n1","dest":"n0","body":{"type":"gossip_ok","in_reply_to":12}}`))
	if err != nil {
		t.Fatal(err)
	}
	head, err := msg.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.MsgID != nil || head.InReplyTo == nil || *head.InReplyTo != 12 {
		t.Fatalf("head = %+v", head)
	}
}

func TestMessageEncodeKeepsBody(t *testing.T) {
	line := `{"src":"c1","dest":"n0","body":{"type":"echo","msg_id":3,"echo":{"nested":[1,2.5,"x"]}}}`
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var a, b any
	_ = json.Unmarshal([]byte(line), &a)
	_ = json.Unmarshal(encoded, &b)
	if string(mustJSON(t, a)) != string(mustJSON(t, b)) {
		t.Fatalf("encoded %s differs from %s", encoded, line)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestMergeFields(t *testing.T) {
	raw, err := MergeFields(TypeOnly{Type: "read_ok"}, map[string]any{"in_reply_to": int64(4)})
	if err != nil {
		t.Fatal(err)
	}
	if !HasField(raw, "in_reply_to") || !HasField(raw, "type") || HasField(raw, "msg_id") {
		t.Fatalf("merged body %s", raw)
	}

	if _, err := MergeFields([]int{1}, nil); !errors.Is(err, ErrNotObject) {
		t.Fatalf("err = %v, want ErrNotObject", err)
	}
	if HasField(json.RawMessage(`{"msg_id":null}`), "msg_id") {
		t.Fatal("null field reported present")
	}
}

func TestMergeFieldsKeepsOrder(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		fields []map[string]any
		want   string
	}{
		{
			name:   "reply then msg id",
			body:   TypeOnly{Type: "init_ok"},
			fields: []map[string]any{{"in_reply_to": int64(1)}, {"msg_id": int64(7)}},
			want:   `{"type":"init_ok","in_reply_to":1,"msg_id":7}`,
		},
		{
			name:   "payload before new fields",
			body:   json.RawMessage(`{"type":"echo_ok","echo":{"z":1,"a":2}}`),
			fields: []map[string]any{{"in_reply_to": int64(3), "msg_id": int64(9)}},
			want:   `{"type":"echo_ok","echo":{"z":1,"a":2},"in_reply_to":3,"msg_id":9}`,
		},
		{
			name:   "overwrite in place",
			body:   json.RawMessage(`{"type":"read_ok","msg_id":1,"messages":[]}`),
			fields: []map[string]any{{"msg_id": int64(5)}},
			want:   `{"type":"read_ok","msg_id":5,"messages":[]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any = tt.body
			for _, f := range tt.fields {
				raw, err := MergeFields(body, f)
				if err != nil {
					t.Fatal(err)
				}
				body = raw
			}
			if got := string(body.(json.RawMessage)); got != tt.want {
				t.Errorf("merged = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorFromMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"src":"n1","dest":"n0","body":{"type":"error","in_reply_to":2,"code":11,"text":"not ready"}}`))
	if err != nil {
		t.Fatal(err)
	}
	perr := ErrorFromMessage(msg)
	var wrapped error = perr
	code, ok := ErrorCode(wrapped)
	if !ok || code != CodeTemporarilyUnavailable || perr.Text != "not ready" {
		t.Fatalf("error = %+v", perr)
	}
	if _, ok := ErrorCode(errors.New("plain")); ok {
		t.Fatal("plain error reported a code")
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		nodeID  string
		nodeIDs []string
		ordinal int64
		index   int
	}{
		{"n3", []string{"n0", "n1", "n2", "n3"}, 3, 3},
		{"node-12", []string{"node-12", "node-4"}, 12, 0},
		{"alpha", []string{"gamma", "alpha"}, 1, 1},
		{"ghost", []string{"n0"}, 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.nodeID, func(t *testing.T) {
			id, err := NewIdentity(tt.nodeID, tt.nodeIDs)
			if err != nil {
				t.Fatal(err)
			}
			if id.Ordinal != tt.ordinal || id.Index() != tt.index {
				t.Errorf("ordinal = %d, index = %d; want %d, %d", id.Ordinal, id.Index(), tt.ordinal, tt.index)
			}
		})
	}

	if _, err := NewIdentity("", nil); !errors.Is(err, ErrEmptyNodeID) {
		t.Fatalf("err = %v, want ErrEmptyNodeID", err)
	}
}
