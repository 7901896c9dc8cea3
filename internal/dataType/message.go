package dataType

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var ErrNotObject = errors.New("message body is not a JSON object")

// Message is one envelope exchanged over the line channel. Body holds the
// raw JSON object exactly as received or as it will be written.
type Message struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// Head is the part of a body every message type shares.
type Head struct {
	Type      string `json:"type"`
	MsgID     *int64 `json:"msg_id,omitempty"`
	InReplyTo *int64 `json:"in_reply_to,omitempty"`
}

// ParseMessage decodes one line. The line must hold a single complete JSON
// document whose body is an object; only whitespace may follow it.
func ParseMessage(line []byte) (Message, error) {
	var msg Message
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if rest := bytes.TrimSpace(line[dec.InputOffset():]); len(rest) > 0 {
		return Message{}, fmt.Errorf("decode message: trailing data after document: %q", rest)
	}
	if !isObject(msg.Body) {
		return Message{}, ErrNotObject
	}
	return msg, nil
}

// Encode renders the envelope as a single line without the trailing newline.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func (m Message) Head() (Head, error) {
	var h Head
	if err := json.Unmarshal(m.Body, &h); err != nil {
		return Head{}, fmt.Errorf("decode body head: %w", err)
	}
	return h, nil
}

// Type returns the body's type tag, or "" when the body has none.
func (m Message) Type() string {
	h, err := m.Head()
	if err != nil {
		return ""
	}
	return h.Type
}

func (m Message) DecodeBody(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s body: %w", m.Type(), err)
	}
	return nil
}

func (m Message) String() string {
	line, err := m.Encode()
	if err != nil {
		return fmt.Sprintf("{src:%s dest:%s body:<invalid>}", m.Src, m.Dest)
	}
	return string(line)
}

// MergeFields marshals body and overwrites or adds the given top-level
// fields. Existing keys keep their position; new keys follow in sorted
// order. The result is always a JSON object.
func MergeFields(body any, fields map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	keys, values, err := objectFields(raw)
	if err != nil {
		return nil, err
	}

	extra := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := values[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)
	for k, v := range fields {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		values[k] = enc
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("encode key %s: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// objectFields splits a JSON object into its keys, in document order, and
// their raw values. A repeated key keeps its first position and last value.
func objectFields(raw []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, ErrNotObject
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, ErrNotObject
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode body key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, ErrNotObject
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode body field %s: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v
	}
	return keys, values, nil
}

// HasField reports whether the body object carries key with a non-null value.
func HasField(body json.RawMessage, key string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return false
	}
	v, ok := obj[key]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
