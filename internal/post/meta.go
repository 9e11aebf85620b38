package post

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// MetaFile is the per-post metadata object name.
const MetaFile = "meta_data.json"

// Attr is a single metadata attribute. Value holds the attribute's JSON
// encoding.
type Attr struct {
	Key   string
	Value json.RawMessage
}

// ParseAttrs decodes a JSON object into its attributes in document order.
// Duplicate keys keep the position of their first occurrence and the value
// of their last.
func ParseAttrs(data []byte) ([]Attr, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, newError(ErrValidation, "meta data must be a JSON object: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, newError(ErrValidation, "meta data must be a JSON object")
	}

	var attrs []Attr
	pos := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, newError(ErrValidation, "decode meta data: %v", err)
		}
		key := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, newError(ErrValidation, "decode meta data %q: %v", key, err)
		}
		if i, ok := pos[key]; ok {
			attrs[i].Value = value
			continue
		}
		pos[key] = len(attrs)
		attrs = append(attrs, Attr{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, newError(ErrValidation, "decode meta data: %v", err)
	}
	return attrs, nil
}

// Meta is a post's metadata: an integer id plus an ordered set of arbitrary
// JSON attributes. The id never changes after construction and attribute
// order is first-seen order, append only.
type Meta struct {
	adapter *storage.Adapter
	id      int
	keys    []string
	values  map[string]json.RawMessage
}

// NewMeta builds a Meta from attrs, which must contain an integer "id".
// adapter may be nil for metadata that is only read, such as index entries.
func NewMeta(adapter *storage.Adapter, attrs []Attr) (*Meta, error) {
	m := &Meta{
		adapter: adapter,
		id:      -1,
		values:  make(map[string]json.RawMessage),
	}
	for _, a := range attrs {
		if a.Key == "id" {
			id, err := parseID(a.Value)
			if err != nil {
				return nil, err
			}
			if m.id < 0 {
				m.keys = append(m.keys, "id")
			}
			m.id = id
			continue
		}
		m.set(a.Key, a.Value)
	}
	if m.id < 0 {
		return nil, newError(ErrValidation, "meta data object must contain an id key")
	}
	return m, nil
}

// ParseMeta builds a Meta from a JSON object.
func ParseMeta(adapter *storage.Adapter, data []byte) (*Meta, error) {
	attrs, err := ParseAttrs(data)
	if err != nil {
		return nil, err
	}
	return NewMeta(adapter, attrs)
}

func parseID(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, newError(ErrValidation, "invalid id: %v", err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, newError(ErrValidation, "id must be an integer, got %s", raw)
	}
	id, err := strconv.Atoi(n.String())
	if err != nil || id < 0 {
		return 0, newError(ErrValidation, "id must be a non-negative integer, got %s", n)
	}
	return id, nil
}

// ID returns the post id.
func (m *Meta) ID() int { return m.id }

// Title returns the "title" attribute, or "" when it is absent or not a
// string.
func (m *Meta) Title() string {
	var title string
	if raw, ok := m.values["title"]; ok {
		_ = json.Unmarshal(raw, &title)
	}
	return title
}

// Keys returns the attribute names in order, including "id".
func (m *Meta) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns the JSON value of key.
func (m *Meta) Get(key string) (json.RawMessage, bool) {
	if key == "id" {
		return json.RawMessage(strconv.Itoa(m.id)), true
	}
	v, ok := m.values[key]
	return v, ok
}

// Set encodes value and stores it under key. Setting "id" is ignored.
func (m *Meta) Set(key string, value any) error {
	if key == "id" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.set(key, raw)
	return nil
}

func (m *Meta) set(key string, value json.RawMessage) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Update merges attrs into the metadata. "id" is silently ignored; new keys
// are appended to the attribute order.
func (m *Meta) Update(attrs []Attr) {
	for _, a := range attrs {
		if a.Key == "id" {
			continue
		}
		m.set(a.Key, a.Value)
	}
}

// UpdateJSON merges a JSON object into the metadata.
func (m *Meta) UpdateJSON(data []byte) error {
	attrs, err := ParseAttrs(data)
	if err != nil {
		return err
	}
	m.Update(attrs)
	return nil
}

// MarshalJSON writes the attributes in order.
func (m *Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if key == "id" {
			buf.WriteString(strconv.Itoa(m.id))
		} else {
			buf.Write(m.values[key])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Save writes the metadata to meta_data.json under its adapter.
func (m *Meta) Save(ctx context.Context) error {
	if m.adapter == nil {
		return fmt.Errorf("save meta %d: no storage adapter", m.id)
	}
	return m.adapter.SaveJSON(ctx, m, MetaFile)
}
