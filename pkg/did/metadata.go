package did

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Well known metadata properties.
const (
	PropAlias         = "alias"
	PropDefaultDID    = "defaultDid"
	PropRootIdentity  = "rootIdentity"
	PropIndex         = "index"
	PropCreated       = "created"
	PropTransactionID = "txid"
	PropDeactivated   = "deactivated"
)

// Metadata is the free-form property bag persisted next to every stored
// entity. Values are JSON scalars; nil removes a property.
type Metadata struct {
	props map[string]any
}

func NewMetadata() *Metadata {
	return &Metadata{props: map[string]any{}}
}

// ParseMetadata decodes the JSON sidecar form. Nested objects are rejected.
func ParseMetadata(data []byte) (*Metadata, error) {
	m := NewMetadata()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metadata) Set(key string, value any) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if m.props == nil {
		m.props = map[string]any{}
	}
	if value == nil {
		delete(m.props, key)
		return
	}
	m.props[key] = value
}

func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.props[key]
	return v, ok
}

func (m *Metadata) Remove(key string) {
	if m != nil {
		delete(m.props, key)
	}
}

func (m *Metadata) IsEmpty() bool {
	return m == nil || len(m.props) == 0
}

func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.props))
	for k := range m.props {
		keys = append(keys, k)
	}
	return keys
}

func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m != nil {
		maps.Copy(c.props, m.props)
	}
	return c
}

// Merge copies every property of other over m.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	for k, v := range other.props {
		m.Set(k, v)
	}
}

func (m *Metadata) GetString(key string) string {
	v, _ := m.Get(key)
	s, _ := v.(string)
	return s
}

func (m *Metadata) GetBool(key string) bool {
	v, _ := m.Get(key)
	b, _ := v.(bool)
	return b
}

// GetInt reads an integer property. JSON numbers decode as float64.
func (m *Metadata) GetInt(key string) (int, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// GetTime reads an RFC 3339 timestamp property.
func (m *Metadata) GetTime(key string) (time.Time, bool) {
	s := m.GetString(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}

func (m *Metadata) SetTime(key string, t time.Time) {
	m.Set(key, t.UTC().Format(time.RFC3339))
}

func (m *Metadata) Alias() string             { return m.GetString(PropAlias) }
func (m *Metadata) SetAlias(alias string)     { m.setOrClear(PropAlias, alias) }
func (m *Metadata) DefaultDID() string        { return m.GetString(PropDefaultDID) }
func (m *Metadata) SetDefaultDID(d string)    { m.setOrClear(PropDefaultDID, d) }
func (m *Metadata) RootIdentity() string      { return m.GetString(PropRootIdentity) }
func (m *Metadata) SetRootIdentity(id string) { m.setOrClear(PropRootIdentity, id) }

func (m *Metadata) setOrClear(key, value string) {
	if value == "" {
		m.Remove(key)
		return
	}
	m.Set(key, value)
}

func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || m.props == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.props)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("did: decode metadata: %w", err)
	}
	props := make(map[string]any, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return fmt.Errorf("did: metadata property %q is not a scalar", k)
		case nil:
			continue
		}
		props[k] = v
	}
	m.props = props
	return nil
}
