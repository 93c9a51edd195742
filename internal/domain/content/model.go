package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the entity-level visibility flag.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status. The empty status means "not supplied".
func (s Status) Valid() bool {
	return s == "" || s == StatusDraft || s == StatusPublished
}

// Fields holds the type-specific payload of an entity. Values are kept as raw
// JSON so the store never interprets them.
type Fields map[string]json.RawMessage

// Entity is the envelope shared by every editable record (project, photo, page, settings).
type Entity struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	Fields    Fields
}

const (
	keyID        = "id"
	keyStatus    = "status"
	keyCreatedAt = "createdAt"
	keyUpdatedAt = "updatedAt"
	keyVersion   = "version"
)

func isMetaKey(key string) bool {
	switch key {
	case keyID, keyStatus, keyCreatedAt, keyUpdatedAt, keyVersion:
		return true
	}
	return false
}

// MarshalJSON renders the entity as one flat object. Zero metadata is omitted.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Fields)+5)
	for k, v := range e.Fields {
		if v == nil {
			v = json.RawMessage("null")
		}
		out[k] = v
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}
	if e.ID != "" {
		if err := put(keyID, e.ID); err != nil {
			return nil, err
		}
	}
	if e.Status != "" {
		if err := put(keyStatus, e.Status); err != nil {
			return nil, err
		}
	}
	if !e.CreatedAt.IsZero() {
		if err := put(keyCreatedAt, e.CreatedAt); err != nil {
			return nil, err
		}
	}
	if !e.UpdatedAt.IsZero() {
		if err := put(keyUpdatedAt, e.UpdatedAt); err != nil {
			return nil, err
		}
	}
	if e.Version != 0 {
		if err := put(keyVersion, e.Version); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object into metadata and fields. A null metadata
// value is treated as absent.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entity{}
	for k, v := range raw {
		if !isMetaKey(k) {
			if e.Fields == nil {
				e.Fields = make(Fields, len(raw))
			}
			e.Fields[k] = v
			continue
		}
		if isNull(v) {
			continue
		}
		var err error
		switch k {
		case keyID:
			err = json.Unmarshal(v, &e.ID)
		case keyStatus:
			err = json.Unmarshal(v, &e.Status)
		case keyCreatedAt:
			err = json.Unmarshal(v, &e.CreatedAt)
		case keyUpdatedAt:
			err = json.Unmarshal(v, &e.UpdatedAt)
		case keyVersion:
			err = json.Unmarshal(v, &e.Version)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (e Entity) Clone() Entity {
	out := e
	if e.Fields != nil {
		out.Fields = make(Fields, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = cloneRaw(v)
		}
	}
	return out
}

// Field returns the raw value of a type-specific field.
func (e Entity) Field(name string) (json.RawMessage, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// StringField decodes a string field. Non-string values report false.
func (e Entity) StringField(name string) (string, bool) {
	v, ok := e.Fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// SetField stores v as JSON under name.
func (e *Entity) SetField(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal field %s: %w", name, err)
	}
	if e.Fields == nil {
		e.Fields = make(Fields)
	}
	e.Fields[name] = raw
	return nil
}

// Merge overlays incoming onto existing: supplied fields overwrite, omitted
// fields are kept. Identity, timestamps and version are left to the store.
func Merge(existing, incoming Entity) Entity {
	out := existing.Clone()
	if out.Fields == nil && len(incoming.Fields) > 0 {
		out.Fields = make(Fields, len(incoming.Fields))
	}
	for k, v := range incoming.Fields {
		out.Fields[k] = cloneRaw(v)
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	return out
}

// SameContent reports whether two entities carry the same status and fields,
// ignoring id, timestamps and version.
func SameContent(a, b Entity) bool {
	if a.Status != b.Status || len(a.Fields) != len(b.Fields) {
		return false
	}
	for k, av := range a.Fields {
		bv, ok := b.Fields[k]
		if !ok || !EqualJSON(av, bv) {
			return false
		}
	}
	return true
}

// EqualJSON compares two JSON values structurally (key order and whitespace ignored).
func EqualJSON(a, b json.RawMessage) bool {
	ca, errA := canonical(a)
	cb, errB := canonical(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca, cb)
}

func canonical(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
