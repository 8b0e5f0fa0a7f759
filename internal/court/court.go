package court

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMissingID = errors.New("court id missing")
var ErrOutOfRange = errors.New("match number out of range")
var ErrInvalidLast = errors.New("last match number must be positive")
var ErrNoChange = errors.New("queue unchanged")
var ErrIdle = errors.New("no match in progress")

// ID is the upstream court identifier. Upstream sends numbers, but nothing here
// does arithmetic on it, so it is kept as text.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("court id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON keeps numeric ids numeric so round trips to upstream look the same.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Court is one playing area. Zero in Current, Next or AfterNext means the slot is empty.
type Court struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Current   int    `json:"current,omitempty"`
	Next      int    `json:"next,omitempty"`
	AfterNext int    `json:"afterNext,omitempty"`
	Last      int    `json:"last"`
}

// Patch holds the fields present in a partial update. A nil pointer means the
// field was absent; a pointer to zero means upstream cleared the slot.
type Patch struct {
	ID        ID
	Name      *string
	Current   *int
	Next      *int
	AfterNext *int
	Last      *int
}

// DecodePatch reads a partial court object. Keys match case-insensitively,
// like encoding/json does for whole courts, so "Last" and "last" are the same field.
func DecodePatch(data []byte) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, err
	}

	var p Patch
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "id":
			if err := json.Unmarshal(val, &p.ID); err != nil {
				return Patch{}, err
			}
		case "name":
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				return Patch{}, fmt.Errorf("name: %w", err)
			}
			p.Name = &s
		case "current":
			n, err := decodeSlot(val)
			if err != nil {
				return Patch{}, fmt.Errorf("current: %w", err)
			}
			p.Current = n
		case "next":
			n, err := decodeSlot(val)
			if err != nil {
				return Patch{}, fmt.Errorf("next: %w", err)
			}
			p.Next = n
		case "afternext":
			n, err := decodeSlot(val)
			if err != nil {
				return Patch{}, fmt.Errorf("afterNext: %w", err)
			}
			p.AfterNext = n
		case "last":
			n, err := decodeSlot(val)
			if err != nil {
				return Patch{}, fmt.Errorf("last: %w", err)
			}
			p.Last = n
		}
	}

	if p.ID == "" {
		return Patch{}, ErrMissingID
	}
	return p, nil
}

func decodeSlot(val json.RawMessage) (*int, error) {
	n := 0
	if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		return &n, nil
	}
	if err := json.Unmarshal(val, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Apply returns c with the fields present in p overwritten. c itself is not modified.
func (c Court) Apply(p Patch) Court {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Current != nil {
		c.Current = *p.Current
	}
	if p.Next != nil {
		c.Next = *p.Next
	}
	if p.AfterNext != nil {
		c.AfterNext = *p.AfterNext
	}
	if p.Last != nil {
		c.Last = *p.Last
	}
	return c
}

// Merge applies p to the court with the matching id and returns a new slice.
// The input slice is never written to. If no court matches, courts is returned
// as is and ok is false: partial updates never introduce courts.
func Merge(courts []Court, p Patch) (out []Court, ok bool) {
	idx := -1
	for i, c := range courts {
		if c.ID == p.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return courts, false
	}

	out = make([]Court, len(courts))
	copy(out, courts)
	out[idx] = courts[idx].Apply(p)
	return out, true
}

// Dedupe drops later duplicates of an id, keeping upstream order.
func Dedupe(courts []Court) []Court {
	seen := make(map[ID]bool, len(courts))
	out := make([]Court, 0, len(courts))
	for _, c := range courts {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
