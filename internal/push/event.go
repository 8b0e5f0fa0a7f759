// Package push decodes the upstream server-sent event stream into typed events.
// Event names are matched here and nowhere else.
package push

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DoyleJ11/court-queue-board/internal/court"
)

var ErrUnknownEvent = errors.New("unknown push event")
var ErrMalformed = errors.New("malformed push event")
var ErrChannelClosed = errors.New("push channel closed")

const (
	NameInitialData = "initial_data"
	NameCourtUpdate = "court_update"
)

type Event interface{ isEvent() }

// InitialData replaces the whole court list.
type InitialData struct {
	Courts    []court.Court
	Timestamp time.Time
}

func (InitialData) isEvent() {}

// CourtUpdate carries the changed fields of one court.
type CourtUpdate struct {
	Patch     court.Patch
	Timestamp time.Time
}

func (CourtUpdate) isEvent() {}

type frame struct {
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode turns one named frame into an Event. now is used when the frame has
// no timestamp or one that cannot be read; the timestamp never fails a frame.
func Decode(name string, data []byte, now time.Time) (Event, error) {
	if name != NameInitialData && name != NameCourtUpdate {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: %s: no data", ErrMalformed, name)
	}

	ts, ok := parseStamp(f.Timestamp)
	if !ok {
		ts = now
	}

	switch name {
	case NameInitialData:
		var courts []court.Court
		if err := json.Unmarshal(f.Data, &courts); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		return InitialData{Courts: court.Dedupe(courts), Timestamp: ts}, nil

	default:
		p, err := court.DecodePatch(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		return CourtUpdate{Patch: p, Timestamp: ts}, nil
	}
}

// parseStamp reads an RFC3339 or zone-less ISO string, or an epoch number.
// Integers below 1e11 are seconds, larger ones milliseconds; fractions are
// seconds. Zone-less text is taken as UTC.
func parseStamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil || text == "" {
			return time.Time{}, false
		}
		for _, l := range stampLayouts {
			if t, err := time.Parse(l, text); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, false
	}
	if i, err := n.Int64(); err == nil {
		if i > -1e11 && i < 1e11 {
			return time.Unix(i, 0).UTC(), true
		}
		return time.UnixMilli(i).UTC(), true
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, false
	}
	sec := math.Floor(f)
	return time.Unix(int64(sec), int64((f-sec)*1e9)).UTC(), true
}

var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}
