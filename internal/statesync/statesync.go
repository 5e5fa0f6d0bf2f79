// Package statesync pushes LED toggles to a remote state server and pulls the
// full state table back, with abstraction for testing.
package statesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/sweeney/ledpanel/internal/logic"
)

// Paths on the state server.
const (
	PathState  = "/state"
	PathStates = "/states"
)

// Client synchronises LED states with a remote store.
// Each call is an independent request; no session state is kept.
type Client interface {
	// PushState reports one LED's new state. Best effort: callers log and
	// move on, local state stays authoritative.
	PushState(ctx context.Context, chip, pin int, state bool) error

	// PullSnapshot fetches the full state table. Rows may be short.
	PullSnapshot(ctx context.Context) (logic.Snapshot, error)

	// IsConnected reports whether the network link is up. When false, both
	// calls above return immediately without issuing a request.
	IsConnected() bool
}

// Connectivity reports whether the network link is usable.
type Connectivity interface {
	IsConnected() bool
}

// ErrHTTPStatus is wrapped by errors for non-2xx responses.
var ErrHTTPStatus = errors.New("statesync: unexpected status")

// PushRequest is the POST /state body.
type PushRequest struct {
	Chip  int  `json:"chip"`
	Pin   int  `json:"pin"`
	State bool `json:"state"`
}

// FormatPush creates the JSON body for a push.
func FormatPush(chip, pin int, state bool) ([]byte, error) {
	return json.Marshal(PushRequest{Chip: chip, Pin: pin, State: state})
}

// statesResponse is the GET /states body. Rows and values are decoded
// separately so one bad entry only truncates its own row.
type statesResponse struct {
	States []json.RawMessage `json:"states"`
}

// ParseSnapshot decodes a GET /states body. The body must be a JSON object;
// anything inside "states" that is not usable is dropped: a row that is not
// an array becomes empty, and a row is cut at its first value that is not a
// boolean or a number (the server stores 0/1).
func ParseSnapshot(body []byte) (logic.Snapshot, error) {
	var resp statesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	snap := make(logic.Snapshot, len(resp.States))
	for chip, raw := range resp.States {
		var values []json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil {
			continue
		}
		row := make([]bool, 0, len(values))
		for _, v := range values {
			b, ok := parseState(v)
			if !ok {
				break
			}
			row = append(row, b)
		}
		snap[chip] = row
	}
	return snap, nil
}

func parseState(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil && len(raw) > 0 && raw[0] != 'n' {
		return b, true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && len(raw) > 0 && raw[0] != 'n' {
		return n != 0, true
	}
	return false, false
}

// Disabled is the Client used when no sync endpoint is configured.
type Disabled struct{}

func (Disabled) PushState(context.Context, int, int, bool) error { return nil }

func (Disabled) PullSnapshot(context.Context) (logic.Snapshot, error) { return nil, nil }

func (Disabled) IsConnected() bool { return false }
