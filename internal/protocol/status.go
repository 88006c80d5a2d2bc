package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StatusEvent is the decoded form of a device status report, shared by
// both transports so the device manager has exactly one merge path.
type StatusEvent struct {
	// Endpoint is the reporting controller's hardware key.
	Endpoint string

	// Pins holds per-channel state in wire order; index+1 is the
	// channel number.
	Pins []PinState
}

// PinState is the state of one pin as reported by a controller.
type PinState struct {
	On    bool
	Speed int
}

// statusBody is the raw wire shape of a status report.
type statusBody struct {
	Command string            `json:"command"`
	UID     string            `json:"uid"`
	Pin     []json.RawMessage `json:"pin"`
}

// pinObject is the structured pin variant reported by newer firmware.
// State and Speed arrive as numbers or numeric strings depending on the
// controller revision.
type pinObject struct {
	State flexInt `json:"state"`
	Speed flexInt `json:"speed"`
}

// flexInt decodes an integer that may arrive as a JSON number or a
// numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: integer field %q", ErrMalformed, s)
	}
	*f = flexInt(n)
	return nil
}

// ParseStatus decodes a status payload from either transport.
//
// Returns ErrNotStatus for well-formed payloads whose command is not
// "status" (connectivity replies, acks); callers drop those silently.
// Returns ErrMalformed when the payload cannot be decoded.
func ParseStatus(payload []byte) (StatusEvent, error) {
	var body statusBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return StatusEvent{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return statusFromBody(body)
}

// ParseStatusValue decodes a status body that was already unmarshalled
// into a JSON value (the stream transport gets it as the second element
// of an event array).
func ParseStatusValue(raw json.RawMessage) (StatusEvent, error) {
	return ParseStatus(raw)
}

func statusFromBody(body statusBody) (StatusEvent, error) {
	if body.Command != "status" {
		return StatusEvent{}, fmt.Errorf("%w: command %q", ErrNotStatus, body.Command)
	}
	if body.UID == "" {
		return StatusEvent{}, fmt.Errorf("%w: status without uid", ErrMalformed)
	}

	ev := StatusEvent{
		Endpoint: body.UID,
		Pins:     make([]PinState, 0, len(body.Pin)),
	}

	for i, raw := range body.Pin {
		ps, err := parsePin(raw)
		if err != nil {
			return StatusEvent{}, fmt.Errorf("pin %d: %w", i+1, err)
		}
		ev.Pins = append(ev.Pins, ps)
	}

	return ev, nil
}

// parsePin decodes one pin element. Legacy firmware sends a bare integer
// (power only, no speed); newer firmware sends {state, speed} objects.
func parsePin(raw json.RawMessage) (PinState, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var obj pinObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return PinState{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return PinState{On: obj.State != 0, Speed: int(obj.Speed)}, nil
	}

	var n flexInt
	if err := json.Unmarshal(raw, &n); err != nil {
		return PinState{}, err
	}
	return PinState{On: n != 0}, nil
}
