package protocol

import (
	"encoding/json"
	"strconv"
)

// Power/cover states accepted by controllers.
const (
	StateOn    = "on"
	StateOff   = "off"
	StateOpen  = "open"
	StateClose = "close"
	StateStop  = "stop"
)

// CommandEnvelope is the backend command shape, identical on the stream
// and broker transports.
//
// The backend addresses controllers by their hardware key three times
// over (macID, passcode, to); all three always carry the endpoint key.
type CommandEnvelope struct {
	// MacID is the endpoint hardware key the command targets.
	MacID string `json:"macID"`

	// Event is always "execute" for commands originated by this core.
	Event string `json:"event"`

	// Command selects the operation: "execute" to drive pins,
	// "deviceStatus" to request a full status report.
	Command string `json:"command"`

	// Params is a pin-parameter array for "execute" and the literal
	// number 0 for "deviceStatus".
	Params any `json:"params"`

	// Passcode duplicates the endpoint key.
	Passcode string `json:"passcode"`

	// To duplicates the endpoint key.
	To string `json:"to"`
}

// PinParam is one pin instruction inside an execute command.
type PinParam struct {
	// Pin is the 1-based channel number on the controller.
	Pin int `json:"pin"`

	// State is one of the State* constants.
	State string `json:"state"`

	// Speed is a stringified integer; controllers reject bare numbers
	// here. "0" when the device has no speed notion.
	Speed string `json:"speed,omitempty"`
}

// NewExecuteCommand builds the command payload that drives one pin.
// Speed is always carried, "0" when the caller has none to set.
func NewExecuteCommand(endpoint string, channel int, state string, speed int) CommandEnvelope {
	return CommandEnvelope{
		MacID:   endpoint,
		Event:   "execute",
		Command: "execute",
		Params: []PinParam{{
			Pin:   channel,
			State: state,
			Speed: strconv.Itoa(speed),
		}},
		Passcode: endpoint,
		To:       endpoint,
	}
}

// NewDeviceStatusQuery builds the payload that asks a controller to
// report the status of all its pins. Params is the literal 0 here, not
// an array; the backend distinguishes the two commands by that field.
func NewDeviceStatusQuery(endpoint string) CommandEnvelope {
	return CommandEnvelope{
		MacID:    endpoint,
		Event:    "execute",
		Command:  "deviceStatus",
		Params:   0,
		Passcode: endpoint,
		To:       endpoint,
	}
}

// Encode renders the envelope as JSON.
func (c CommandEnvelope) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// FastPathCommand is the trimmed execute payload accepted by a
// controller's local HTTP endpoint. Local firmware wants only the
// command, pin parameters, and passcode.
type FastPathCommand struct {
	Command  string     `json:"command"`
	Params   []PinParam `json:"params"`
	Passcode string     `json:"passcode"`
}

// NewFastPathCommand builds the local-network variant of an execute
// command. Speed is omitted entirely when negative (switches without a
// speed notion), mirroring the cloud payload's optional field.
func NewFastPathCommand(endpoint string, channel int, state string, speed int) FastPathCommand {
	p := PinParam{Pin: channel, State: state}
	if speed >= 0 {
		p.Speed = strconv.Itoa(speed)
	}
	return FastPathCommand{
		Command:  "execute",
		Params:   []PinParam{p},
		Passcode: endpoint,
	}
}
