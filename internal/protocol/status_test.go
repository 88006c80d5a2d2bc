package protocol

import (
	"errors"
	"testing"
)

// =============================================================================
// Status Decoding Tests
// =============================================================================

func TestParseStatusStructuredPins(t *testing.T) {
	payload := []byte(`{"command":"status","uid":"E1","pin":[{"state":1,"speed":40},0]}`)

	ev, err := ParseStatus(payload)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}

	if ev.Endpoint != "E1" {
		t.Errorf("Endpoint = %q, want E1", ev.Endpoint)
	}
	if len(ev.Pins) != 2 {
		t.Fatalf("len(Pins) = %d, want 2", len(ev.Pins))
	}
	if ev.Pins[0] != (PinState{On: true, Speed: 40}) {
		t.Errorf("Pins[0] = %+v, want {On:true Speed:40}", ev.Pins[0])
	}
	if ev.Pins[1] != (PinState{}) {
		t.Errorf("Pins[1] = %+v, want {On:false Speed:0}", ev.Pins[1])
	}
}

func TestParseStatusLegacyPins(t *testing.T) {
	payload := []byte(`{"command":"status","uid":"E1","pin":[1,0,1]}`)

	ev, err := ParseStatus(payload)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}

	want := []PinState{{On: true}, {On: false}, {On: true}}
	if len(ev.Pins) != len(want) {
		t.Fatalf("len(Pins) = %d, want %d", len(ev.Pins), len(want))
	}
	for i := range want {
		if ev.Pins[i] != want[i] {
			t.Errorf("Pins[%d] = %+v, want %+v", i, ev.Pins[i], want[i])
		}
	}
}

func TestParseStatusStringFields(t *testing.T) {
	// Some firmware revisions stringify state/speed.
	payload := []byte(`{"command":"status","uid":"E1","pin":[{"state":"1","speed":"75"}]}`)

	ev, err := ParseStatus(payload)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if ev.Pins[0] != (PinState{On: true, Speed: 75}) {
		t.Errorf("Pins[0] = %+v, want {On:true Speed:75}", ev.Pins[0])
	}
}

func TestParseStatusMixedPins(t *testing.T) {
	payload := []byte(`{"command":"status","uid":"E1","pin":[0,{"state":1,"speed":20},1]}`)

	ev, err := ParseStatus(payload)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if len(ev.Pins) != 3 {
		t.Fatalf("len(Pins) = %d, want 3", len(ev.Pins))
	}
	if !ev.Pins[1].On || ev.Pins[1].Speed != 20 {
		t.Errorf("Pins[1] = %+v, want {On:true Speed:20}", ev.Pins[1])
	}
}

// =============================================================================
// Rejection Tests
// =============================================================================

func TestParseStatusNotStatus(t *testing.T) {
	payload := []byte(`{"command":"connectivityStatus","uid":"E1","pin":[]}`)

	_, err := ParseStatus(payload)
	if !errors.Is(err, ErrNotStatus) {
		t.Errorf("ParseStatus() error = %v, want ErrNotStatus", err)
	}
}

func TestParseStatusMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json at all`},
		{"missing uid", `{"command":"status","pin":[1]}`},
		{"bad pin", `{"command":"status","uid":"E1","pin":["garbage"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatus([]byte(tt.payload))
			if err == nil {
				t.Errorf("ParseStatus(%s) expected error", tt.payload)
			}
		})
	}
}

func TestParseStatusEmptyPins(t *testing.T) {
	ev, err := ParseStatus([]byte(`{"command":"status","uid":"E1","pin":[]}`))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if len(ev.Pins) != 0 {
		t.Errorf("len(Pins) = %d, want 0", len(ev.Pins))
	}
}
