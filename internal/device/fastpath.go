package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/buildtrack-sync/internal/protocol"
)

// fastPathContentType is what controller firmware expects. It really is
// text/plain for a JSON body; the embedded HTTP server predates any
// content negotiation.
const fastPathContentType = "text/plain; charset=utf-8"

// fastPath fires execute commands straight at a controller's LAN
// address, skipping the cloud round trip. Strictly best effort: every
// failure is swallowed after logging, and the cloud command is always
// sent regardless of the fast path's outcome.
type fastPath struct {
	client *http.Client
}

func newFastPath(timeout time.Duration) *fastPath {
	return &fastPath{
		client: &http.Client{Timeout: timeout},
	}
}

// send posts the trimmed execute payload to the controller. Runs on its
// own goroutine; never blocks the command path.
func (f *fastPath) send(addr, endpoint string, channel int, stateName string, speed int, logger Logger) {
	payload, err := json.Marshal(protocol.NewFastPathCommand(endpoint, channel, stateName, speed))
	if err != nil {
		if logger != nil {
			logger.Warn("fast path encode failed", "endpoint", endpoint, "error", err)
		}
		return
	}

	url := fmt.Sprintf("http://%s/execute", addr)
	resp, err := f.client.Post(url, fastPathContentType, bytes.NewReader(payload))
	if err != nil {
		if logger != nil {
			logger.Debug("fast path call failed", "endpoint", endpoint, "url", url, "error", err)
		}
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if logger != nil {
		logger.Debug("fast path call completed", "endpoint", endpoint, "status", resp.StatusCode)
	}
}
