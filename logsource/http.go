package logsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/proy1234/prplMesh/devices"
)

// HTTP reads logs from a log service: GET <base>/devices/<device>/logs/<log> returns the text.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates an HTTP source. A nil client means http.DefaultClient.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// LogURL returns the resource for one log.
func (h *HTTP) LogURL(device devices.DeviceType, log devices.LogType) string {
	return fmt.Sprintf("%s/devices/%s/logs/%s", h.baseURL, device, log)
}

func (h *HTTP) Log(ctx context.Context, device devices.DeviceType, log devices.LogType) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.LogURL(device, log), nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", notFound(device, log)
	default:
		return "", fmt.Errorf("log service returned status code %d for %s", resp.StatusCode, req.URL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
