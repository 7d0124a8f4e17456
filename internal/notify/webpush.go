package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/liftmatch/internal/models"
)

// HTTPPushGateway posts the payload to each device endpoint URL. A
// 404 or 410 from the provider marks the endpoint expired; transport
// errors count as not sent but keep the endpoint alive.
type HTTPPushGateway struct {
	Client *http.Client
}

func NewHTTPPushGateway(timeout time.Duration) *HTTPPushGateway {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPPushGateway{Client: &http.Client{Timeout: timeout}}
}

func (g *HTTPPushGateway) SendPush(ctx context.Context, endpoints []models.PushEndpoint, payload PushPayload) (PushReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return PushReceipt{}, err
	}
	var receipt PushReceipt
	for _, ep := range endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.Client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			receipt.Expired = append(receipt.Expired, ep)
		case resp.StatusCode < 300:
			receipt.Sent++
		}
	}
	return receipt, nil
}
