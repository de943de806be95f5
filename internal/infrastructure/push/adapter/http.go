package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-mensajeria/internal/apperr"
	"go-mensajeria/internal/infrastructure/push/port"
)

const maxErrorBody = 4 << 10

// HTTPSender posts multicast batches as JSON to a push gateway.
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSender(endpoint, apiKey string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{endpoint: endpoint, apiKey: apiKey, client: client}
}

var _ port.Sender = (*HTTPSender)(nil)

func (s *HTTPSender) SendMulticast(ctx context.Context, msg port.MulticastMessage) (port.BatchResponse, error) {
	const op = "push.SendMulticast"

	if len(msg.Tokens) == 0 {
		return port.BatchResponse{}, nil
	}
	if len(msg.Tokens) > port.MaxTokensPerBatch {
		return port.BatchResponse{}, apperr.Validation(op, fmt.Sprintf("at most %d tokens per batch", port.MaxTokensPerBatch))
	}
	blob, err := json.Marshal(msg)
	if err != nil {
		return port.BatchResponse{}, apperr.New(apperr.KindInternal, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(blob))
	if err != nil {
		return port.BatchResponse{}, apperr.New(apperr.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return port.BatchResponse{}, apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return port.BatchResponse{}, apperr.Permission(op, fmt.Errorf("%w: status %d: %s", port.ErrPermission, resp.StatusCode, readSnippet(resp.Body)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return port.BatchResponse{}, apperr.Transient(op, fmt.Errorf("status %d: %s", resp.StatusCode, readSnippet(resp.Body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return port.BatchResponse{}, apperr.New(apperr.KindInternal, op, fmt.Errorf("status %d: %s", resp.StatusCode, readSnippet(resp.Body)))
	}

	var out port.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return port.BatchResponse{}, apperr.New(apperr.KindInternal, op, fmt.Errorf("decode response: %w", err))
	}
	// gateways may omit the token echo; responses are in request order
	for i := range out.Responses {
		if out.Responses[i].Token == "" && i < len(msg.Tokens) {
			out.Responses[i].Token = msg.Tokens[i]
		}
	}
	return out, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(bytes.TrimSpace(b))
}
