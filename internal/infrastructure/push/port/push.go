package port

import (
	"context"
	"errors"
)

// MaxTokensPerBatch caps a single multicast request.
const MaxTokensPerBatch = 500

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// MulticastMessage is one alert addressed to many device tokens.
type MulticastMessage struct {
	Tokens       []string          `json:"tokens"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	CollapseKey  string            `json:"collapse_key,omitempty"`
}

// SendResult is the outcome for a single token, in request order.
type SendResult struct {
	Token     string `json:"token"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BatchResponse struct {
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	Responses    []SendResult `json:"responses"`
}

// Partition splits the response into succeeded and failed tokens.
func (b BatchResponse) Partition() (succeeded, failed []string) {
	for _, r := range b.Responses {
		if r.Success {
			succeeded = append(succeeded, r.Token)
		} else {
			failed = append(failed, r.Token)
		}
	}
	return succeeded, failed
}

// ErrPermission is reported when the transport rejects our credentials or sender id.
var ErrPermission = errors.New("push: permission denied")

// Sender delivers multicast alerts. A returned error means the whole batch failed;
// per-token failures come back in the BatchResponse.
type Sender interface {
	SendMulticast(ctx context.Context, msg MulticastMessage) (BatchResponse, error)
}
