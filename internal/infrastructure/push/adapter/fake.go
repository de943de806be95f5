package adapter

import (
	"context"
	"sync"

	"go-mensajeria/internal/infrastructure/push/port"
)

// FakeSender records every batch and answers from a scripted outcome. Used by tests and
// by local runs without a push gateway, where it only logs through its caller.
type FakeSender struct {
	mu      sync.Mutex
	sent    []port.MulticastMessage
	failing map[string]string
	err     error
}

func NewFakeSender() *FakeSender {
	return &FakeSender{failing: make(map[string]string)}
}

// FailToken makes token fail with code in every later batch.
func (f *FakeSender) FailToken(token, code string) {
	f.mu.Lock()
	f.failing[token] = code
	f.mu.Unlock()
}

// FailBatch makes every later call fail as a whole with err.
func (f *FakeSender) FailBatch(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeSender) Sent() []port.MulticastMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]port.MulticastMessage(nil), f.sent...)
}

func (f *FakeSender) SendMulticast(ctx context.Context, msg port.MulticastMessage) (port.BatchResponse, error) {
	if err := ctx.Err(); err != nil {
		return port.BatchResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return port.BatchResponse{}, f.err
	}
	var out port.BatchResponse
	for _, tok := range msg.Tokens {
		if code, bad := f.failing[tok]; bad {
			out.FailureCount++
			out.Responses = append(out.Responses, port.SendResult{Token: tok, Code: code, Error: code})
			continue
		}
		out.SuccessCount++
		out.Responses = append(out.Responses, port.SendResult{Token: tok, Success: true, MessageID: "fake:" + tok})
	}
	return out, nil
}

var _ port.Sender = (*FakeSender)(nil)
