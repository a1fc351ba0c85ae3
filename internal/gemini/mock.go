package gemini

import (
	"context"
	"sync"
)

// MockGenerator replays scripted replies for tests and offline runs.
type MockGenerator struct {
	mu sync.Mutex

	// Replies are consumed in order by StreamGenerate; the last one is
	// reused when the script runs out.
	Replies []MockReply

	// GenerateFunc overrides Generate when set.
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// StreamErr fails every StreamGenerate call when set.
	StreamErr error

	StreamCalls   []StreamRequest
	GenerateCalls []GenerateRequest
}

type MockReply struct {
	Chunks    []string
	Signature string
}

func (m *MockGenerator) StreamGenerate(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	m.mu.Lock()
	m.StreamCalls = append(m.StreamCalls, req)
	n := len(m.StreamCalls) - 1
	err := m.StreamErr
	var reply MockReply
	if len(m.Replies) > 0 {
		if n >= len(m.Replies) {
			n = len(m.Replies) - 1
		}
		reply = m.Replies[n]
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		for _, chunk := range reply.Chunks {
			select {
			case events <- StreamEvent{Text: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if reply.Signature != "" {
			select {
			case events <- StreamEvent{Signature: reply.Signature}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &GenerateResult{Text: "{}"}, nil
}

// StreamCallCount returns how many streaming calls were made.
func (m *MockGenerator) StreamCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StreamCalls)
}

// GenerateCallCount returns how many one-shot calls were made.
func (m *MockGenerator) GenerateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}
