package llm

import (
	"context"
	"strings"
	"sync"
)

// Mock emits a predefined reply script for deterministic tests and for
// running the examples without any API key. Replies are consumed in
// order; once exhausted, the last one repeats.
type Mock struct {
	mu      sync.Mutex
	Replies []string
	next    int
}

func NewMock(replies ...string) *Mock {
	if len(replies) == 0 {
		replies = []string{"(mock reply)"}
	}
	return &Mock{Replies: replies}
}

func (m *Mock) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reply := m.Replies[m.next]
	if m.next < len(m.Replies)-1 {
		m.next++
	}
	return reply, nil
}

// Stream delivers the scripted reply word by word.
func (m *Mock) Stream(ctx context.Context, messages []Message, fn func(chunk string) error) error {
	reply, err := m.Chat(ctx, messages)
	if err != nil {
		return err
	}

	words := strings.SplitAfter(reply, " ")
	for _, word := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(word); err != nil {
			return err
		}
	}
	return nil
}
