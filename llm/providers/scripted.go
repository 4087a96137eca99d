// Package providers holds in-process generation providers.
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/initializ/cip/llm"
)

// Scripted replays a fixed sequence of chunks. It stands in for a network
// provider in tests, demos and offline runs.
type Scripted struct {
	Model  string
	Chunks []string
	// Delay is slept before each chunk.
	Delay time.Duration
	// FailAfter, when positive, sends Err after that many chunks.
	FailAfter int
	Err       error
}

// NewScripted returns a provider that streams chunks in order.
func NewScripted(model string, chunks ...string) *Scripted {
	return &Scripted{Model: model, Chunks: chunks}
}

// ModelID returns the configured model name.
func (s *Scripted) ModelID() string { return s.Model }

// Chat returns the concatenated chunks.
func (s *Scripted) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAfter > 0 && s.Err != nil {
		return nil, s.Err
	}
	content := strings.Join(s.Chunks, "")
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		Usage:        llm.Usage{CompletionTokens: len(s.Chunks), TotalTokens: len(s.Chunks)},
	}, nil
}

// ChatStream sends each chunk as a delta, then a final Done delta. The
// channel is closed when the script ends or ctx is cancelled.
func (s *Scripted) ChatStream(ctx context.Context, req *llm.Request) (<-chan llm.StreamDelta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamDelta)
	go func() {
		defer close(ch)
		send := func(d llm.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for i, c := range s.Chunks {
			if s.FailAfter > 0 && i == s.FailAfter && s.Err != nil {
				send(llm.StreamDelta{Err: s.Err})
				return
			}
			if s.Delay > 0 {
				t := time.NewTimer(s.Delay)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return
				}
			}
			if !send(llm.StreamDelta{Content: c}) {
				return
			}
		}
		send(llm.StreamDelta{Done: true, FinishReason: "stop"})
	}()
	return ch, nil
}
