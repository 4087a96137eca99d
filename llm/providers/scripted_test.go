package providers

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/initializ/cip/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScriptedChat(t *testing.T) {
	p := NewScripted("test-model", "Hello ", "world.")
	resp, err := p.Chat(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello world." {
		t.Errorf("Content = %q", resp.Content)
	}
	if p.ModelID() != "test-model" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}

func TestScriptedStream(t *testing.T) {
	p := NewScripted("m", "a", "b", "c")
	ch, err := p.ChatStream(context.Background(), &llm.Request{Stream: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got string
	done := false
	for d := range ch {
		got += d.Content
		done = done || d.Done
	}
	if got != "abc" || !done {
		t.Errorf("got %q done=%v", got, done)
	}
}

func TestScriptedStreamFailure(t *testing.T) {
	boom := errors.New("upstream timeout")
	p := &Scripted{Chunks: []string{"a", "b", "c"}, FailAfter: 2, Err: boom}
	ch, err := p.ChatStream(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var last llm.StreamDelta
	n := 0
	for d := range ch {
		last = d
		n++
	}
	if n != 3 || !errors.Is(last.Err, boom) {
		t.Errorf("got %d deltas, last err %v", n, last.Err)
	}
}

func TestScriptedStreamCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewScripted("m", "a", "b", "c")
	ch, err := p.ChatStream(ctx, &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-ch
	cancel()
	for range ch {
	}
}
