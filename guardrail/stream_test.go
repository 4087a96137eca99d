package guardrail

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/initializ/cip/llm/providers"
	"github.com/initializ/cip/telemetry"
)

func indicatorSettings(phrases ...string) Settings {
	return Settings{Indicators: []IndicatorSet{{Category: "test", Phrases: phrases}}}
}

func TestStreamHaltsOnFirstChunk(t *testing.T) {
	p := mustPipeline(t, indicatorSettings("the market will"))
	s := p.OpenStream()
	ctx := context.Background()

	fr, err := s.Feed(ctx, "the market will")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Continue {
		t.Fatal("expected stream to halt")
	}
	if fr.Result == nil || fr.Result.State != StateHalted {
		t.Fatalf("unexpected result: %+v", fr.Result)
	}
	if fr.Result.Sanitized != marker {
		t.Errorf("Sanitized = %q", fr.Result.Sanitized)
	}
	if !strings.Contains(fr.Result.HaltReason, "prohibited_indicators") {
		t.Errorf("HaltReason = %q", fr.Result.HaltReason)
	}

	if _, err := s.Feed(ctx, " definitely rise"); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("err = %v, want ErrStreamClosed", err)
	}
	if s.State() != StateHalted {
		t.Errorf("State = %v", s.State())
	}
}

func TestStreamCatchesMatchAcrossChunks(t *testing.T) {
	p := mustPipeline(t, indicatorSettings("guaranteed to"))
	s := p.OpenStream()
	ctx := context.Background()

	fr, err := s.Feed(ctx, "This is guaran")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fr.Continue || fr.Forward != "This is guaran" {
		t.Fatalf("unexpected first feed: %+v", fr)
	}
	fr, err = s.Feed(ctx, "teed to work.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Continue {
		t.Fatal("expected halt on second chunk")
	}
	if want := "This is " + marker + " work."; fr.Result.Sanitized != want {
		t.Errorf("Sanitized = %q, want %q", fr.Result.Sanitized, want)
	}
	if fr.Result.Evidence[0].Start != 8 {
		t.Errorf("evidence offset = %d, want 8", fr.Result.Evidence[0].Start)
	}
}

func TestStreamWindowInsideWord(t *testing.T) {
	p := mustPipeline(t, indicatorSettings("rise"))
	s := p.OpenStream()
	ctx := context.Background()

	// The second feed's window would open on the "r" of "sunrise".
	first := strings.Repeat("a ", 24) + "sunrise" + strings.Repeat(" ", p.Window()-4)
	for _, c := range []string{first, "."} {
		fr, err := s.Feed(ctx, c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fr.Continue || fr.Forward != c {
			t.Fatalf("unexpected feed result: %+v", fr)
		}
	}
	res, err := s.Finalize(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFinalized || res.Fired {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Sanitized != first+"." {
		t.Errorf("Sanitized = %q", res.Sanitized)
	}

	batch, err := p.Evaluate(ctx, first+".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Fired {
		t.Error("batch evaluation should agree with the stream")
	}
}

func TestStreamFinalizeAppendsFooter(t *testing.T) {
	sink := &telemetry.MemorySink{}
	p := mustPipeline(t, Settings{Disclaimers: []string{"Past results vary."}}, WithSink(sink))
	s := p.OpenStream()
	ctx := context.Background()

	var forwarded strings.Builder
	for _, c := range []string{"Hello", " world."} {
		fr, err := s.Feed(ctx, c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		forwarded.WriteString(fr.Forward)
	}
	res, err := s.Finalize(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFinalized {
		t.Fatalf("State = %v", res.State)
	}
	footer := "\n\n---\nDisclaimers:\n- Past results vary."
	if res.Tail != footer {
		t.Errorf("Tail = %q", res.Tail)
	}
	if forwarded.String()+res.Tail != res.Sanitized {
		t.Errorf("forwarded+tail = %q, sanitized = %q", forwarded.String()+res.Tail, res.Sanitized)
	}
	if got := len(sink.Named(telemetry.EventStreamFinalized)); got != 1 {
		t.Errorf("finalized events = %d, want 1", got)
	}

	again, err := s.Finalize(ctx)
	if err != nil || again != res {
		t.Errorf("second Finalize = %v, %v; want same result", again, err)
	}
}

func TestStreamHoldback(t *testing.T) {
	p := mustPipeline(t, Settings{})
	s := p.OpenStream(WithHoldback())
	ctx := context.Background()

	fr, err := s.Feed(ctx, "short")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Forward != "" {
		t.Errorf("Forward = %q, want held back", fr.Forward)
	}
	long := strings.Repeat("x", 300)
	fr, err = s.Feed(ctx, long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 305 - DefaultStreamContext; len(fr.Forward) != want {
		t.Errorf("forwarded %d bytes, want %d", len(fr.Forward), want)
	}
	res, err := s.Finalize(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Forward+res.Tail != "short"+long {
		t.Error("forwarded text and tail do not add up to the input")
	}
}

func TestStreamFeedCancelledContext(t *testing.T) {
	sink := &telemetry.MemorySink{}
	p := mustPipeline(t, Settings{}, WithSink(sink))
	s := p.OpenStream()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fr, err := s.Feed(ctx, "anything")
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if fr.Continue || !fr.Result.Cancelled || fr.Result.State != StateHalted {
		t.Fatalf("unexpected result: %+v", fr.Result)
	}
	if got := len(sink.Named(telemetry.EventStreamHalted)); got != 1 {
		t.Errorf("halted events = %d, want 1", got)
	}
}

func TestStreamCancel(t *testing.T) {
	p := mustPipeline(t, indicatorSettings("forbidden"))
	s := p.OpenStream()
	if _, err := s.Feed(context.Background(), "partial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := s.Cancel("client went away")
	if !res.Cancelled || res.HaltReason != "client went away" || res.Sanitized != "partial" {
		t.Errorf("unexpected result: %+v", res)
	}
	if s.Cancel("again") != res {
		t.Error("second Cancel should return the first result")
	}
}

// laterDetector fires from its nth call onward.
type laterDetector struct {
	calls atomic.Int32
	from  int32
}

func (d *laterDetector) Name() string { return "later" }

func (d *laterDetector) Detect(_ context.Context, text string) (Verdict, error) {
	if d.calls.Add(1) < d.from {
		return Verdict{}, nil
	}
	return Verdict{Fired: true, Reason: "late", Matches: []Match{{Start: 0, End: len(text)}}}, nil
}

func TestStreamFinalizeCanHalt(t *testing.T) {
	p := mustPipeline(t, Settings{}, WithDetectors(&laterDetector{from: 2}))
	s := p.OpenStream()
	if _, err := s.Feed(context.Background(), "fine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateHalted || res.Detector != "later" || res.Tail != "" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestStreamRun(t *testing.T) {
	p := mustPipeline(t, Settings{Disclaimers: []string{"Educational only."}})
	src := providers.NewScripted("test", "Hello ", "there", ".")
	ctx := context.Background()
	deltas, err := src.ChatStream(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out strings.Builder
	res, err := p.OpenStream().Run(ctx, deltas, func(s string) error {
		out.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFinalized {
		t.Fatalf("State = %v", res.State)
	}
	want := "Hello there.\n\n---\nDisclaimers:\n- Educational only."
	if out.String() != want {
		t.Errorf("forwarded %q, want %q", out.String(), want)
	}
}

func TestStreamRunHaltsAndStopsReading(t *testing.T) {
	p := mustPipeline(t, indicatorSettings("guaranteed to"))
	src := providers.NewScripted("test", "We ", "guarantee", "d to win", " big", " forever")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deltas, err := src.ChatStream(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out strings.Builder
	res, err := p.OpenStream().Run(ctx, deltas, func(s string) error {
		out.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateHalted || res.Cancelled {
		t.Fatalf("unexpected result: %+v", res)
	}
	if out.String() != "We guarantee" {
		t.Errorf("forwarded %q", out.String())
	}
	if res.Sanitized != "We "+marker+" win" {
		t.Errorf("Sanitized = %q", res.Sanitized)
	}
}

func TestStreamRunUpstreamError(t *testing.T) {
	p := mustPipeline(t, Settings{})
	src := &providers.Scripted{Chunks: []string{"a", "b"}, FailAfter: 1, Err: errors.New("connection reset")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deltas, err := src.ChatStream(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := p.OpenStream().Run(ctx, deltas, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cancelled || res.HaltReason != "upstream: connection reset" {
		t.Errorf("unexpected result: %+v", res)
	}
}
