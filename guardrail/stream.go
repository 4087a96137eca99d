package guardrail

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/telemetry"
	"github.com/initializ/cip/textutil"
)

// State is the lifecycle state of a Stream.
type State int

const (
	StateOpen State = iota
	StateHalted
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalted:
		return "halted"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateOpen, StateHalted, StateFinalized} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stream state %q", b)
}

// FeedResult is the outcome of one Feed call.
type FeedResult struct {
	// Continue is false once the stream has halted.
	Continue bool
	// Forward is the text now safe to pass to the consumer.
	Forward string
	// Result is set when the stream reached a terminal state.
	Result *Result
}

// Stream evaluates a response chunk by chunk. Each chunk is checked together
// with trailing context from earlier chunks so that matches spanning a
// boundary are caught. A Stream moves from open to exactly one of halted or
// finalized and is safe for concurrent use.
type Stream struct {
	id       string
	p        *Pipeline
	holdback bool

	mu        sync.Mutex
	state     State
	buf       []byte
	forwarded int
	result    *Result
}

// StreamOption configures OpenStream.
type StreamOption func(*Stream)

// WithHoldback withholds the trailing window from forwarding until later
// chunks or finalization clear it, so redacted text is never forwarded.
func WithHoldback() StreamOption {
	return func(s *Stream) { s.holdback = true }
}

// WithStreamID overrides the generated stream id.
func WithStreamID(id string) StreamOption {
	return func(s *Stream) {
		if id != "" {
			s.id = id
		}
	}
}

// OpenStream starts a new stream over p.
func (p *Pipeline) OpenStream(opts ...StreamOption) *Stream {
	s := &Stream{id: uuid.NewString(), p: p}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns everything fed so far.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// Result returns the terminal result, or nil while the stream is open.
func (s *Stream) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Feed appends chunk and checks it with its trailing context. When a
// detector fires the stream halts and the result carries the sanitized text
// accumulated so far. A done ctx halts the stream as cancelled. Feeding a
// closed stream returns ErrStreamClosed.
func (s *Stream) Feed(ctx context.Context, chunk string) (FeedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return FeedResult{Result: s.result}, ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return FeedResult{Result: s.cancelLocked("cancelled: " + err.Error())}, nil
	}

	s.buf = append(s.buf, chunk...)
	start := wordStart(s.buf, len(s.buf)-len(chunk)-s.p.window)
	window := string(s.buf[start:])

	dets := s.p.run(ctx, window, s.id)
	if err := ctx.Err(); err != nil {
		return FeedResult{Result: s.cancelLocked("cancelled: " + err.Error())}, nil
	}
	if fired(dets) {
		// A window hit only halts when the full text confirms it.
		text := string(s.buf)
		full := s.p.run(ctx, text, s.id)
		if err := ctx.Err(); err != nil {
			return FeedResult{Result: s.cancelLocked("cancelled: " + err.Error())}, nil
		}
		if fired(full) {
			return FeedResult{Result: s.haltLocked(text, full)}, nil
		}
	}

	if !s.holdback {
		s.forwarded = len(s.buf)
		return FeedResult{Continue: true, Forward: chunk}, nil
	}
	var fwd string
	if safe := runeStart(s.buf, len(s.buf)-s.p.window); safe > s.forwarded {
		fwd = string(s.buf[s.forwarded:safe])
		s.forwarded = safe
	}
	return FeedResult{Continue: true, Forward: fwd}, nil
}

// Finalize evaluates the complete text and closes the stream. If a detector
// fires on the full text the stream ends halted; otherwise it ends finalized
// with Tail holding anything still owed to the consumer. Finalizing a closed
// stream returns its existing result.
func (s *Stream) Finalize(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return s.result, nil
	}
	if err := ctx.Err(); err != nil {
		return s.cancelLocked("cancelled: " + err.Error()), nil
	}

	text := string(s.buf)
	dets := s.p.run(ctx, text, s.id)
	if err := ctx.Err(); err != nil {
		return s.cancelLocked("cancelled: " + err.Error()), nil
	}
	res := s.p.assemble(text, dets)
	res.StreamID = s.id
	if res.Fired {
		res.State = StateHalted
		res.HaltReason = "guardrail " + res.Detector + ": " + res.Reason
		s.close(res)
		return res, nil
	}
	res.State = StateFinalized
	res.Tail = string(s.buf[s.forwarded:]) + res.Footer
	s.forwarded = len(s.buf)
	s.close(res)
	return res, nil
}

// Cancel halts an open stream without a detection and returns the terminal
// result. Cancelling a closed stream returns its existing result.
func (s *Stream) Cancel(reason string) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return s.result
	}
	return s.cancelLocked(reason)
}

// Run pumps deltas through the stream, forwarding safe text to forward, and
// returns the terminal result. Run stops reading as soon as the stream
// halts; callers should cancel the producer's context afterwards. An
// upstream error or a forward error cancels the stream.
func (s *Stream) Run(ctx context.Context, deltas <-chan llm.StreamDelta, forward func(string) error) (*Result, error) {
	for {
		select {
		case <-ctx.Done():
			return s.Cancel("cancelled: " + ctx.Err().Error()), nil
		case d, ok := <-deltas:
			if !ok {
				return s.finish(ctx, forward)
			}
			if d.Err != nil {
				return s.Cancel("upstream: " + d.Err.Error()), nil
			}
			if d.Content != "" {
				fr, err := s.Feed(ctx, d.Content)
				if err != nil {
					return fr.Result, err
				}
				if fr.Forward != "" && forward != nil {
					if err := forward(fr.Forward); err != nil {
						return s.Cancel("forward: " + err.Error()), nil
					}
				}
				if !fr.Continue {
					return fr.Result, nil
				}
			}
			if d.Done {
				return s.finish(ctx, forward)
			}
		}
	}
}

func (s *Stream) finish(ctx context.Context, forward func(string) error) (*Result, error) {
	res, err := s.Finalize(ctx)
	if err != nil || res == nil {
		return res, err
	}
	if res.State == StateFinalized && res.Tail != "" && forward != nil {
		if err := forward(res.Tail); err != nil {
			return res, err
		}
	}
	return res, nil
}

// haltLocked closes the stream with the full-text detections.
func (s *Stream) haltLocked(text string, dets []detection) *Result {
	res := s.p.assemble(text, dets)
	res.StreamID = s.id
	res.State = StateHalted
	res.HaltReason = "guardrail " + res.Detector + ": " + res.Reason
	s.close(res)
	return res
}

func (s *Stream) cancelLocked(reason string) *Result {
	text := string(s.buf)
	res := s.p.assemble(text, s.p.run(context.Background(), text, s.id))
	res.StreamID = s.id
	res.State = StateHalted
	res.Cancelled = true
	res.HaltReason = reason
	s.close(res)
	return res
}

func (s *Stream) close(res *Result) {
	s.state = res.State
	s.result = res
	s.p.report(res, s.id)
	attrs := map[string]any{
		"stream_id": s.id,
		"bytes":     len(s.buf),
		"fired":     res.Fired,
	}
	if res.State == StateHalted {
		attrs["reason"] = res.HaltReason
		attrs["cancelled"] = res.Cancelled
		telemetry.Emit(s.p.sink, telemetry.EventStreamHalted, attrs)
		return
	}
	telemetry.Emit(s.p.sink, telemetry.EventStreamFinalized, attrs)
}

func fired(dets []detection) bool {
	for _, d := range dets {
		if d.err == nil && d.verdict.Fired {
			return true
		}
	}
	return false
}

// wordStart moves i back to a rune boundary outside any word, so a window
// never opens on a boundary the full text does not have.
func wordStart(b []byte, i int) int {
	i = runeStart(b, i)
	for i > 0 {
		r, n := utf8.DecodeLastRune(b[:i])
		if !textutil.IsWordRune(r) {
			break
		}
		i -= n
	}
	return i
}

func runeStart(b []byte, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(b) {
		return len(b)
	}
	for i > 0 && !utf8.RuneStart(b[i]) {
		i--
	}
	return i
}
