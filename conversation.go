package cip

import (
	"context"
	"sync"

	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/runtime"
)

// DefaultMaxHistoryTurns is the number of user/assistant pairs a
// Conversation keeps by default.
const DefaultMaxHistoryTurns = 20

// PromptFunc assembles the outbound messages for one turn. history holds the
// retained earlier turns, oldest first, and must not be modified.
type PromptFunc func(sel *SelectResult, history []llm.Message, userInput string) []llm.Message

// HistoryPrompt sends the retained history followed by the user input. Hosts
// that need system text or scaffold framing supply their own PromptFunc.
func HistoryPrompt(_ *SelectResult, history []llm.Message, userInput string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, llm.Message{Role: llm.RoleUser, Content: userInput})
}

// Turn is one completed exchange.
type Turn struct {
	Number     int                 `json:"number"`
	UserInput  string              `json:"user_input"`
	ScaffoldID string              `json:"scaffold_id"`
	Selection  *SelectResult       `json:"selection"`
	Completion *runtime.Completion `json:"completion"`
}

// Conversation runs successive requests through an Engine, keeping a
// bounded message history and the scaffold chosen for each turn. Turns are
// serialized; a failed turn leaves the conversation unchanged.
type Conversation struct {
	engine   *Engine
	prompt   PromptFunc
	maxTurns int

	mu      sync.Mutex
	history []llm.Message
	turns   []Turn
}

// ConversationOption configures NewConversation.
type ConversationOption func(*Conversation)

// WithMaxHistoryTurns bounds the retained history to n user/assistant pairs.
// Values below one keep the default.
func WithMaxHistoryTurns(n int) ConversationOption {
	return func(c *Conversation) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithPrompt sets the prompt assembly used for every turn.
func WithPrompt(f PromptFunc) ConversationOption {
	return func(c *Conversation) {
		if f != nil {
			c.prompt = f
		}
	}
}

// NewConversation starts an empty conversation over e.
func (e *Engine) NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{engine: e, prompt: HistoryPrompt, maxTurns: DefaultMaxHistoryTurns}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Say selects a scaffold for req, generates a guarded response and records
// the turn. The sanitized content is what enters the history.
func (c *Conversation) Say(ctx context.Context, req SelectRequest) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sel, err := c.engine.Select(req)
	if err != nil {
		return nil, err
	}
	msgs := c.prompt(sel, c.history, req.UserInput)
	comp, err := c.engine.Complete(ctx, &llm.Request{Messages: msgs}, sel.Effective)
	if err != nil {
		return nil, err
	}

	c.history = append(c.history,
		llm.Message{Role: llm.RoleUser, Content: req.UserInput},
		llm.Message{Role: llm.RoleAssistant, Content: comp.Content},
	)
	if limit := c.maxTurns * 2; len(c.history) > limit {
		c.history = append([]llm.Message(nil), c.history[len(c.history)-limit:]...)
	}

	turn := Turn{
		Number:     len(c.turns) + 1,
		UserInput:  req.UserInput,
		ScaffoldID: sel.Selection.ScaffoldID,
		Selection:  sel,
		Completion: comp,
	}
	c.turns = append(c.turns, turn)
	c.engine.logger.Debug("conversation turn", map[string]any{
		"turn":        turn.Number,
		"scaffold_id": turn.ScaffoldID,
		"history":     len(c.history),
	})
	return &turn, nil
}

// History returns a copy of the retained messages.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

// Turns returns a copy of every completed turn, including those whose
// messages have aged out of the history.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

func (c *Conversation) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// LastScaffoldID returns the scaffold of the latest turn, or "".
func (c *Conversation) LastScaffoldID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return ""
	}
	return c.turns[len(c.turns)-1].ScaffoldID
}

// Reset clears the history and turns.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.turns = nil
}
