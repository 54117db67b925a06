package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemini-chat/backend/internal/model/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/ai"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
)

// NotifyCompletionFailed is shown to the user when an exchange fails.
const NotifyCompletionFailed = "Failed to get response from AI. Please try again."

// Completer turns a prompt into reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
}

// TokenCounter estimates the token cost of a message.
type TokenCounter interface {
	Count(text string) int
}

// State of the request lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SubmitStatus is the outcome of a Submit call.
type SubmitStatus string

const (
	StatusReplied SubmitStatus = "replied"
	StatusFailed  SubmitStatus = "failed"
	StatusSkipped SubmitStatus = "skipped"
)

// SkipReason explains a skipped submission.
type SkipReason string

const (
	SkipBlank SkipReason = "blank"
	SkipBusy  SkipReason = "busy"
)

// SubmitResult describes what a Submit call did.
type SubmitResult struct {
	Status SubmitStatus  `json:"status"`
	Skip   SkipReason    `json:"skip,omitempty"`
	User   *chat.Message `json:"user,omitempty"`
	Reply  *chat.Message `json:"reply,omitempty"`
	Err    error         `json:"-"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithPublisher sets where session events go.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithIDGenerator replaces uuid.NewString for message ids.
func WithIDGenerator(next func() string) Option {
	return func(c *Controller) {
		if next != nil {
			c.newID = next
		}
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithGreeting overrides the seeded assistant greeting.
func WithGreeting(greeting string) Option {
	return func(c *Controller) {
		c.greeting = greeting
	}
}

// WithTokenCounter enables the running token estimate in snapshots.
func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Controller) {
		c.counter = counter
	}
}

// Controller owns one conversation: its transcript and the single
// outstanding completion request.
type Controller struct {
	completer Completer
	publisher Publisher
	counter   TokenCounter
	newID     func() string
	now       func() time.Time
	greeting  string

	mu         sync.Mutex
	transcript chat.Transcript
	state      State
	version    int64
	tokens     int
	nextTurn   uint64

	// Event batches are published in the order their turns were taken
	// under mu, without holding mu while publishing.
	turnMu  sync.Mutex
	turnCnd *sync.Cond
	serving uint64
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// NewController creates a session seeded with the greeting message.
func NewController(completer Completer, opts ...Option) *Controller {
	c := &Controller{
		completer: completer,
		publisher: nopPublisher{},
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
		greeting:  chat.DefaultGreeting,
	}
	c.turnCnd = sync.NewCond(&c.turnMu)
	for _, opt := range opts {
		opt(c)
	}

	c.transcript = chat.NewTranscript()
	if c.greeting != "" {
		c.appendLocked(chat.RoleAssistant, c.greeting)
	}
	return c
}

// Submit runs one exchange. Blank input, or input arriving while another
// exchange is in flight, is skipped without touching the transcript.
func (c *Controller) Submit(ctx context.Context, rawText string) SubmitResult {
	prompt := strings.TrimSpace(rawText)
	if prompt == "" {
		return SubmitResult{Status: StatusSkipped, Skip: SkipBlank}
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		log.Debug().Str("component", "session").Msg("submission skipped, request in flight")
		return SubmitResult{Status: StatusSkipped, Skip: SkipBusy}
	}
	user := c.appendLocked(chat.RoleUser, prompt)
	c.state = StateAwaiting
	c.version++
	snapshot := c.snapshotLocked()
	turn := c.takeTurnLocked()
	c.mu.Unlock()

	c.publishInTurn(turn,
		events.TranscriptChanged(snapshot),
		events.BusyChanged(true, snapshot.Version),
	)

	reply, err := c.complete(ctx, prompt)
	result := c.finish(user, reply, err)

	log.Info().
		Str("component", "session").
		Str("status", string(result.Status)).
		Str("user_id", user.ID).
		Msg("exchange finished")
	return result
}

// complete calls the completer, turning a panic into a transport failure so
// the session always returns to idle.
func (c *Controller) complete(ctx context.Context, prompt string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ai.CompletionError{Kind: ai.KindTransportFailure, Err: errors.Errorf("completion panicked: %v", r)}
		}
	}()
	return c.completer.Complete(ctx, prompt)
}

func (c *Controller) finish(user chat.Message, reply string, err error) SubmitResult {
	result := SubmitResult{Status: StatusReplied, User: &user}

	switch {
	case err == nil && reply != "":
	case err == nil || ai.IsEmptyResponse(err):
		if err != nil {
			log.Warn().Err(err).Str("component", "session").Msg("empty completion, using fallback reply")
		}
		reply = ai.FallbackReply
	default:
		log.Error().Err(err).Str("component", "session").Msg("completion failed")
		result.Status = StatusFailed
		result.Err = err
	}

	c.mu.Lock()
	if result.Status == StatusReplied {
		msg := c.appendLocked(chat.RoleAssistant, reply)
		result.Reply = &msg
	}
	c.state = StateIdle
	c.version++
	snapshot := c.snapshotLocked()
	turn := c.takeTurnLocked()
	c.mu.Unlock()

	first := events.Notify("error", NotifyCompletionFailed, snapshot.Version)
	if result.Reply != nil {
		first = events.TranscriptChanged(snapshot)
	}
	c.publishInTurn(turn, first, events.BusyChanged(false, snapshot.Version))

	return result
}

func (c *Controller) takeTurnLocked() uint64 {
	turn := c.nextTurn
	c.nextTurn++
	return turn
}

// publishInTurn waits until every earlier turn has been published, then
// publishes evs. Publishers must not call Submit synchronously.
func (c *Controller) publishInTurn(turn uint64, evs ...events.Event) {
	c.turnMu.Lock()
	for c.serving != turn {
		c.turnCnd.Wait()
	}
	c.turnMu.Unlock()

	defer func() {
		c.turnMu.Lock()
		c.serving++
		c.turnCnd.Broadcast()
		c.turnMu.Unlock()
	}()

	for _, ev := range evs {
		c.publisher.Publish(ev)
	}
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() chat.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Messages returns the transcript in insertion order.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Messages()
}

// Busy reports whether a completion is in flight.
func (c *Controller) Busy() bool {
	return c.State() == StateAwaiting
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) appendLocked(role chat.Role, content string) chat.Message {
	msg := chat.Message{
		ID:        c.newID(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
	c.transcript = c.transcript.Append(msg)
	if c.counter != nil {
		c.tokens += c.counter.Count(content)
	}
	c.version++
	return msg
}

func (c *Controller) snapshotLocked() chat.Snapshot {
	return chat.Snapshot{
		Messages:   c.transcript.Messages(),
		Busy:       c.state == StateAwaiting,
		State:      c.state.String(),
		Version:    c.version,
		TokenCount: c.tokens,
	}
}
