// Package session holds the client side of the assistant: the transcript,
// the streaming merge, and the lead-capture flow. Lead-capture turns are
// answered locally and never reach the response generator; only ordinary
// chat turns go over the transport.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"xstudio-chat-backend/internal/intent"
	"xstudio-chat-backend/internal/types"
)

// Message is one transcript entry. Content is mutable while Streaming is
// set; each server snapshot replaces it wholesale.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming,omitempty"`
}

// QuickAction is a canned prompt offered before the user types anything.
type QuickAction struct {
	ID      string
	Label   string
	Message string
}

var QuickActions = []QuickAction{
	{ID: "services", Label: "Services", Message: "What services does Xstudio offer?"},
	{ID: "pricing", Label: "Pricing / Get Quote", Message: "I need a quote for my project"},
	{ID: "contact", Label: "Contact", Message: "How can I contact Xstudio?"},
	{ID: "cases", Label: "Case Studies", Message: "Show me your case studies and portfolio"},
	{ID: "consultation", Label: "Book Free Consultation", Message: "I want to book a free consultation"},
}

// ErrBusy is returned when a send arrives while a reply is still streaming.
var ErrBusy = errors.New("a reply is still streaming")

// Session owns one conversation. It is a single-actor structure: all calls
// must come from one goroutine, mirroring a single browser tab.
type Session struct {
	store     Store
	transport Transport
	phone     string

	// OnUpdate, when set, is invoked with the assistant message after each
	// streamed snapshot so a UI can re-render while content grows.
	OnUpdate func(Message)

	messages  []Message
	lead      intent.LeadData
	capturing bool
	lastUser  string
	streaming bool
}

// New builds a session, rehydrating any persisted transcript.
func New(store Store, transport Transport, phone string) (*Session, error) {
	s := &Session{store: store, transport: transport, phone: phone}
	data, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if found {
		if err := json.Unmarshal(data, &s.messages); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	return s, nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Capturing reports whether the session is mid lead-capture.
func (s *Session) Capturing() bool { return s.capturing }

// Lead exposes the partial lead for inspection.
func (s *Session) Lead() intent.LeadData { return s.lead }

// Send records a user turn and produces the assistant reply: a scripted
// capture prompt when the turn belongs to the lead flow, a streamed answer
// otherwise. Transport failures leave an inline error message in the
// transcript and return a retryable error.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	if err := intent.ValidateInput(text); err != nil {
		return Message{}, err
	}
	if s.streaming {
		return Message{}, ErrBusy
	}

	s.lastUser = text
	s.append(types.RoleUser, text, false)

	if s.capturing {
		return s.captureTurn(text)
	}

	res := intent.NextStep(text, s.lead)
	if res.HasBuyingIntent && res.NeedsLeadCapture {
		s.capturing = true
		s.lead = res.Lead
		return s.say(intent.StepPrompt(res.CurrentStep))
	}

	return s.streamReply(ctx, text)
}

// Retry resends the last user turn after a transport failure. The failed
// user entry is dropped so the resend does not duplicate it.
func (s *Session) Retry(ctx context.Context) (Message, error) {
	if s.lastUser == "" {
		return Message{}, errors.New("nothing to retry")
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == types.RoleUser {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	return s.Send(ctx, s.lastUser)
}

// Clear wipes the in-memory conversation, the partial lead, and the
// persisted copy.
func (s *Session) Clear() error {
	s.messages = nil
	s.lead = intent.LeadData{}
	s.capturing = false
	s.lastUser = ""
	return s.store.Clear()
}

func (s *Session) captureTurn(text string) (Message, error) {
	step := intent.ActiveStep(s.lead)
	if step == intent.StepServices && intent.DetectBuyingIntent(text) {
		// An intent-bearing message naming catalog services skips the
		// checklist answer; a plain reply is treated as the selection.
		if detected := intent.DetectServices(text); len(detected) > 0 {
			s.lead.Services = detected
			return s.advance()
		}
	}
	s.lead = intent.ApplyAnswer(step, text, s.lead)
	return s.advance()
}

func (s *Session) advance() (Message, error) {
	next := intent.ActiveStep(s.lead)
	if next == intent.StepComplete {
		summary := intent.QuoteSummary(s.lead, s.phone)
		// Capture is done: discard the lead and leave capture mode.
		s.lead = intent.LeadData{}
		s.capturing = false
		return s.say(summary)
	}
	return s.say(intent.StepPrompt(next))
}

func (s *Session) streamReply(ctx context.Context, text string) (Message, error) {
	history := s.history()

	msg := s.append(types.RoleAssistant, "", true)
	s.streaming = true
	defer func() { s.streaming = false }()

	err := s.transport.Stream(ctx, text, history, func(snapshot string) {
		// Snapshot convention: replace, never append.
		s.setContent(msg.ID, snapshot, true)
	})
	if err != nil {
		s.setContent(msg.ID, fmt.Sprintf("Sorry, I encountered an error: %v. Please try again.", err), false)
		return s.find(msg.ID), err
	}

	s.setContent(msg.ID, s.find(msg.ID).Content, false)
	if err := s.persist(); err != nil {
		return s.find(msg.ID), err
	}
	return s.find(msg.ID), nil
}

// history converts settled transcript entries to wire turns, excluding the
// user message currently being answered.
func (s *Session) history() []types.Turn {
	var turns []types.Turn
	for _, m := range s.messages[:len(s.messages)-1] {
		if m.Streaming {
			continue
		}
		turns = append(turns, types.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (s *Session) say(content string) (Message, error) {
	msg := s.append(types.RoleAssistant, content, false)
	return msg, s.persist()
}

func (s *Session) append(role, content string, streaming bool) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Streaming: streaming,
	}
	s.messages = append(s.messages, msg)
	_ = s.persist()
	return msg
}

func (s *Session) setContent(id, content string, streaming bool) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.messages[i].Streaming = streaming
			_ = s.persist()
			// The final settle repeats the last snapshot; only live updates
			// need a redraw.
			if streaming && s.OnUpdate != nil {
				s.OnUpdate(s.messages[i])
			}
			return
		}
	}
}

func (s *Session) find(id string) Message {
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return Message{}
}

func (s *Session) persist() error {
	if len(s.messages) == 0 {
		return s.store.Clear()
	}
	data, err := json.Marshal(s.messages)
	if err != nil {
		return err
	}
	return s.store.Save(data)
}
