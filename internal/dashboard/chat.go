package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finboard/internal/core"
	"finboard/internal/gateway"
	"finboard/internal/log"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

var (
	greeting     = Message{Role: RoleAssistant, Content: "Hi! I'm your AI finance assistant. Ask me anything about your finances!"}
	clearedReply = Message{Role: RoleAssistant, Content: "Chat cleared! How can I help you today?"}
)

const (
	emptyReply  = "Sorry, something went wrong."
	failedReply = "Sorry, I couldn't process your request. Please try again."
)

var ErrEmptyMessage = errors.New("message is empty")

// Transcript returns the conversation so far, oldest first.
func (d *Dashboard) Transcript() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.chat...)
}

// Send asks the assistant about the current finances. The context carries
// the income, the validated expenses and the goals; goals are fetched on a
// best-effort basis. On failure an apology is added to the transcript and
// the error is returned.
func (d *Dashboard) Send(ctx context.Context, message string) (Message, error) {
	if strings.TrimSpace(message) == "" {
		return Message{}, ErrEmptyMessage
	}
	d.appendChat(Message{Role: RoleUser, Content: message})

	reply, err := d.api.Chat(ctx, message, d.chatContext(ctx))
	if err != nil {
		d.logger.WarnContext(ctx, "Chat request failed",
			log.NewFields().
				WithOperation(log.OpChat).
				WithError(err).
				ToSlice()...)
		d.appendChat(Message{Role: RoleAssistant, Content: failedReply})
		return Message{}, fmt.Errorf("chat: %w", err)
	}

	content := reply.Response
	if content == "" {
		content = reply.Error
	}
	if content == "" {
		content = emptyReply
	}
	out := Message{Role: RoleAssistant, Content: content}
	d.appendChat(out)
	return out, nil
}

// ClearChat clears the server-side conversation, then the transcript.
func (d *Dashboard) ClearChat(ctx context.Context) error {
	if err := d.api.ClearChat(ctx); err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	d.mu.Lock()
	d.chat = []Message{clearedReply}
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) chatContext(ctx context.Context) gateway.ChatContext {
	income, err := core.ParseIncome(d.state.Snapshot().Income)
	if err != nil {
		income = 0
	}

	goals, err := d.api.ListGoals(ctx)
	if err != nil {
		d.logger.DebugContext(ctx, "Chat context without goals", log.FieldError, err)
		goals = []gateway.Goal{}
	}
	if goals == nil {
		goals = []gateway.Goal{}
	}

	return gateway.ChatContext{
		Income:   income,
		Expenses: d.derived.Current().Expenses,
		Goals:    goals,
	}
}

func (d *Dashboard) appendChat(m Message) {
	d.mu.Lock()
	d.chat = append(d.chat, m)
	d.mu.Unlock()
}
