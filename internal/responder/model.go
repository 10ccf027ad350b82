package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"xstudio-chat-backend/internal/types"
)

// Model delegates reply generation to an OpenAI-compatible chat backend
// (Ollama's /v1 surface in the default deployment). Upstream deltas are
// re-emitted as accumulated snapshots to keep the transport contract.
type Model struct {
	client *openai.Client
	model  string
	system string
}

// NewModel targets the chat backend at baseURL with the given model. system
// is prepended as the system message on every request.
func NewModel(baseURL, model, system string) *Model {
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &Model{client: openai.NewClientWithConfig(cfg), model: model, system: system}
}

func (m *Model) Stream(ctx context.Context, message string, history []types.Turn, emit func(string) error) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if m.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.system})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	stream, err := m.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		// Anything that prevents the stream from opening counts as the
		// backend being unavailable, including a missing model.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if acc.Len() == 0 {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			// Mid-stream failure: keep what was produced; the caller
			// terminates the stream cleanly.
			return nil
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		acc.WriteString(delta)
		if err := emit(acc.String()); err != nil {
			return err
		}
	}
}
