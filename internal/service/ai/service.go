// Package ai generates the companion's replies. Service drives an Ark chat
// model through an eino chain; Scripted is the zero-dependency stand-in used
// when no model credentials are configured.
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/demi-app/demi/backend/internal/companion"
	"github.com/demi-app/demi/backend/internal/config"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

// Responder produces the companion's next reply given the conversation so
// far. Both Service and Scripted satisfy it.
type Responder interface {
	Reply(ctx context.Context, history []protocol.Message, userMessage string) (string, error)
}

// Service runs companion replies through the configured chat model.
type Service struct {
	chatModel model.ChatModel
	profile   companion.Profile
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the reply chain for the given companion profile.
func NewService(ctx context.Context, profile companion.Profile, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, profile: profile, chain: runnable}, nil
}

// Reply generates the companion's answer to userMessage.
func (s *Service) Reply(ctx context.Context, history []protocol.Message, userMessage string) (string, error) {
	input := map[string]any{
		"system":  s.buildSystemPrompt(),
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		return "", fmt.Errorf("model returned empty reply")
	}

	log.Printf("[ai] generated reply, length=%d", len(reply))
	return reply, nil
}

// GetChatModel exposes the underlying model so the emotion classifier can
// reuse it instead of opening a second connection.
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

func (s *Service) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(s.profile.Prompt)
	if s.profile.Tone != "" {
		b.WriteString("\nYour tone: ")
		b.WriteString(s.profile.Tone)
		b.WriteString(".")
	}
	b.WriteString("\nYou are speaking as ")
	b.WriteString(s.profile.Name)
	b.WriteString(". Stay in character and keep replies conversational.")
	return b.String()
}

func buildHistoryMessages(messages []protocol.Message) []*schema.Message {
	const historyLimit = 10

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case protocol.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case protocol.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
