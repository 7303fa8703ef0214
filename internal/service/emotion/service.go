// Package emotion computes the mood vector attached to companion messages.
// It prefers an LLM classifier and falls back to keyword heuristics when the
// model is unavailable or returns garbage.
package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/demi-app/demi/backend/internal/analysis/emotion"
	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

const emotionSystemPrompt = `You rate the emotional state of a companion character after it has just sent a reply in a conversation.
Respond with a single JSON object and nothing else. Keys: happiness, sadness, anger, fear, surprise, disgust, trust, anticipation, loneliness, excitement, frustration, affection.
Each value is a number between 0 and 1 describing the companion's current intensity on that axis.`

const emotionUserPrompt = `Recent conversation:
{history}

User's latest message: {user_message}
Companion's reply: {assistant_reply}

JSON:`

// Config controls the classifier.
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Service classifies the companion's mood after each reply.
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(user, assistant string) emotion.State
	historyLimit int
}

// NewService creates the classifier. chatModel may be nil, in which case
// only the heuristic fallback runs.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.FromText,
		historyLimit: historyLimit,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(emotionSystemPrompt),
		schema.UserMessage(emotionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the LLM path is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify returns the companion's mood after sending assistantReply. Never
// fails: any classifier problem degrades to the keyword heuristic.
func (s *Service) Classify(ctx context.Context, history []protocol.Message, userMessage, assistantReply string) emotion.State {
	if !s.Enabled() {
		return s.fallback(userMessage, assistantReply)
	}

	input := map[string]any{
		"history":         formatHistory(history, s.historyLimit),
		"user_message":    strings.TrimSpace(userMessage),
		"assistant_reply": strings.TrimSpace(assistantReply),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		log.Printf("[emotion] classifier invoke failed, using fallback: %v", err)
		return s.fallback(userMessage, assistantReply)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallback(userMessage, assistantReply)
	}

	state, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[emotion] classifier output parse failed, using fallback: %v", err)
		return s.fallback(userMessage, assistantReply)
	}

	return state
}

// parseClassifierOutput extracts the JSON object from the model's reply.
func parseClassifierOutput(content string) (emotion.State, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return emotion.State{}, fmt.Errorf("missing json object")
	}

	var state emotion.State
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &state); err != nil {
		return emotion.State{}, err
	}
	state.Clamp()
	return state, nil
}

func formatHistory(messages []protocol.Message, limit int) string {
	if len(messages) == 0 {
		return "(no prior messages)"
	}
	if limit < 1 {
		limit = 1
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var b strings.Builder
	for _, msg := range messages {
		role := "user"
		if msg.Sender == protocol.SenderAssistant {
			role = "companion"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
