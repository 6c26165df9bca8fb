package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

const historyLimit = 10

// LLM answers through a prompt template + chat model chain.
type LLM struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	logger       *zap.Logger
}

// NewLLM compiles the reply chain around chatModel.
func NewLLM(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string, logger *zap.Logger) (*LLM, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
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

	return &LLM{
		chain:        runnable,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

// SendMessage implements the chat service gateway.
func (l *LLM) SendMessage(ctx context.Context, history []chat.Entry, message string) (string, error) {
	input := map[string]any{
		"system":  l.systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   message,
	}

	response, err := l.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}

	l.logger.Debug("generated reply", zap.Int("history", len(history)), zap.Int("length", len(content)))
	return content, nil
}

func buildHistoryMessages(entries []chat.Entry) []*schema.Message {
	if len(entries) == 0 {
		return nil
	}

	startIdx := 0
	if len(entries) > historyLimit {
		startIdx = len(entries) - historyLimit
	}

	history := make([]*schema.Message, 0, len(entries)-startIdx)
	for _, e := range entries[startIdx:] {
		switch e.Author {
		case chat.AuthorUser:
			history = append(history, schema.UserMessage(e.Message))
		case chat.AuthorBot:
			history = append(history, schema.AssistantMessage(e.Message, nil))
		}
	}

	return history
}
