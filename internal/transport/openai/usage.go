package openai

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// EventFromUsage converts a provider usage block into a usage event.
// Zero or negative figures are treated as absent, so a response without a
// usage block yields an event the engine ignores.
func EventFromUsage(u openai.Usage, groupID, userID string) usage.Event {
	return usage.Event{
		GroupID:          groupID,
		UserID:           userID,
		PromptTokens:     positive(u.PromptTokens),
		CompletionTokens: positive(u.CompletionTokens),
		TotalTokens:      positive(u.TotalTokens),
	}
}

// EventFromCompletion reads the usage block of a chat completion response.
func EventFromCompletion(resp openai.ChatCompletionResponse, groupID, userID string) usage.Event {
	return EventFromUsage(resp.Usage, groupID, userID)
}

func positive(n int) *uint64 {
	if n <= 0 {
		return nil
	}
	return usage.Ptr(uint64(n))
}
