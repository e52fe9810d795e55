package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Exchange is one user/assistant round kept as model context.
type Exchange struct {
	User      string
	Assistant string
}

// Completer produces a conversational answer.
type Completer interface {
	Complete(ctx context.Context, system string, history []Exchange, text string) (string, error)
}

var errEmptyCompletion = errors.New("model returned no answer")

type openAICompleter struct {
	client openai.Client
	model  string
}

func newOpenAICompleter(cfg ChatConfig, httpClient *http.Client) *openAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAICompleter{client: openai.NewClient(opts...), model: cfg.Model}
}

func (c *openAICompleter) Complete(ctx context.Context, system string, history []Exchange, text string) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(history))
	msgs = append(msgs, openai.SystemMessage(system))
	for _, ex := range history {
		msgs = append(msgs, openai.UserMessage(ex.User), openai.AssistantMessage(ex.Assistant))
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(c.model),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errEmptyCompletion
	}
	return answer, nil
}
