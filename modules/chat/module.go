// Package chat is the conversational fallback. It answers greetings, help
// requests and anything no other module claims.
//
// With an API key configured, general requests go to an OpenAI compatible
// chat completion endpoint together with the last few exchanges. Answers are
// cached by normalized text. Without a key, or when the model fails, the
// module answers from a small set of canned replies so the assistant always
// says something.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/nlu"
)

// ModuleName is the unique identifier for the chat module.
const ModuleName = "chat"

const (
	ReplyGreeting = "Hello! I'm SAGE, your assistant. How can I help you today?"
	ReplyHelp     = "I can schedule, cancel and list meetings, tell you the time, and report on my own status. Just ask."
	ReplyQuestion = "That's an interesting question, but I can't look it up right now."
	ReplyGeneral  = "I heard you, but I'm not sure how to help with that yet."
)

// ChatModule answers conversational intents.
type ChatModule struct {
	cfg       ChatConfig
	logger    sage.Logger
	completer Completer
	cache     *responseCache
	now       func() time.Time

	mu      sync.Mutex
	history []Exchange
}

// Option configures the chat module.
type Option func(*ChatModule)

// WithCompleter replaces the OpenAI client.
func WithCompleter(c Completer) Option {
	return func(m *ChatModule) { m.completer = c }
}

// WithClock replaces time.Now for the response cache.
func WithClock(now func() time.Time) Option {
	return func(m *ChatModule) { m.now = now }
}

// New creates the chat module.
func New(opts ...Option) *ChatModule {
	m := &ChatModule{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModule is the registry factory.
func NewModule() sage.Module {
	return New()
}

// Name implements sage.Module.
func (m *ChatModule) Name() string { return ModuleName }

// Init loads the configuration and builds the model client when a key is set.
func (m *ChatModule) Init(_ context.Context, app sage.Application) error {
	if err := app.LoadSection(ModuleName, &m.cfg); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}
	m.logger = sage.ModuleLogger(app.Logger(), ModuleName)
	if m.cfg.APIKey == "" {
		m.cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if m.completer == nil && m.cfg.APIKey != "" {
		m.completer = newOpenAICompleter(m.cfg, &http.Client{Timeout: m.cfg.Timeout})
	}
	if m.completer == nil {
		m.logger.Info("No language model configured, using canned replies")
	}
	m.cache = newResponseCache(m.cfg.CacheSize, m.cfg.CacheTTL, m.now)
	return nil
}

// HandleCommand answers greetings and help directly and sends everything
// else to the model.
func (m *ChatModule) HandleCommand(ctx context.Context, cmd eventbus.Command) (sage.Response, error) {
	switch cmd.Intent.Name {
	case nlu.IntentGreeting:
		return sage.Response{Text: ReplyGreeting}, nil
	case nlu.IntentHelp:
		return sage.Response{Text: ReplyHelp}, nil
	}

	if m.completer == nil {
		return sage.Response{Text: canned(cmd.RawText)}, nil
	}

	key := nlu.Normalize(cmd.RawText)
	if answer, ok := m.cache.get(key); ok {
		m.remember(cmd.RawText, answer)
		return sage.Response{Text: answer}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	answer, err := m.completer.Complete(cctx, m.cfg.SystemPrompt, m.recent(), cmd.RawText)
	if err != nil {
		if ctx.Err() != nil {
			return sage.Response{}, ctx.Err()
		}
		m.logger.Warn("Language model failed, using canned reply", "error", err)
		return sage.Response{Text: canned(cmd.RawText)}, nil
	}

	m.cache.set(key, answer)
	m.remember(cmd.RawText, answer)
	return sage.Response{Text: answer}, nil
}

func canned(text string) string {
	if strings.Contains(text, "?") || startsWithQuestionWord(nlu.Normalize(text)) {
		return ReplyQuestion
	}
	return ReplyGeneral
}

func startsWithQuestionWord(text string) bool {
	first, _, _ := strings.Cut(text, " ")
	switch first {
	case "what", "why", "how", "who", "where", "when", "which", "can", "could", "is", "are", "do", "does":
		return true
	}
	return false
}

func (m *ChatModule) remember(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, Exchange{User: user, Assistant: assistant})
	if extra := len(m.history) - m.cfg.HistorySize; extra > 0 {
		m.history = append(m.history[:0:0], m.history[extra:]...)
	}
}

func (m *ChatModule) recent() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Exchange(nil), m.history...)
}

// Status implements sage.StatusReporter.
func (m *ChatModule) Status() map[string]any {
	size, hits, misses := m.cache.stats()
	m.mu.Lock()
	history := len(m.history)
	m.mu.Unlock()
	return map[string]any{
		"model":       m.cfg.Model,
		"llm":         m.completer != nil,
		"history":     history,
		"cacheSize":   size,
		"cacheHits":   hits,
		"cacheMisses": misses,
	}
}
