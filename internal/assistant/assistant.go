// Package assistant proxies botany questions to an OpenAI-compatible chat
// completions service and caches the answers.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
	"github.com/pozuelo/bioscan/internal/upstream"
)

// ErrEmptyQuestion is returned when the caller supplies no question.
var ErrEmptyQuestion = errors.New("question must not be empty")

const systemPrompt = "Eres un experto botánico especializado en identificación y cuidado de plantas. " +
	"Proporciona información precisa, científica y práctica sobre plantas. " +
	"Tus respuestas deben ser concisas pero informativas. " +
	"Si no estás seguro de algo, indícalo claramente."

// Config holds the chat service connection settings.
type Config struct {
	Endpoint string // base URL, e.g. https://openrouter.ai/api/v1
	APIKey   string
	Model    string
	Referer  string // HTTP-Referer header, identifies the calling site
	Title    string // X-Title header
}

// Service sends prompted conversations to the chat service.
type Service struct {
	config Config
	client *http.Client
	cache  cache.Cache
	logger *zap.Logger
}

// NewService creates an assistant proxy. Calls time out after 10 seconds
// and are never retried.
func NewService(cfg Config, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  c,
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Ask answers a free-text question, optionally scoped to a species. Answers
// are cached by exact question+context; paraphrases always miss.
func (s *Service) Ask(ctx context.Context, question, contextSpecies string) (string, error) {
	if question == "" {
		return "", ErrEmptyQuestion
	}

	key := "assistant:" + question + "|" + contextSpecies
	if data, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("assistant cache hit", zap.String("question", question))
		return string(data), nil
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	if contextSpecies != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: "La consulta es sobre esta planta específica: " + contextSpecies,
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: question})

	body, err := json.Marshal(chatRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   500,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	if s.config.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", s.config.Referer)
	}
	if s.config.Title != "" {
		httpReq.Header.Set("X-Title", s.config.Title)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", &upstream.Error{Service: "assistant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &upstream.Error{
			Service: "assistant",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("chat completion failed: %s", string(respBody)),
		}
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", &upstream.Error{Service: "assistant", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return "", &upstream.Error{Service: "assistant", Err: errors.New("response has no answer text")}
	}

	answer := strings.TrimSpace(chat.Choices[0].Message.Content)
	s.cache.Set(ctx, key, []byte(answer))
	return answer, nil
}
