// Package translate provides the text translation adapter.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/narration-service/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// Default values.
const (
	DefaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

const systemPromptFormat = "You are a translation engine. Translate the user's text from %s to %s. " +
	"Reply with the translation only. Preserve paragraph breaks. Do not add notes, quotes or commentary."

// Static errors.
var (
	ErrTargetLanguageEmpty = errors.New("target language cannot be empty")
	ErrEmptyTranslation    = errors.New("translation service returned no text")
	ErrCredentialsNil      = errors.New("translation credential source cannot be nil")
)

// OpenAITranslator translates text with a chat completion model.
type OpenAITranslator struct {
	credentials core.CredentialSource
	httpClient  *http.Client
	baseURL     string
	model       string
}

// NewOpenAITranslator creates a translator. An empty baseURL selects the public
// OpenAI endpoint, an empty model selects DefaultModel and a non-positive timeout
// selects a one minute default.
func NewOpenAITranslator(
	credentials core.CredentialSource,
	baseURL, model string,
	timeout time.Duration,
) (*OpenAITranslator, error) {
	if credentials == nil {
		return nil, ErrCredentialsNil
	}

	if model == "" {
		model = DefaultModel
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAITranslator{
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		model:       model,
	}, nil
}

// Translate returns text translated from sourceLang to targetLang.
func (t *OpenAITranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if targetLang == "" {
		return "", ErrTargetLanguageEmpty
	}

	apiKey, err := t.credentials.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain translation credential: %w", err)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if t.baseURL != "" {
		clientConfig.BaseURL = t.baseURL
	}

	clientConfig.HTTPClient = t.httpClient

	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPromptFormat, sourceLang, targetLang)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("translation request to %s failed: %w", targetLang, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyTranslation
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return "", ErrEmptyTranslation
	}

	return translated, nil
}
