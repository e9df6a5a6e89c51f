// Package synth provides the speech synthesis adapter backed by the ElevenLabs
// text-to-speech HTTP API.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/narration-service/internal/core"
)

// API endpoints and paths.
const (
	DefaultBaseURL         = "https://api.elevenlabs.io"
	apiTextToSpeechPattern = "/v1/text-to-speech/%s"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
)

// Default values.
const (
	DefaultModelID = "eleven_multilingual_v2"
	defaultTimeout = 120 * time.Second
)

// Error messages.
const (
	errFmtServiceNonOKStatus = "speech service returned status %d: %s"
)

// Static errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrVoiceIDEmpty    = errors.New("voice id cannot be empty")
	ErrVoiceIDInvalid  = errors.New("voice id is not a valid path segment")
	ErrCredentialEmpty = errors.New("api credential cannot be empty")
	ErrEmptyAudio      = errors.New("received empty audio data")
)

// VoiceSettings is the tuning block of a speech request.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SpeechRequest is the JSON body sent for every synthesis call. It is built fresh
// for each run and never persisted.
type SpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewSpeechRequest builds the request body for text with the given model and tuning.
func NewSpeechRequest(text, modelID string, tuning core.Tuning) SpeechRequest {
	return SpeechRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: VoiceSettings{
			Stability:       tuning.Stability,
			SimilarityBoost: tuning.Similarity,
			Style:           tuning.Style,
			UseSpeakerBoost: true,
		},
	}
}

// StatusError reports a non-success response from the speech service. StatusCode and
// Body are kept verbatim for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
	Detail     string
}

func (e *StatusError) Error() string {
	message := e.Detail
	if message == "" {
		message = e.Body
	}

	return fmt.Sprintf(errFmtServiceNonOKStatus, e.StatusCode, message)
}

// HTTPStatus returns the upstream status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// errorResponse covers both shapes the service uses for "detail": an object with a
// message, or a plain string.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPClient is a client for the ElevenLabs text-to-speech endpoint.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	modelID    string
}

// NewHTTPClient creates a client. Empty baseURL or modelID select the public API and
// DefaultModelID; a non-positive timeout selects a two minute default.
func NewHTTPClient(baseURL, modelID string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if modelID == "" {
		modelID = DefaultModelID
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ModelID returns the synthesis model sent with every request.
func (c *HTTPClient) ModelID() string {
	return c.modelID
}

// Synthesize sends one synthesis request and returns the encoded audio. Any status
// other than 200 is returned as a *StatusError. There is no retry.
func (c *HTTPClient) Synthesize(
	ctx context.Context,
	text, voiceID string,
	tuning core.Tuning,
	credential string,
) ([]byte, error) {
	inputErr := validateInputs(text, voiceID, credential)
	if inputErr != nil {
		return nil, inputErr
	}

	requestBody, err := json.Marshal(NewSpeechRequest(text, c.modelID, tuning))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// The voice id comes from the script header; it must stay a single path segment.
	endpoint := c.baseURL + fmt.Sprintf(apiTextToSpeechPattern, url.PathEscape(voiceID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, core.ContentTypeAudio)
	httpReq.Header.Set(headerAPIKey, credential)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

func validateInputs(text, voiceID, credential string) error {
	if strings.TrimSpace(text) == "" {
		return ErrTextEmpty
	}

	if voiceID == "" {
		return ErrVoiceIDEmpty
	}

	if voiceID == "." || voiceID == ".." {
		return fmt.Errorf("%w: '%s'", ErrVoiceIDInvalid, voiceID)
	}

	if credential == "" {
		return ErrCredentialEmpty
	}

	return nil
}

// parseErrorResponse keeps the raw body and, when the service sent structured JSON,
// extracts the human-readable detail.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Detail:     "",
	}

	var errorResp errorResponse

	if json.Unmarshal(body, &errorResp) != nil || len(errorResp.Detail) == 0 {
		return statusErr
	}

	var detail errorDetail

	if json.Unmarshal(errorResp.Detail, &detail) == nil {
		statusErr.Detail = detail.Message

		return statusErr
	}

	var message string

	if json.Unmarshal(errorResp.Detail, &message) == nil {
		statusErr.Detail = message
	}

	return statusErr
}
