package synth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVoiceID    = "CwhRBWXzGAHq8TQ4Fs17"
	testCredential = "xi-test-key"
	testAudio      = "ID3-mock-mp3-bytes"
)

var testTuning = core.Tuning{Stability: 0.4, Similarity: 0.8, Style: 0.3}

func TestHTTPClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/v1/text-to-speech/"+testVoiceID, request.URL.Path)
		assert.Equal(t, testCredential, request.Header.Get("xi-api-key"))
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		assert.Equal(t, "audio/mpeg", request.Header.Get("Accept"))

		var body map[string]any

		assert.NoError(t, json.NewDecoder(request.Body).Decode(&body))
		assert.Equal(t, "Hello, world!", body["text"])
		assert.Equal(t, "eleven_multilingual_v2", body["model_id"])
		assert.Equal(t, map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.8,
			"style":             0.3,
			"use_speaker_boost": true,
		}, body["voice_settings"])

		responseWriter.Header().Set("Content-Type", "audio/mpeg")
		_, _ = responseWriter.Write([]byte(testAudio))
	}))
	defer server.Close()

	client := synth.NewHTTPClient(server.URL, "", 5*time.Second)

	audio, err := client.Synthesize(context.Background(), "Hello, world!", testVoiceID, testTuning, testCredential)
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), audio)
	assert.Equal(t, synth.DefaultModelID, client.ModelID())
}

func TestHTTPClient_Synthesize_StatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "structured detail",
			status:     http.StatusUnauthorized,
			body:       `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`,
			wantDetail: "Invalid API key",
		},
		{
			name:       "string detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":"text too long"}`,
			wantDetail: "text too long",
		},
		{
			name:       "plain body",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable",
			wantDetail: "",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
				responseWriter.WriteHeader(testCase.status)
				_, _ = responseWriter.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := synth.NewHTTPClient(server.URL, "eleven_turbo_v2", 5*time.Second)

			_, err := client.Synthesize(context.Background(), "Hello", testVoiceID, testTuning, testCredential)
			require.Error(t, err)

			var statusErr *synth.StatusError

			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, testCase.status, statusErr.StatusCode)
			assert.Equal(t, testCase.body, statusErr.Body)
			assert.Equal(t, testCase.wantDetail, statusErr.Detail)
			assert.Contains(t, statusErr.Error(), "status")
		})
	}
}

func TestHTTPClient_Synthesize_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := synth.NewHTTPClient(server.URL, "", 5*time.Second)

	_, err := client.Synthesize(context.Background(), "Hello", testVoiceID, testTuning, testCredential)
	require.ErrorIs(t, err, synth.ErrEmptyAudio)
}

func TestHTTPClient_Synthesize_InvalidInputs(t *testing.T) {
	t.Parallel()

	client := synth.NewHTTPClient("http://127.0.0.1:1", "", time.Second)
	ctx := context.Background()

	_, err := client.Synthesize(ctx, "  ", testVoiceID, testTuning, testCredential)
	require.ErrorIs(t, err, synth.ErrTextEmpty)

	_, err = client.Synthesize(ctx, "Hello", "", testTuning, testCredential)
	require.ErrorIs(t, err, synth.ErrVoiceIDEmpty)

	_, err = client.Synthesize(ctx, "Hello", testVoiceID, testTuning, "")
	require.ErrorIs(t, err, synth.ErrCredentialEmpty)

	for _, voiceID := range []string{".", ".."} {
		_, err = client.Synthesize(ctx, "Hello", voiceID, testTuning, testCredential)
		require.ErrorIs(t, err, synth.ErrVoiceIDInvalid)
	}
}

func TestHTTPClient_Synthesize_EscapesVoiceID(t *testing.T) {
	t.Parallel()

	const voiceID = "../../v1/voices/abc?output_format=pcm_16000"

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/"+url.PathEscape(voiceID), request.URL.EscapedPath())
		assert.Equal(t, "/v1/text-to-speech/"+voiceID, request.URL.Path)
		assert.Empty(t, request.URL.RawQuery)

		responseWriter.Header().Set("Content-Type", "audio/mpeg")
		_, _ = responseWriter.Write([]byte(testAudio))
	}))
	defer server.Close()

	client := synth.NewHTTPClient(server.URL, "", time.Second)

	audio, err := client.Synthesize(context.Background(), "Hello", voiceID, testTuning, testCredential)
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), audio)
}

func TestHTTPClient_Synthesize_Unreachable(t *testing.T) {
	t.Parallel()

	client := synth.NewHTTPClient("http://127.0.0.1:1", "", time.Second)

	_, err := client.Synthesize(context.Background(), "Hello", testVoiceID, testTuning, testCredential)
	require.Error(t, err)
}
