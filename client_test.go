package bananastore_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bananastore "github.com/bananastore/bananastore.go"
	"github.com/bananastore/bananastore.go/internal/fakegen"
	"github.com/bananastore/bananastore.go/pkg/channel"
	"github.com/bananastore/bananastore.go/pkg/logger"
)

func newClient(t *testing.T, server *fakegen.Server, opts ...bananastore.Option) *bananastore.Client {
	t.Helper()
	opts = append(opts,
		bananastore.WithLogger(logger.Discard()),
		bananastore.WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := bananastore.Connect(ctx, server.URL(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		client.Close(closeCtx)
	})
	return client
}

func TestProviders(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.AddStub(fakegen.SimpleStub("providers", map[string]any{
		"providers": map[string]any{
			"openai": map[string]any{
				"label":      "OpenAI",
				"qualities":  []string{"auto", "low", "medium", "high"},
				"ratios":     []string{"1:1", "3:2", "2:3"},
				"ratioSizes": map[string]string{"1:1": "1024x1024"},
				"formats":    []string{"Photo", "Vector"},
				"hasKey":     true,
			},
		},
	}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	providers, err := client.Providers(context.Background())
	require.NoError(t, err)
	require.Contains(t, providers, "openai")
	assert.Equal(t, "OpenAI", providers["openai"].Label)
	assert.True(t, providers["openai"].HasKey)
	assert.Contains(t, providers["openai"].Formats, "Vector")
}

func TestGenerate(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	cost := 0.042
	server.AddStub(fakegen.SimpleStub("generate", map[string]any{
		"provider":              "openai",
		"quality":               "medium",
		"ratio":                 "1:1",
		"format":                "Photo",
		"image_data_url":        "data:image/png;base64,QUJD",
		"used_reference_images": 2,
		"cost_usd":              cost,
	}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	result, err := client.Generate(context.Background(), bananastore.GenerateRequest{
		Provider:    "openai",
		Description: "a cat",
		Quality:     "medium",
		Ratio:       "1:1",
		Format:      "Photo",
		ReferenceImages: []bananastore.ReferenceImage{
			{Name: "ref.png", DataB64: "QUJD", ContentType: "image/png"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", result.ImageDataURL)
	assert.Equal(t, 2, result.UsedReferenceImages)
	require.NotNil(t, result.CostUSD)
	assert.Equal(t, cost, *result.CostUSD)
}

func TestTTSDecodesAudio(t *testing.T) {
	audio := []byte("fake-mp3-bytes")

	server := fakegen.NewServer("127.0.0.1:0")
	server.AddStub(fakegen.SimpleStub("tts", map[string]string{
		"audio_b64": base64.StdEncoding.EncodeToString(audio),
	}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	got, err := client.TTS(context.Background(), "hello", "en")
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestTranscribeEncodesAudio(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.AddStub(fakegen.Stub{
		Matcher: fakegen.RequestMatcher{Action: "transcribe"},
		Result:  map[string]string{"text": "hello world"},
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	text, err := client.Transcribe(context.Background(), []byte("webm-bytes"), "voice.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestSuggestFilename(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.AddStub(fakegen.SimpleStub("suggest-filename", map[string]string{"filename": "cat-in-a-hat"}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	filename, err := client.SuggestFilename(context.Background(), "a cat in a hat")
	require.NoError(t, err)
	assert.Equal(t, "cat-in-a-hat", filename)
}

func TestDescribeImage(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.AddStub(fakegen.SimpleStub("describe-image", map[string]string{"description": "a tabby cat"}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	description, err := client.DescribeImage(context.Background(), "data:image/png;base64,QUJD", "", "en")
	require.NoError(t, err)
	assert.Equal(t, "a tabby cat", description)
}

func TestCostsAndHistory(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	limit := 5.0
	server.AddStub(fakegen.SimpleStub("costs", map[string]any{
		"total_usd":   0.053,
		"limit_usd":   limit,
		"by_category": map[string]float64{"image_generation": 0.042, "prompt": 0.011},
		"by_provider": map[string]float64{"openai": 0.053},
		"entry_count": 2,
	}))
	server.AddStub(fakegen.SimpleStub("costs-history", []map[string]any{
		{
			"category":  "image_generation",
			"provider":  "openai",
			"model":     "gpt-image-1",
			"function":  "generate",
			"cost_usd":  0.042,
			"detail":    map[string]any{"quality": "medium"},
			"timestamp": "2026-08-23T10:00:00+00:00",
		},
	}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	summary, err := client.Costs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.053, summary.TotalUSD)
	require.NotNil(t, summary.LimitUSD)
	assert.Equal(t, limit, *summary.LimitUSD)
	assert.Equal(t, 2, summary.EntryCount)

	history, err := client.CostsHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "image_generation", history[0].Category)
	assert.Equal(t, 0.042, history[0].CostUSD)
}

func TestSetCostLimit(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	limit := 2.5
	server.AddStub(fakegen.SimpleStub("costs-limit", map[string]any{"limit_usd": limit}))
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	got, err := client.SetCostLimit(context.Background(), &limit)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, limit, *got)
}

func TestSpendingLimitErrorSurfaces(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	limit, current, attempted := 5.0, 4.99, 0.042
	server.AddStub(fakegen.Stub{
		Matcher: fakegen.RequestMatcher{Action: "generate"},
		Error: &fakegen.ErrorStub{
			Message:   "Spending limit $5.0000 would be exceeded",
			Code:      429,
			Limit:     &limit,
			Current:   &current,
			Attempted: &attempted,
		},
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)

	_, err := client.Generate(context.Background(), bananastore.GenerateRequest{Provider: "openai"})
	var remote *channel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 429, remote.Code)
	require.NotNil(t, remote.Attempted)
	assert.Equal(t, attempted, *remote.Attempted)
}

func TestClientTokenFromServerPush(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.Token = "session-token"
	require.NoError(t, server.Start())
	defer server.Stop()

	client := newClient(t, server)
	assert.Equal(t, "session-token", client.Token())
}

func TestRejectedUpgrade(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	server.ValidTokens = []string{"only-this"}
	require.NoError(t, server.Start())
	defer server.Stop()

	// The dial is rejected before the WebSocket handshake; Connect keeps
	// retrying until the caller's context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := bananastore.Connect(ctx, server.URL(),
		bananastore.WithToken("wrong"),
		bananastore.WithLogger(logger.Discard()),
		bananastore.WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLogFileCapturesConnectionEvents(t *testing.T) {
	server := fakegen.NewServer("127.0.0.1:0")
	require.NoError(t, server.Start())
	defer server.Stop()

	path := filepath.Join(t.TempDir(), "sdk.log")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := bananastore.Connect(ctx, server.URL(),
		bananastore.WithLogFile(path, zerolog.DebugLevel),
		bananastore.WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	require.NoError(t, err)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	client.Close(closeCtx)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "connection ready")
}
