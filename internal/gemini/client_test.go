package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type fakeTransport struct {
	text  string
	err   error
	calls int
	last  *generatePayload
}

func (f *fakeTransport) generate(ctx context.Context, payload *generatePayload) (string, error) {
	f.calls++
	f.last = payload
	return f.text, f.err
}

func testClient(t *testing.T, primary, fallback transport) *client {
	t.Helper()
	return &client{
		log: testLogger(t).With("service", "GeminiClient"),
		cfg: Config{
			FlashModel:      "gemini-3-flash-preview",
			ProModel:        "gemini-3-pro-preview",
			MaxOutputTokens: 8192,
		},
		primary:  primary,
		fallback: fallback,
	}
}

func TestNewClientDirectRequiresCredential(t *testing.T) {
	_, err := NewClient(testLogger(t), Config{Mode: "direct"})
	if !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("err = %v, want ErrCredentialMissing", err)
	}
}

func TestNewClientProxyRequiresURL(t *testing.T) {
	if _, err := NewClient(testLogger(t), Config{Mode: "proxy"}); err == nil {
		t.Fatalf("expected error for proxy mode without proxy url")
	}
}

func TestNewClientRejectsUnknownMode(t *testing.T) {
	if _, err := NewClient(testLogger(t), Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown transport mode")
	}
}

func TestGenerateFallsBackOnProxyUnavailable(t *testing.T) {
	primary := &fakeTransport{err: ErrProxyUnavailable}
	fallback := &fakeTransport{text: `{"ok": true}`}
	c := testClient(t, primary, fallback)

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.calls, fallback.calls)
	}
	if !resp.Data.OK {
		t.Fatalf("expected parsed JSON from fallback path")
	}
}

func TestGenerateFallsBackOnTimeoutAndNotFound(t *testing.T) {
	for _, primaryErr := range []error{
		ErrGatewayTimeout,
		&BackendError{StatusCode: http.StatusNotFound, Message: "no such function"},
	} {
		primary := &fakeTransport{err: primaryErr}
		fallback := &fakeTransport{text: `{"ok": true}`}
		c := testClient(t, primary, fallback)

		if _, err := c.Generate(context.Background(), Request{Prompt: "hi"}); err != nil {
			t.Fatalf("generate with %v: %v", primaryErr, err)
		}
		if fallback.calls != 1 {
			t.Fatalf("fallback calls = %d for %v, want 1", fallback.calls, primaryErr)
		}
	}
}

func TestGenerateDoesNotFallBackOnBackendRejection(t *testing.T) {
	primary := &fakeTransport{err: &BackendError{StatusCode: http.StatusTooManyRequests, Message: "quota"}}
	fallback := &fakeTransport{text: `{"ok": true}`}
	c := testClient(t, primary, fallback)

	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})
	var be *BackendError
	if !errors.As(err, &be) || be.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want the original backend rejection", err)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback ran %d times for a non-retriable failure", fallback.calls)
	}
}

func TestGenerateMalformedJSON(t *testing.T) {
	primary := &fakeTransport{text: "the model ignored the format entirely"}
	c := testClient(t, primary, nil)

	_, err := c.Generate(context.Background(), Request{Prompt: "hi", ResponseType: ResponseJSON})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestGenerateTextResponseSkipsParsing(t *testing.T) {
	primary := &fakeTransport{text: "plain prose"}
	c := testClient(t, primary, nil)

	resp, err := c.Generate(context.Background(), Request{Prompt: "hi", ResponseType: ResponseText})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "plain prose" || resp.Data.OK {
		t.Fatalf("text response should carry raw text only, got %+v", resp)
	}
}

func TestBuildPayloadInlinesTextAttachment(t *testing.T) {
	c := testClient(t, nil, nil)
	payload, err := c.buildPayload(Request{
		Prompt: "Summarize.",
		Attachment: &types.FileAttachment{
			Data:     "aGVsbG8gd29ybGQ=", // "hello world"
			MimeType: "text/plain",
			Name:     "notes.txt",
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	text := payload.contents[len(payload.contents)-1].Parts[0].Text
	if !strings.Contains(text, "[DOCUMENT CONTEXT START]") || !strings.Contains(text, "hello world") {
		t.Fatalf("text attachment not inlined:\n%s", text)
	}
}

func TestBuildPayloadBinaryAttachment(t *testing.T) {
	c := testClient(t, nil, nil)
	payload, err := c.buildPayload(Request{
		Prompt: "Analyze.",
		Attachment: &types.FileAttachment{
			Data:     "JVBERi0=",
			MimeType: "application/pdf",
			Name:     "slides.pdf",
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	parts := payload.contents[len(payload.contents)-1].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MimeType != "application/pdf" {
		t.Fatalf("pdf should produce an inlineData part, got %+v", parts)
	}
}

func TestBuildPayloadUnsupportedAttachment(t *testing.T) {
	c := testClient(t, nil, nil)
	payload, err := c.buildPayload(Request{
		Prompt: "Analyze.",
		Attachment: &types.FileAttachment{
			Data:     "UEsDBA==",
			MimeType: "application/zip",
			Name:     "archive.zip",
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	text := payload.contents[len(payload.contents)-1].Parts[0].Text
	if !strings.Contains(text, "[WARNING: Unsupported Binary File: archive.zip]") {
		t.Fatalf("unsupported mime should degrade to a placeholder:\n%s", text)
	}
}

func TestBuildPayloadDefaults(t *testing.T) {
	c := testClient(t, nil, nil)
	payload, err := c.buildPayload(Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload.model != "gemini-3-flash-preview" {
		t.Fatalf("model = %q, want flash default", payload.model)
	}
	if payload.config.Temperature != 0.1 {
		t.Fatalf("temperature = %v, want 0.1", payload.config.Temperature)
	}
	if payload.config.ResponseMimeType != "application/json" {
		t.Fatalf("responseMimeType = %q, want application/json", payload.config.ResponseMimeType)
	}
	if !strings.Contains(payload.config.SystemInstruction, "DeepTutor") {
		t.Fatalf("system instruction missing default persona")
	}
}

func TestBuildPayloadHistoryAndProTier(t *testing.T) {
	c := testClient(t, nil, nil)
	payload, err := c.buildPayload(Request{
		Prompt:    "next",
		ModelTier: TierPro,
		UseSearch: true,
		History: []types.Message{
			{Role: "user", Text: "q1"},
			{Role: "model", Text: "a1"},
		},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if payload.model != "gemini-3-pro-preview" {
		t.Fatalf("model = %q, want pro", payload.model)
	}
	if len(payload.contents) != 3 {
		t.Fatalf("contents = %d entries, want history plus prompt", len(payload.contents))
	}
	if payload.contents[1].Role != "model" {
		t.Fatalf("history role = %q, want model", payload.contents[1].Role)
	}
	if len(payload.config.Tools) != 1 {
		t.Fatalf("search tool not attached")
	}
}
