package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/pkg/httpx"
	"github.com/yungbote/deeptutor-backend/internal/sanitize"
	"github.com/yungbote/deeptutor-backend/internal/types"
	"github.com/yungbote/deeptutor-backend/internal/utils"
)

const (
	TierFlash = "flash"
	TierPro   = "pro"

	ResponseJSON = "json"
	ResponseText = "text"

	// Text-like attachments are inlined into the prompt, bounded so a large
	// document cannot blow the request size limit.
	maxInlineTextChars = 30000

	// The direct path retries transient upstream failures before giving up;
	// the proxy path does not, since its failure already triggers the direct
	// fallback.
	directMaxAttempts     = 3
	directRetryBackoff    = 2 * time.Second
	directRetryBackoffMax = 15 * time.Second

	defaultSystemInstruction = `You are DeepTutor, an academic document processing engine.
PRIORITIES: Speed, Academic rigor, Progressive generation.
All outputs must be grounded in the provided document.
Use LaTeX $$ for all math formulas.`
)

// MIME types the backend accepts as binary inline payload parts. Everything
// else is either decoded into the prompt (text-like) or replaced with a
// placeholder so the request never fails outright on format.
var supportedInlineMimes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
}

var inlineTextMimes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"application/json": true,
}

// Request describes one generation call.
type Request struct {
	Prompt          string
	Attachment      *types.FileAttachment
	History         []types.Message
	ModelTier       string // flash | pro (defaults to flash)
	ResponseType    string // json | text (defaults to json)
	UseSearch       bool
	System          string
	MaxOutputTokens int
}

// Response carries the raw model text plus, for JSON-shaped requests, the
// sanitized value.
type Response struct {
	Text string
	Data sanitize.Result
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	ProxyURL     string
	Mode         string // proxy | direct
	FlashModel   string
	ProModel     string
	ProxyTimeout time.Duration
	DirectTimeout time.Duration
	MaxOutputTokens int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		APIKey:          utils.GetEnv("GEMINI_API_KEY", "", log),
		BaseURL:         strings.TrimRight(utils.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com", log), "/"),
		ProxyURL:        utils.GetEnv("GEMINI_PROXY_URL", "", log),
		Mode:            utils.GetEnv("GEMINI_TRANSPORT", "direct", log),
		FlashModel:      utils.GetEnv("GEMINI_FLASH_MODEL", "gemini-3-flash-preview", log),
		ProModel:        utils.GetEnv("GEMINI_PRO_MODEL", "gemini-3-pro-preview", log),
		ProxyTimeout:    time.Duration(utils.GetEnvAsInt("GEMINI_PROXY_TIMEOUT_SECONDS", 25, log)) * time.Second,
		DirectTimeout:   time.Duration(utils.GetEnvAsInt("GEMINI_DIRECT_TIMEOUT_SECONDS", 45, log)) * time.Second,
		MaxOutputTokens: utils.GetEnvAsInt("GEMINI_MAX_OUTPUT_TOKENS", 8192, log),
	}
}

type client struct {
	log     *logger.Logger
	cfg     Config
	primary transport
	fallback transport
}

// NewClient selects the transport strategy from config at startup: "proxy"
// means proxy-first with a single automatic fallback to the direct path,
// "direct" means direct-only. In either mode the direct path refuses to issue
// a network call without a credential.
func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	clientLog := log.With("service", "GeminiClient")

	direct := &directTransport{
		baseURL:         cfg.BaseURL,
		apiKey:          strings.TrimSpace(cfg.APIKey),
		httpClient:      &http.Client{Timeout: cfg.DirectTimeout},
		maxAttempts:     directMaxAttempts,
		retryBackoff:    directRetryBackoff,
		retryBackoffMax: directRetryBackoffMax,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "proxy":
		if strings.TrimSpace(cfg.ProxyURL) == "" {
			return nil, fmt.Errorf("GEMINI_TRANSPORT=proxy requires GEMINI_PROXY_URL")
		}
		proxy := &proxyTransport{
			url:        strings.TrimSpace(cfg.ProxyURL),
			httpClient: &http.Client{Timeout: cfg.ProxyTimeout},
		}
		return &client{log: clientLog, cfg: cfg, primary: proxy, fallback: direct}, nil
	case "direct", "":
		if direct.apiKey == "" {
			return nil, ErrCredentialMissing
		}
		return &client{log: clientLog, cfg: cfg, primary: direct}, nil
	default:
		return nil, fmt.Errorf("unknown GEMINI_TRANSPORT %q (want proxy or direct)", cfg.Mode)
	}
}

func (c *client) Generate(ctx context.Context, req Request) (Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	text, err := c.primary.generate(ctx, payload)
	if err != nil && c.fallback != nil && shouldFallThrough(err) {
		c.log.Warn("Proxy transport failed, retrying once via direct path",
			"error", err.Error(),
			"elapsed", time.Since(start).String(),
		)
		text, err = c.fallback.generate(ctx, payload)
	}
	if err != nil {
		return Response{}, err
	}

	resp := Response{Text: text}
	if payload.responseType == ResponseJSON {
		resp.Data = sanitize.RecoverJSON(text)
		if !resp.Data.OK {
			return resp, fmt.Errorf("%w: %s", ErrMalformedResponse, previewText(text))
		}
	}
	return resp, nil
}

// shouldFallThrough reports whether a proxy failure warrants the single
// automatic direct retry: proxy not deployed, unreachable, or timed out.
func shouldFallThrough(err error) bool {
	if errors.Is(err, ErrProxyUnavailable) || errors.Is(err, ErrGatewayTimeout) {
		return true
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode == http.StatusNotFound
	}
	return false
}

// ---- wire shapes ----

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireConfig struct {
	SystemInstruction string           `json:"systemInstruction,omitempty"`
	Temperature       float64          `json:"temperature"`
	MaxOutputTokens   int              `json:"maxOutputTokens,omitempty"`
	ResponseMimeType  string           `json:"responseMimeType,omitempty"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type generatePayload struct {
	model        string
	responseType string
	contents     []wireContent
	config       wireConfig
}

func (c *client) buildPayload(req Request) (*generatePayload, error) {
	tier := req.ModelTier
	if tier == "" {
		tier = TierFlash
	}
	model := c.cfg.FlashModel
	if tier == TierPro {
		model = c.cfg.ProModel
	}

	responseType := req.ResponseType
	if responseType == "" {
		responseType = ResponseJSON
	}

	contents := make([]wireContent, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == "model" {
			role = "model"
		}
		contents = append(contents, wireContent{Role: role, Parts: []wirePart{{Text: m.Text}}})
	}

	promptText := req.Prompt
	parts := []wirePart{{Text: promptText}}
	if req.Attachment != nil && req.Attachment.Data != "" {
		mime := req.Attachment.MimeType
		switch {
		case inlineTextMimes[mime]:
			decoded, err := base64.StdEncoding.DecodeString(req.Attachment.Data)
			if err != nil {
				return nil, fmt.Errorf("decode text attachment %q: %w", req.Attachment.Name, err)
			}
			doc := string(decoded)
			if len(doc) > maxInlineTextChars {
				doc = doc[:maxInlineTextChars]
			}
			parts[0].Text = "[DOCUMENT CONTEXT START]\n" + doc + "\n[DOCUMENT CONTEXT END]\n\n" + promptText
		case supportedInlineMimes[mime]:
			parts = append(parts, wirePart{InlineData: &wireInlineData{
				Data:     req.Attachment.Data,
				MimeType: mime,
			}})
		default:
			parts[0].Text = fmt.Sprintf("[WARNING: Unsupported Binary File: %s]\n%s", req.Attachment.Name, promptText)
		}
	}
	contents = append(contents, wireContent{Role: "user", Parts: parts})

	system := req.System
	if system == "" {
		system = defaultSystemInstruction
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxOutputTokens
	}

	cfg := wireConfig{
		SystemInstruction: system,
		Temperature:       0.1,
		MaxOutputTokens:   maxTokens,
	}
	if responseType == ResponseJSON {
		cfg.ResponseMimeType = "application/json"
	}
	if req.UseSearch {
		cfg.Tools = []map[string]any{{"googleSearch": map[string]any{}}}
	}

	return &generatePayload{
		model:        model,
		responseType: responseType,
		contents:     contents,
		config:       cfg,
	}, nil
}

// ---- transports ----

type transport interface {
	generate(ctx context.Context, payload *generatePayload) (string, error)
}

// proxyTransport posts {model, contents, config} to the server-side proxy.
// The proxy responds with the model text as its body.
type proxyTransport struct {
	url        string
	httpClient *http.Client
}

func (t *proxyTransport) generate(ctx context.Context, payload *generatePayload) (string, error) {
	body := map[string]any{
		"model":    payload.model,
		"contents": payload.contents,
		"config":   payload.config,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if httpx.IsTimeoutError(err) {
			return "", fmt.Errorf("%w: proxy call exceeded %s", ErrGatewayTimeout, t.httpClient.Timeout)
		}
		return "", fmt.Errorf("%w: %v", ErrProxyUnavailable, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: proxy endpoint not found", ErrProxyUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &BackendError{StatusCode: resp.StatusCode, Message: extractErrorMessage(raw)}
	}
	return string(raw), nil
}

// directTransport calls the generateContent endpoint with a locally held
// credential.
type directTransport struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	maxAttempts     int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
}

type directResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *directTransport) generate(ctx context.Context, payload *generatePayload) (string, error) {
	if t.apiKey == "" {
		return "", ErrCredentialMissing
	}

	body := map[string]any{
		"contents": payload.contents,
		"systemInstruction": map[string]any{
			"parts": []map[string]any{{"text": payload.config.SystemInstruction}},
		},
		"generationConfig": map[string]any{
			"temperature":     payload.config.Temperature,
			"maxOutputTokens": payload.config.MaxOutputTokens,
		},
	}
	if payload.config.ResponseMimeType != "" {
		body["generationConfig"].(map[string]any)["responseMimeType"] = payload.config.ResponseMimeType
	}
	if len(payload.config.Tools) > 0 {
		body["tools"] = payload.config.Tools
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", t.baseURL, payload.model)
	attempts := t.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", t.apiKey)

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			if httpx.IsTimeoutError(err) {
				return "", fmt.Errorf("%w: direct call exceeded %s", ErrGatewayTimeout, t.httpClient.Timeout)
			}
			if attempt < attempts && httpx.IsRetryableError(err) {
				if werr := waitBeforeRetry(ctx, httpx.JitterSleep(t.retryBackoff)); werr != nil {
					return "", werr
				}
				continue
			}
			return "", err
		}
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			backendErr := &BackendError{StatusCode: resp.StatusCode, Message: extractErrorMessage(raw)}
			if attempt < attempts && httpx.IsRetryableHTTPStatus(resp.StatusCode) {
				wait := httpx.RetryAfterDuration(resp, t.retryBackoff, t.retryBackoffMax)
				if werr := waitBeforeRetry(ctx, httpx.JitterSleep(wait)); werr != nil {
					return "", werr
				}
				continue
			}
			return "", backendErr
		}

		var decoded directResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("decode gemini response: %w", err)
		}
		if decoded.Error != nil {
			return "", &BackendError{StatusCode: resp.StatusCode, Message: decoded.Error.Message}
		}

		var out strings.Builder
		for _, cand := range decoded.Candidates {
			for _, part := range cand.Content.Parts {
				out.WriteString(part.Text)
			}
		}
		return out.String(), nil
	}
}

func waitBeforeRetry(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// extractErrorMessage pulls error/message out of a failure body; an absent or
// non-JSON body yields an empty message rather than a decode failure.
func extractErrorMessage(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return strings.TrimSpace(previewText(string(raw)))
	}
	if msg, ok := payload["error"].(string); ok {
		return msg
	}
	if errObj, ok := payload["error"].(map[string]any); ok {
		if msg, ok := errObj["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := payload["message"].(string); ok {
		return msg
	}
	return ""
}

func previewText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
