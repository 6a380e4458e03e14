package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/config"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
)

// SignatureHeader carries the HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Signature"

const maxAckBytes = 1 << 20

// CallbackAdapter dispatches jobs to a vendor that reports results by
// calling back a signed webhook
type CallbackAdapter struct {
	name        string
	endpoint    string
	apiKey      string
	secret      []byte
	callbackURL string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewCallbackAdapter creates an adapter whose webhooks arrive at
// {publicBaseURL}/api/v1/webhooks/{name}
func NewCallbackAdapter(cfg config.CallbackProviderConfig, publicBaseURL string, httpClient *http.Client) *CallbackAdapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CallbackAdapter{
		name:        cfg.Name,
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		secret:      []byte(cfg.WebhookSecret),
		callbackURL: strings.TrimRight(publicBaseURL, "/") + "/api/v1/webhooks/" + cfg.Name,
		timeout:     cfg.JobTimeout,
		httpClient:  httpClient,
	}
}

// Name implements Adapter
func (a *CallbackAdapter) Name() string {
	return a.name
}

// JobTimeout implements JobTimeouter
func (a *CallbackAdapter) JobTimeout() time.Duration {
	return a.timeout
}

type callbackStartRequest struct {
	JobID       string          `json:"jobId"`
	Kind        string          `json:"kind"`
	Input       domain.JobInput `json:"input"`
	CallbackURL string          `json:"callbackUrl"`
}

type callbackAck struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Start submits the job and returns the vendor's job reference
func (a *CallbackAdapter) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	body, err := json.Marshal(callbackStartRequest{
		JobID:       req.JobID.String(),
		Kind:        string(req.Kind),
		Input:       req.Input,
		CallbackURL: a.callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", a.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if err != nil {
		return nil, fmt.Errorf("%s response: %w", a.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var ack callbackAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("%s response: %w", a.name, err)
	}
	if ack.ID == "" {
		return nil, fmt.Errorf("%s response carried no job id", a.name)
	}

	return &StartResult{ProviderJobID: ack.ID}, nil
}

type callbackPayload struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Output *domain.JobOutput `json:"output"`
	Error  string            `json:"error"`
}

// ParseWebhook verifies the signature and maps the vendor status onto an outcome
func (a *CallbackAdapter) ParseWebhook(header http.Header, body []byte) (*WebhookEvent, error) {
	if !a.validSignature(header.Get(SignatureHeader), body) {
		return nil, domain.ErrInvalidSignature
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidWebhook, err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("%w: missing id", domain.ErrInvalidWebhook)
	}

	event := &WebhookEvent{ProviderJobID: payload.ID, Status: payload.Status}
	switch strings.ToLower(payload.Status) {
	case "succeeded", "completed":
		output := payload.Output
		if output == nil {
			output = &domain.JobOutput{}
		}
		outcome := domain.Succeeded(output)
		event.Outcome = &outcome
	case "failed", "error", "canceled", "cancelled":
		msg := payload.Error
		if msg == "" {
			msg = fmt.Sprintf("%s reported status %s", a.name, payload.Status)
		}
		outcome := domain.Failed(msg)
		event.Outcome = &outcome
	}
	return event, nil
}

// Sign returns the signature header value for body
func (a *CallbackAdapter) Sign(body []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (a *CallbackAdapter) validSignature(header string, body []byte) bool {
	if header == "" {
		return false
	}
	return hmac.Equal([]byte(header), []byte(a.Sign(body)))
}
