package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookPayload(t *testing.T, payload testutil.MockWebhook) string {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(body)
}

func receive(t *testing.T, f *apiFixture, providerName, body string) (int, WebhookResponse) {
	t.Helper()
	h := NewWebhookHandler(f.generation)
	c, rec := f.newContext(http.MethodPost, "/api/v1/webhooks/"+providerName, body, nil)
	setParams(c, "provider", providerName)
	require.NoError(t, h.Receive(c))
	var response WebhookResponse
	if rec.Code < http.StatusBadRequest {
		decodeJSON(t, rec, &response)
	}
	return rec.Code, response
}

func TestWebhook_CompletesJob(t *testing.T) {
	f := newAPIFixture(t, 10)
	job := submit(t, f, NewJobHandler(f.generation), speechJob)

	code, response := receive(t, f, "acme", webhookPayload(t, testutil.MockWebhook{
		ID:     "ext-" + job.ID,
		Status: "succeeded",
		URLs:   []string{"https://cdn.acme.test/out.mp3"},
	}))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "succeeded", response.Status)

	assert.Equal(t, int64(9), f.store.Balance(f.ws.ID))
	assert.Zero(t, f.store.HeldCredits(f.ws.ID))

	// redelivery is acknowledged without charging again
	code, _ = receive(t, f, "acme", webhookPayload(t, testutil.MockWebhook{ID: "ext-" + job.ID, Status: "succeeded"}))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(9), f.store.Balance(f.ws.ID))
}

func TestWebhook_FailureRefunds(t *testing.T) {
	f := newAPIFixture(t, 10)
	job := submit(t, f, NewJobHandler(f.generation), speechJob)

	code, _ := receive(t, f, "acme", webhookPayload(t, testutil.MockWebhook{ID: "ext-" + job.ID, Status: "failed", Error: "voice rejected"}))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(10), f.store.Balance(f.ws.ID))
}

func TestWebhook_Progress(t *testing.T) {
	f := newAPIFixture(t, 10)
	job := submit(t, f, NewJobHandler(f.generation), speechJob)

	code, response := receive(t, f, "acme", webhookPayload(t, testutil.MockWebhook{ID: "ext-" + job.ID, Status: "rendering"}))
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "rendering", response.Status)
	assert.Equal(t, int64(1), f.store.HeldCredits(f.ws.ID))
}

func TestWebhook_Errors(t *testing.T) {
	f := newAPIFixture(t, 10)

	tests := []struct {
		name       string
		provider   string
		body       string
		wantStatus int
	}{
		{"unknown provider", "nobody", `{"id": "x", "status": "succeeded"}`, http.StatusNotFound},
		{"malformed payload", "acme", `not json`, http.StatusBadRequest},
		{"unknown job", "acme", `{"id": "ext-missing", "status": "succeeded"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := receive(t, f, tt.provider, tt.body)
			assert.Equal(t, tt.wantStatus, code)
		})
	}
}

func TestWebhook_OversizedBody(t *testing.T) {
	f := newAPIFixture(t, 10)
	job := submit(t, f, NewJobHandler(f.generation), speechJob)

	// a valid payload padded past the cap is refused outright
	payload := webhookPayload(t, testutil.MockWebhook{ID: "ext-" + job.ID, Status: "succeeded"})
	oversized := payload + strings.Repeat(" ", maxWebhookBody+1-len(payload))

	code, _ := receive(t, f, "acme", oversized)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, int64(1), f.store.HeldCredits(f.ws.ID))

	// a body exactly at the cap is still accepted
	atCap := payload + strings.Repeat(" ", maxWebhookBody-len(payload))
	code, _ = receive(t, f, "acme", atCap)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, f.store.HeldCredits(f.ws.ID))
}
