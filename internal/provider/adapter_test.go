package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name    string
	timeout time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	return &StartResult{ProviderJobID: req.JobID.String()}, nil
}

func (s *stubAdapter) JobTimeout() time.Duration { return s.timeout }

func TestRegistry_ForKind(t *testing.T) {
	reg := NewRegistry(30 * time.Minute)
	voice := &stubAdapter{name: "voicelab"}
	require.NoError(t, reg.Register(voice, domain.JobKindVoiceClone, domain.JobKindSpeechToSpeech))

	got, err := reg.ForKind(domain.JobKindVoiceClone)
	require.NoError(t, err)
	assert.Same(t, voice, got)

	_, err = reg.ForKind(domain.JobKindLipSync)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedKind))

	assert.Equal(t, []domain.JobKind{domain.JobKindSpeechToSpeech, domain.JobKindVoiceClone}, reg.Kinds())
}

func TestRegistry_RejectsDuplicateKind(t *testing.T) {
	reg := NewRegistry(time.Minute)
	require.NoError(t, reg.Register(&stubAdapter{name: "a"}, domain.JobKindLipSync))

	err := reg.Register(&stubAdapter{name: "b"}, domain.JobKindLipSync)
	assert.Error(t, err)

	_, err = reg.ByName("b")
	assert.True(t, errors.Is(err, domain.ErrUnknownProvider))
}

func TestRegistry_RejectsUnknownKind(t *testing.T) {
	reg := NewRegistry(time.Minute)
	err := reg.Register(&stubAdapter{name: "a"}, domain.JobKind("hologram"))
	assert.Error(t, err)
}

func TestRegistry_JobTimeout(t *testing.T) {
	reg := NewRegistry(30 * time.Minute)
	require.NoError(t, reg.Register(&stubAdapter{name: "slow", timeout: 2 * time.Hour}, domain.JobKindVideoDubbing))
	require.NoError(t, reg.Register(&stubAdapter{name: "default"}, domain.JobKindImageToVideo))

	assert.Equal(t, 2*time.Hour, reg.JobTimeout("slow"))
	assert.Equal(t, 30*time.Minute, reg.JobTimeout("default"))
	assert.Equal(t, 30*time.Minute, reg.JobTimeout("missing"))
}

func TestRegistry_StaleCutoffs(t *testing.T) {
	reg := NewRegistry(30 * time.Minute)
	require.NoError(t, reg.Register(&stubAdapter{name: "slow", timeout: 2 * time.Hour}, domain.JobKindVideoDubbing))
	require.NoError(t, reg.Register(&stubAdapter{name: "default"}, domain.JobKindImageToVideo))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoffs := reg.StaleCutoffs(now)

	assert.Equal(t, now.Add(-2*time.Hour), cutoffs.For("slow"))
	assert.Equal(t, now.Add(-30*time.Minute), cutoffs.For("default"))
	assert.Equal(t, now.Add(-30*time.Minute), cutoffs.For("retired"))
}

func TestRegistry_WebhookParser(t *testing.T) {
	reg := NewRegistry(time.Minute)
	require.NoError(t, reg.Register(&stubAdapter{name: "sync"}, domain.JobKindTextToImage))

	_, err := reg.WebhookParser("sync")
	assert.True(t, errors.Is(err, domain.ErrUnknownProvider))

	_, err = reg.WebhookParser("nobody")
	assert.True(t, errors.Is(err, domain.ErrUnknownProvider))
}
