package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/config"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// OpenAIProviderName identifies the OpenAI adapter in job records
const OpenAIProviderName = "openai"

// OpenAIAdapter serves text_to_speech and text_to_image synchronously
type OpenAIAdapter struct {
	client      openai.Client
	artifacts   domain.ArtifactStore
	imageModel  string
	imageSize   string
	speechModel string
	voice       string
}

// NewOpenAIAdapter creates the adapter. artifacts may be nil, in which case
// speech jobs fail at dispatch.
func NewOpenAIAdapter(cfg config.OpenAIConfig, artifacts domain.ArtifactStore) *OpenAIAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIAdapter{
		client:      openai.NewClient(opts...),
		artifacts:   artifacts,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		speechModel: cfg.SpeechModel,
		voice:       cfg.Voice,
	}
}

// Name implements Adapter
func (a *OpenAIAdapter) Name() string {
	return OpenAIProviderName
}

// Start runs the generation inline. Vendor-side rejections of the content
// become a failed outcome; transport and auth errors are returned.
func (a *OpenAIAdapter) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	var output *domain.JobOutput
	var err error

	switch req.Kind {
	case domain.JobKindTextToImage:
		output, err = a.generateImage(ctx, req)
	case domain.JobKindTextToSpeech:
		output, err = a.synthesizeSpeech(ctx, req)
	default:
		return nil, fmt.Errorf("%w: openai does not serve %s", domain.ErrUnsupportedKind, req.Kind)
	}

	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			log.Warn().
				Str("job_id", req.JobID.String()).
				Str("kind", string(req.Kind)).
				Str("code", apiErr.Code).
				Msg("OpenAI rejected generation request")
			outcome := domain.Failed(apiErr.Message)
			return &StartResult{ProviderJobID: req.JobID.String(), Sync: &outcome}, nil
		}
		return nil, err
	}

	outcome := domain.Succeeded(output)
	return &StartResult{ProviderJobID: req.JobID.String(), Sync: &outcome}, nil
}

func (a *OpenAIAdapter) generateImage(ctx context.Context, req StartRequest) (*domain.JobOutput, error) {
	resp, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Input.Prompt,
		Model:          openai.ImageModel(a.imageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(a.imageSize),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation: %w", err)
	}

	output := &domain.JobOutput{Metadata: map[string]string{"model": a.imageModel}}
	for _, img := range resp.Data {
		if img.URL != "" {
			output.URLs = append(output.URLs, img.URL)
		}
		if img.RevisedPrompt != "" {
			output.Metadata["revisedPrompt"] = img.RevisedPrompt
		}
	}
	if len(output.URLs) == 0 {
		return nil, errors.New("openai image generation returned no images")
	}
	return output, nil
}

func (a *OpenAIAdapter) synthesizeSpeech(ctx context.Context, req StartRequest) (*domain.JobOutput, error) {
	if a.artifacts == nil {
		return nil, domain.ErrStorageNotConfigured
	}

	voice := a.voice
	if req.Input.VoiceID != "" {
		voice = req.Input.VoiceID
	}

	resp, err := a.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          req.Input.Text,
		Model:          openai.SpeechModel(a.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}

	key := domain.ArtifactKey(req.WorkspaceID, req.JobID, 0, "mp3")
	if _, err := a.artifacts.Upload(ctx, key, bytes.NewReader(audio), "audio/mpeg", int64(len(audio))); err != nil {
		return nil, err
	}

	return &domain.JobOutput{
		StorageKeys: []string{key},
		Metadata: map[string]string{
			"model": a.speechModel,
			"voice": voice,
		},
	}, nil
}
