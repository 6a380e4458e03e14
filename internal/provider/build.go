package provider

import (
	"fmt"
	"net/http"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/config"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

// BuildRegistry registers every configured adapter. artifacts may be nil.
func BuildRegistry(cfg *config.Config, artifacts domain.ArtifactStore, httpClient *http.Client) (*Registry, error) {
	registry := NewRegistry(cfg.Jobs.DefaultJobTimeout)

	if cfg.Providers.OpenAI.Enabled() {
		kinds, err := parseKinds(cfg.Providers.OpenAI.Kinds)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		adapter := NewOpenAIAdapter(cfg.Providers.OpenAI, artifacts)
		if err := registry.Register(adapter, kinds...); err != nil {
			return nil, err
		}
	}

	for _, pc := range cfg.Providers.Callbacks {
		kinds, err := parseKinds(pc.Kinds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pc.Name, err)
		}
		if err := registry.Register(NewCallbackAdapter(pc, cfg.PublicBaseURL, httpClient), kinds...); err != nil {
			return nil, err
		}
	}

	kinds := registry.Kinds()
	if len(kinds) == 0 {
		log.Warn().Msg("No providers configured, every submission will be rejected")
	}
	for _, kind := range kinds {
		adapter, _ := registry.ForKind(kind)
		log.Info().Str("kind", string(kind)).Str("provider", adapter.Name()).Msg("Provider registered")
	}
	return registry, nil
}

func parseKinds(names []string) ([]domain.JobKind, error) {
	kinds := make([]domain.JobKind, 0, len(names))
	for _, name := range names {
		kind := domain.JobKind(name)
		if !kind.IsValid() {
			return nil, fmt.Errorf("unknown job kind %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
