package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/google/uuid"
)

// StartRequest is what the orchestrator hands to an adapter for one job
type StartRequest struct {
	JobID       uuid.UUID
	WorkspaceID int32
	Kind        domain.JobKind
	Input       domain.JobInput
}

// StartResult is either a synchronous outcome or an acknowledgement carrying
// the provider's job reference, to be resolved later by webhook.
type StartResult struct {
	ProviderJobID string
	Sync          *domain.Outcome
}

// Adapter translates a job kind into calls against one AI vendor
type Adapter interface {
	Name() string
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
}

// WebhookParser is implemented by asynchronous adapters. It authenticates a
// raw callback and normalizes it.
type WebhookParser interface {
	ParseWebhook(header http.Header, body []byte) (*WebhookEvent, error)
}

// WebhookEvent is a normalized provider callback. Outcome is nil for
// progress notifications that do not end the job.
type WebhookEvent struct {
	ProviderJobID string
	Status        string
	Outcome       *domain.Outcome
}

// Terminal reports whether the event ends the job
func (e *WebhookEvent) Terminal() bool {
	return e.Outcome != nil
}

// JobTimeouter is implemented by adapters whose jobs need a deadline other
// than the registry default
type JobTimeouter interface {
	JobTimeout() time.Duration
}

// Registry maps job kinds to the adapter that serves them
type Registry struct {
	byKind         map[domain.JobKind]Adapter
	byName         map[string]Adapter
	defaultTimeout time.Duration
}

// NewRegistry creates an empty registry
func NewRegistry(defaultTimeout time.Duration) *Registry {
	return &Registry{
		byKind:         make(map[domain.JobKind]Adapter),
		byName:         make(map[string]Adapter),
		defaultTimeout: defaultTimeout,
	}
}

// Register binds adapter to kinds. A kind can be served by one adapter only.
func (r *Registry) Register(adapter Adapter, kinds ...domain.JobKind) error {
	if existing, ok := r.byName[adapter.Name()]; ok && existing != adapter {
		return fmt.Errorf("provider %q already registered", adapter.Name())
	}
	for _, kind := range kinds {
		if !kind.IsValid() {
			return fmt.Errorf("provider %q: unknown job kind %q", adapter.Name(), kind)
		}
		if existing, ok := r.byKind[kind]; ok {
			return fmt.Errorf("job kind %q already served by %q", kind, existing.Name())
		}
	}
	for _, kind := range kinds {
		r.byKind[kind] = adapter
	}
	r.byName[adapter.Name()] = adapter
	return nil
}

// ForKind returns the adapter serving kind
func (r *Registry) ForKind(kind domain.JobKind) (Adapter, error) {
	adapter, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, kind)
	}
	return adapter, nil
}

// ByName returns a registered adapter
func (r *Registry) ByName(name string) (Adapter, error) {
	adapter, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, name)
	}
	return adapter, nil
}

// WebhookParser returns the parser of an asynchronous provider
func (r *Registry) WebhookParser(name string) (WebhookParser, error) {
	adapter, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	parser, ok := adapter.(WebhookParser)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept webhooks", domain.ErrUnknownProvider, name)
	}
	return parser, nil
}

// JobTimeout returns how long a job of the named provider may stay open
func (r *Registry) JobTimeout(name string) time.Duration {
	if adapter, ok := r.byName[name]; ok {
		if t, ok := adapter.(JobTimeouter); ok && t.JobTimeout() > 0 {
			return t.JobTimeout()
		}
	}
	return r.defaultTimeout
}

// Kinds lists the kinds currently served, sorted
func (r *Registry) Kinds() []domain.JobKind {
	kinds := make([]domain.JobKind, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// StaleCutoffs converts each provider's deadline into the update time before
// which its open jobs count as expired at now
func (r *Registry) StaleCutoffs(now time.Time) domain.StaleCutoffs {
	cutoffs := domain.StaleCutoffs{
		ByProvider: make(map[string]time.Time, len(r.byName)),
		Default:    now.Add(-r.defaultTimeout),
	}
	for name := range r.byName {
		cutoffs.ByProvider[name] = now.Add(-r.JobTimeout(name))
	}
	return cutoffs
}
