// Package dispatch runs one send request end to end: it resolves the
// gateway configuration and API key, validates the input, drives the
// prober and reports the outcome. HTTP and CLI callers share it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/events"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/store"
)

const (
	MsgGatewayNotConfigured  = "Servidor do gateway não configurado"
	MsgInstanceNotConfigured = "Instância do gateway não configurada"
)

// Prober runs the delivery cascade.
type Prober interface {
	Dispatch(ctx context.Context, requestID string, gw domain.GatewayConfig, target *domain.DispatchTarget) *domain.DispatchResult
}

// ConfigSource returns the active configuration record for an API type,
// or nil when none is enabled.
type ConfigSource interface {
	ActiveConfig(ctx context.Context, apiType string) (*domain.ConfigRecord, error)
}

// SecretLookup resolves a secret by name.
type SecretLookup func(name string) (string, bool)

// Settings holds the static part of the dispatch configuration.
type Settings struct {
	APIType           string // configuration record type, "evolution"
	APIKeyName        string // secret holding the gateway API key
	DefaultServerURL  string // used when neither the config record nor the request names a server
	DefaultInstance   string
	RecordDiscoveries bool
	EventProducer     string
	ConfigTimeout     time.Duration // bound on the config source read
	EventTimeout      time.Duration // bound on discovery write-back plus event publish
}

// Response is the outcome of Send. Exactly one of Result and Rejected is set.
type Response struct {
	Result   *domain.DispatchResult
	Rejected *domain.ErrorEnvelope
}

// Body is the JSON document returned to the caller.
func (r Response) Body() any {
	if r.Rejected != nil {
		return r.Rejected
	}
	return r.Result
}

// Success reports whether the message was accepted by the gateway.
func (r Response) Success() bool {
	return r.Result != nil && r.Result.Success
}

// RequestID returns the identifier assigned to the request.
func (r Response) RequestID() string {
	if r.Rejected != nil {
		return r.Rejected.RequestID
	}
	return r.Result.RequestID
}

// Option customises a Service.
type Option func(*Service)

// WithConfigSource sets where the active gateway configuration is read from.
func WithConfigSource(src ConfigSource) Option {
	return func(s *Service) { s.configs = src }
}

// WithEndpointStore enables discovery write-back into st.
func WithEndpointStore(st store.EndpointStore) Option {
	return func(s *Service) { s.endpoints = st }
}

// WithPublisher sets the outcome event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithSecrets overrides the secret lookup (os.LookupEnv by default).
func WithSecrets(lookup SecretLookup) Option {
	return func(s *Service) {
		if lookup != nil {
			s.secrets = lookup
		}
	}
}

// WithIDGenerator overrides the request ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithClock overrides the clock used for write-back timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is safe for concurrent use.
type Service struct {
	prober    Prober
	configs   ConfigSource
	endpoints store.EndpointStore
	publisher events.Publisher
	secrets   SecretLookup
	settings  Settings
	logger    logger.Logger
	newID     func() string
	now       func() time.Time
}

// New builds a Service.
func New(p Prober, settings Settings, log logger.Logger, opts ...Option) *Service {
	if settings.APIType == "" {
		settings.APIType = "evolution"
	}
	if settings.APIKeyName == "" {
		settings.APIKeyName = "EVOLUTION_API_KEY"
	}
	if settings.ConfigTimeout <= 0 {
		settings.ConfigTimeout = 10 * time.Second
	}
	if settings.EventTimeout <= 0 {
		settings.EventTimeout = 5 * time.Second
	}

	s := &Service{
		prober:    p,
		settings:  settings,
		logger:    log,
		publisher: events.NewNop(log),
		secrets:   os.LookupEnv,
		newID:     uuid.NewString,
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Send handles one request body. It never fails: rejections are reported
// through Response.Rejected.
func (s *Service) Send(ctx context.Context, raw map[string]any) Response {
	requestID := s.newID()

	record := s.activeConfig(ctx, requestID)

	apiKey, ok := s.secrets(s.settings.APIKeyName)
	apiKey = strings.TrimSpace(apiKey)
	if !ok || apiKey == "" {
		return s.reject(requestID, domain.ConfigurationMissing(s.settings.APIKeyName+" não configurada"))
	}

	target, err := domain.ParseTarget(raw)
	if err != nil {
		return s.reject(requestID, err)
	}

	gw, err := s.resolveGateway(record, target, apiKey)
	if err != nil {
		return s.reject(requestID, err)
	}

	s.logger.Info("dispatch started",
		logger.String("request_id", requestID),
		logger.String("server_url", gw.BaseURL()),
		logger.String("instance", gw.Instance),
		logger.String("number", events.MaskNumber(target.Number)))

	result := s.prober.Dispatch(ctx, requestID, gw, target)

	// Bookkeeping outlives a client that went away, but a stalled store or
	// broker must not hold the response.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.EventTimeout)
	defer cancel()
	s.recordDiscovery(bg, gw, result)
	s.publish(bg, gw, target, result)

	return Response{Result: result}
}

// activeConfig reads the configuration record. Failures are logged and
// treated as if no record existed.
func (s *Service) activeConfig(ctx context.Context, requestID string) *domain.ConfigRecord {
	if s.configs == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.ConfigTimeout)
	defer cancel()

	record, err := s.configs.ActiveConfig(ctx, s.settings.APIType)
	if err != nil {
		s.logger.Warn("failed to read dispatch configuration",
			logger.String("request_id", requestID),
			logger.Error(err))
		return nil
	}
	return record
}

// resolveGateway applies the precedence rules: server URL from the config
// record, then the request, then the default; instance from the request,
// then the config record, then the default.
func (s *Service) resolveGateway(record *domain.ConfigRecord, target *domain.DispatchTarget, apiKey string) (domain.GatewayConfig, error) {
	var cfgServer, cfgInstance string
	if record != nil {
		cfgServer = record.ServerURL
		cfgInstance = record.Instance
	}

	server := firstNonEmpty(cfgServer, target.BaseURL, s.settings.DefaultServerURL)
	if server == "" {
		return domain.GatewayConfig{}, domain.ConfigurationMissing(MsgGatewayNotConfigured)
	}

	instance := firstNonEmpty(target.Instance, cfgInstance, s.settings.DefaultInstance)
	if instance == "" {
		return domain.GatewayConfig{}, domain.ConfigurationMissing(MsgInstanceNotConfigured)
	}

	return domain.GatewayConfig{ServerURL: server, Instance: instance, APIKey: apiKey}, nil
}

func (s *Service) reject(requestID string, err error) Response {
	msg := err.Error()
	var derr *domain.Error
	if !errors.As(err, &derr) {
		msg = fmt.Sprintf("Erro interno: %v", err)
	}

	s.logger.Warn("dispatch rejected",
		logger.String("request_id", requestID),
		logger.String("reason", msg))

	env := domain.NewErrorEnvelope(requestID, msg)
	return Response{Rejected: &env}
}

func (s *Service) publish(ctx context.Context, gw domain.GatewayConfig, target *domain.DispatchTarget, result *domain.DispatchResult) {
	env := events.NewDispatchCompleted(s.settings.EventProducer, gw.Instance, target.Number, result, s.now())
	if err := s.publisher.Publish(ctx, events.TypeDispatchCompleted, env); err != nil {
		s.logger.Warn("failed to publish dispatch event",
			logger.String("request_id", result.RequestID),
			logger.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
