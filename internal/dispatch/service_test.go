package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/events"
	"github.com/MrSnakeDoc/dispatchprobe/internal/index"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// fakeProber records its inputs and answers with the configured winner.
type fakeProber struct {
	calls  int
	gw     domain.GatewayConfig
	target *domain.DispatchTarget
	winner *domain.AttemptRecord
}

func (f *fakeProber) Dispatch(_ context.Context, requestID string, gw domain.GatewayConfig, target *domain.DispatchTarget) *domain.DispatchResult {
	f.calls++
	f.gw = gw
	f.target = target

	res := &domain.DispatchResult{RequestID: requestID, Attempts: []*domain.AttemptRecord{}}
	if f.winner != nil {
		res.Attempts = append(res.Attempts, f.winner)
		res.Success = f.winner.OK
		res.Winner = f.winner
		if f.winner.Status != nil {
			res.Status = *f.winner.Status
		}
	}
	return res
}

type fakeConfigs struct {
	record *domain.ConfigRecord
	err    error
}

func (f fakeConfigs) ActiveConfig(context.Context, string) (*domain.ConfigRecord, error) {
	return f.record, f.err
}

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
	envs []events.Envelope
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, key string, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.envs = append(c.envs, env)
	return c.err
}

func (c *capturePublisher) Close() error { return nil }

func secrets(values map[string]string) SecretLookup {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func newService(p Prober, settings Settings, opts ...Option) *Service {
	base := []Option{
		WithSecrets(secrets(map[string]string{"EVOLUTION_API_KEY": "secret"})),
		WithIDGenerator(func() string { return "req-1" }),
	}
	return New(p, settings, logger.NewNop(), append(base, opts...)...)
}

func okRecord(round domain.Round, method, route string) *domain.AttemptRecord {
	status := 201
	return &domain.AttemptRecord{Round: round, Method: method, Route: route, Status: &status, OK: true}
}

func validBody() map[string]any {
	return map[string]any{"number": "55 489 209-5244", "text": "Teste ✅"}
}

func TestSend_MissingAPIKey(t *testing.T) {
	p := &fakeProber{}
	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x"},
		WithSecrets(secrets(map[string]string{})))

	resp := svc.Send(context.Background(), validBody())

	require.NotNil(t, resp.Rejected)
	assert.False(t, resp.Rejected.Success)
	assert.Equal(t, "EVOLUTION_API_KEY não configurada", resp.Rejected.Error)
	assert.Equal(t, "req-1", resp.RequestID())
	assert.Zero(t, p.calls)
}

func TestSend_CustomAPIKeyName(t *testing.T) {
	svc := newService(&fakeProber{}, Settings{APIKeyName: "GATEWAY_TOKEN", DefaultServerURL: "http://gw", DefaultInstance: "x"})

	resp := svc.Send(context.Background(), validBody())
	require.NotNil(t, resp.Rejected)
	assert.Equal(t, "GATEWAY_TOKEN não configurada", resp.Rejected.Error)
}

func TestSend_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"missing text", map[string]any{"number": "5511999998888"}, domain.MsgInvalidParameters},
		{"empty body", map[string]any{}, domain.MsgInvalidParameters},
		{"short number", map[string]any{"number": "1234", "text": "oi"}, domain.MsgInvalidNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{}
			svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x"})

			resp := svc.Send(context.Background(), tt.body)
			require.NotNil(t, resp.Rejected)
			assert.Equal(t, tt.want, resp.Rejected.Error)
			assert.False(t, resp.Success())
			assert.Zero(t, p.calls)
		})
	}
}

func TestSend_NoServerConfigured(t *testing.T) {
	p := &fakeProber{}
	resp := newService(p, Settings{}).Send(context.Background(), validBody())

	require.NotNil(t, resp.Rejected)
	assert.Equal(t, MsgGatewayNotConfigured, resp.Rejected.Error)
	assert.Zero(t, p.calls)
}

func TestSend_NoInstanceConfigured(t *testing.T) {
	resp := newService(&fakeProber{}, Settings{DefaultServerURL: "http://gw"}).Send(context.Background(), validBody())

	require.NotNil(t, resp.Rejected)
	assert.Equal(t, MsgInstanceNotConfigured, resp.Rejected.Error)
}

func TestSend_GatewayPrecedence(t *testing.T) {
	record := &domain.ConfigRecord{ServerURL: "https://cfg.example.com/", Instance: "cfg-inst"}

	tests := []struct {
		name         string
		configs      ConfigSource
		body         map[string]any
		wantServer   string
		wantInstance string
	}{
		{
			name:         "config record wins the server, body wins the instance",
			configs:      fakeConfigs{record: record},
			body:         map[string]any{"number": "5511999998888", "text": "oi", "base_url": "https://body.example.com", "instance": "body-inst"},
			wantServer:   "https://cfg.example.com/",
			wantInstance: "body-inst",
		},
		{
			name:         "body base_url when no record",
			configs:      fakeConfigs{},
			body:         map[string]any{"number": "5511999998888", "text": "oi", "base_url": "https://body.example.com"},
			wantServer:   "https://body.example.com",
			wantInstance: "default-inst",
		},
		{
			name:         "config source error falls back to defaults",
			configs:      fakeConfigs{err: errors.New("db down")},
			body:         map[string]any{"number": "5511999998888", "text": "oi"},
			wantServer:   "https://default.example.com",
			wantInstance: "default-inst",
		},
		{
			name:         "record instance beats default",
			configs:      fakeConfigs{record: record},
			body:         map[string]any{"number": "5511999998888", "text": "oi"},
			wantServer:   "https://cfg.example.com/",
			wantInstance: "cfg-inst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{}
			svc := newService(p, Settings{
				DefaultServerURL: "https://default.example.com",
				DefaultInstance:  "default-inst",
			}, WithConfigSource(tt.configs))

			resp := svc.Send(context.Background(), tt.body)
			require.Nil(t, resp.Rejected)
			require.Equal(t, 1, p.calls)
			assert.Equal(t, tt.wantServer, p.gw.ServerURL)
			assert.Equal(t, tt.wantInstance, p.gw.Instance)
			assert.Equal(t, "secret", p.gw.APIKey)
		})
	}
}

func TestSend_NormalizedTargetReachesProber(t *testing.T) {
	p := &fakeProber{winner: okRecord(domain.RoundPrimary, "POST", "/message/sendText/{instance}")}
	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x"})

	resp := svc.Send(context.Background(), validBody())

	require.NotNil(t, resp.Result)
	assert.True(t, resp.Success())
	assert.Equal(t, "554892095244", p.target.Number)
	assert.Equal(t, "Teste ✅", p.target.Text)
	assert.Same(t, resp.Result, resp.Body())
}

func TestSend_RecordsDiscoveryWhenEnabled(t *testing.T) {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	idx := index.NewMemoryIndex()
	p := &fakeProber{winner: okRecord(domain.RoundMatrix, "POST", "/v1/message/send/{instance}")}

	svc := newService(p, Settings{
		DefaultServerURL:  "https://gw.example.com/",
		DefaultInstance:   "sales",
		RecordDiscoveries: true,
	}, WithEndpointStore(idx), WithClock(func() time.Time { return now }))

	svc.Send(context.Background(), validBody())

	eps, err := idx.Working(context.Background(), "https://gw.example.com", "sales", 3)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "/v1/message/send/{instance}", eps[0].Path)
	assert.Equal(t, 3, eps[0].Priority)
	assert.True(t, eps[0].LastSuccessAt.Equal(now))

	// a later win through the discovered phase refreshes the same record
	later := now.Add(time.Hour)
	p.winner = okRecord(domain.RoundDiscovered, "POST", "/v1/message/send/{instance}")
	p.winner.EndpointID = eps[0].ID()
	svc.now = func() time.Time { return later }
	svc.Send(context.Background(), validBody())

	eps, err = idx.Working(context.Background(), "https://gw.example.com", "sales", 3)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.True(t, eps[0].LastSuccessAt.Equal(later))
}

func TestSend_RecordsWinningEncoding(t *testing.T) {
	idx := index.NewMemoryIndex()
	win := okRecord(domain.RoundMatrix, "POST", "/chat/send")
	win.Payload = domain.ShapeInstanceInBody
	win.ContentType = domain.ContentTypeForm
	p := &fakeProber{winner: win}

	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x", RecordDiscoveries: true},
		WithEndpointStore(idx))
	svc.Send(context.Background(), validBody())

	eps, err := idx.Working(context.Background(), "http://gw", "x", 3)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, domain.ShapeInstanceInBody, eps[0].Payload)
	assert.Equal(t, domain.ContentTypeForm, eps[0].ContentType)
}

func TestSend_RefreshesEndpointSeededWithoutSlash(t *testing.T) {
	seeded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := seeded.Add(24 * time.Hour)
	idx := index.NewMemoryIndex()
	ep := &domain.DiscoveredEndpoint{
		ServerURL: "http://gw", Instance: "x", Path: "api/{instance}/send-message", Method: "POST",
		Priority: 2, IsWorking: true, LastSuccessAt: seeded, CreatedAt: seeded, UpdatedAt: seeded,
	}
	require.NoError(t, idx.Upsert(context.Background(), ep))

	// the cascade replays the stored path with a leading slash
	win := okRecord(domain.RoundDiscovered, "POST", "/api/{instance}/send-message")
	win.EndpointID = ep.ID()
	svc := newService(&fakeProber{winner: win},
		Settings{DefaultServerURL: "http://gw", DefaultInstance: "x", RecordDiscoveries: true},
		WithEndpointStore(idx), WithClock(func() time.Time { return now }))
	svc.Send(context.Background(), validBody())

	eps, err := idx.Working(context.Background(), "http://gw", "x", 3)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.True(t, eps[0].LastSuccessAt.Equal(now))
}

func TestSend_NoDiscoveryByDefault(t *testing.T) {
	idx := index.NewMemoryIndex()
	p := &fakeProber{winner: okRecord(domain.RoundPrimary, "POST", "/message/sendText/{instance}")}

	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x"}, WithEndpointStore(idx))
	svc.Send(context.Background(), validBody())

	assert.Zero(t, idx.Count())
}

func TestSend_PublishesOutcome(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	p := &fakeProber{winner: okRecord(domain.RoundQuick, "POST", "/api/{instance}/send-message")}

	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x", EventProducer: "dispatchprobe"},
		WithPublisher(pub))
	resp := svc.Send(context.Background(), validBody())

	// a publish failure never changes the response
	assert.True(t, resp.Success())
	require.Len(t, pub.envs, 1)
	assert.Equal(t, events.TypeDispatchCompleted, pub.keys[0])
	require.NotNil(t, pub.envs[0].Meta.CorrelationID)
	assert.Equal(t, "req-1", *pub.envs[0].Meta.CorrelationID)

	data, ok := pub.envs[0].Data.(events.DispatchCompleted)
	require.True(t, ok)
	assert.Equal(t, "quick", data.Round)
	assert.Equal(t, "5548******44", data.Number)
}

// stalledPublisher never gets a broker confirm.
type stalledPublisher struct {
	done chan error
}

func (s *stalledPublisher) Publish(ctx context.Context, _ string, _ events.Envelope) error {
	<-ctx.Done()
	s.done <- ctx.Err()
	return ctx.Err()
}

func (s *stalledPublisher) Close() error { return nil }

func TestSend_StalledPublisherDoesNotHoldResponse(t *testing.T) {
	pub := &stalledPublisher{done: make(chan error, 1)}
	p := &fakeProber{winner: okRecord(domain.RoundPrimary, "POST", "/message/sendText/{instance}")}
	svc := newService(p, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x", EventTimeout: 50 * time.Millisecond},
		WithPublisher(pub))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	returned := make(chan Response, 1)
	go func() { returned <- svc.Send(ctx, validBody()) }()

	select {
	case resp := <-returned:
		assert.True(t, resp.Success())
	case <-time.After(2 * time.Second):
		t.Fatal("Send still blocked on the publisher")
	}
	assert.ErrorIs(t, <-pub.done, context.DeadlineExceeded)
}

func TestSend_RejectionsAreNotPublished(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(&fakeProber{}, Settings{DefaultServerURL: "http://gw", DefaultInstance: "x"}, WithPublisher(pub))

	svc.Send(context.Background(), map[string]any{"number": "abc", "text": "oi"})
	assert.Empty(t, pub.envs)
}
