package prober

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// phase lazily produces the candidates of one cascade round.
type phase struct {
	round    domain.Round
	generate func() []candidate
}

// run holds the bookkeeping of one in-flight dispatch.
type run struct {
	target   *domain.DispatchTarget
	instance string
	apiKey   string
	log      logger.Logger // carries request_id

	attempts []*domain.AttemptRecord
	seen     map[string]struct{}
	used     map[string]struct{}
	deadline bool
}

// Dispatch delivers target.Text to target.Number through the gateway
// described by gw. It never returns an error: every failure is folded into
// the attempt trail of the result.
//
// gw.ServerURL and gw.Instance must already be resolved.
func (p *Prober) Dispatch(ctx context.Context, requestID string, gw domain.GatewayConfig, target *domain.DispatchTarget) *domain.DispatchResult {
	if p.timeouts.Overall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Overall)
		defer cancel()
	}

	baseURL := gw.BaseURL()
	r := &run{
		target:   target,
		instance: gw.Instance,
		apiKey:   gw.APIKey,
		log:      p.logger.With(logger.String("request_id", requestID)),
		attempts: make([]*domain.AttemptRecord, 0, 16),
		seen:     make(map[string]struct{}),
		used:     make(map[string]struct{}),
	}

	diag := domain.Diagnostics{}
	diag.ServerStatus = p.probeServer(ctx, baseURL)
	diag.InstanceState, diag.InstanceReady = p.probeInstance(ctx, baseURL, gw.Instance, gw.APIKey)

	discovered := p.loadDiscovered(ctx, r.log, baseURL, gw.Instance)
	diag.DiscoveredAvailable = len(discovered)

	pl := &plan{
		baseURL:    baseURL,
		instance:   gw.Instance,
		prefix:     target.Prefix,
		discovered: discovered,
	}

	phases := []phase{
		{domain.RoundDiscovered, func() []candidate { return discoveredCandidates(pl, p.timeouts.Discovered) }},
		{domain.RoundQuick, func() []candidate { return quickCandidates(pl, p.timeouts.Quick) }},
		{domain.RoundPrimary, func() []candidate { return primaryCandidates(pl, p.timeouts.Primary) }},
		{domain.RoundMatrix, func() []candidate { return matrixCandidates(pl, p.timeouts.Matrix) }},
	}

	won := false
	for _, ph := range phases {
		if won || r.deadline {
			break
		}
		won = p.runPhase(ctx, r, ph)
	}

	diag.DiscoveredUsed = len(r.used)
	diag.DeadlineExceeded = r.deadline
	diag.Recommendations = domain.Recommendations(diag.InstanceReady)

	result := buildResult(requestID, r.attempts, diag)

	r.log.Info("dispatch finished",
		logger.Bool("success", result.Success),
		logger.Int("status", result.Status),
		logger.Int("attempts", len(result.Attempts)),
		logger.String("instance_state", diag.InstanceState),
		logger.Bool("deadline_exceeded", diag.DeadlineExceeded),
	)

	return result
}

// runPhase tries every candidate of a phase in order and reports whether
// one of them succeeded.
func (p *Prober) runPhase(ctx context.Context, r *run, ph phase) bool {
	for _, c := range ph.generate() {
		if ctx.Err() != nil {
			r.deadline = true
			return false
		}

		// The primary call always runs once with its long timeout, even when
		// a discovered replay already sent the same request.
		key := c.key(r.instance)
		if _, dup := r.seen[key]; dup && c.round != domain.RoundPrimary {
			continue
		}
		r.seen[key] = struct{}{}
		if c.endpoint != nil {
			r.used[c.endpoint.ID()] = struct{}{}
		}

		rec := p.attempt(ctx, r, c)
		r.attempts = append(r.attempts, rec)
		if rec.Succeeded() {
			return true
		}
	}
	return false
}

// attempt performs one candidate and converts the outcome into a record.
func (p *Prober) attempt(ctx context.Context, r *run, c candidate) *domain.AttemptRecord {
	rec := &domain.AttemptRecord{
		Round:       c.round,
		Method:      c.method,
		Route:       c.route,
		Payload:     c.shape,
		ContentType: c.contentType,
	}
	if c.endpoint != nil {
		rec.EndpointID = c.endpoint.ID()
	}

	fr, err := requestFor(c, r.instance, r.target.Number, r.target.Text, r.apiKey)
	rec.URL = fr.url
	rec.ContentType = fr.contentType
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	res, err := p.timedFetch(ctx, fr, c.timeout)
	rec.ElapsedMs = res.elapsed.Milliseconds()

	switch {
	case err != nil:
		if res.status != 0 {
			status := res.status
			rec.Status = &status
		}
		rec.Error = describeFetchError(ctx, err)
	default:
		status := res.status
		rec.Status = &status
		rec.OK = status >= 200 && status < 300
		rec.Body = domain.DecodeBody(res.body)
		if !rec.OK {
			rec.Error = fmt.Sprintf("HTTP %d", status)
		}
	}

	r.log.Debug("dispatch attempt",
		logger.String("round", string(rec.Round)),
		logger.String("method", rec.Method),
		logger.String("url", rec.URL),
		logger.String("payload", string(rec.Payload)),
		logger.Bool("ok", rec.OK),
		logger.Int64("elapsed_ms", rec.ElapsedMs),
	)

	return rec
}

// describeFetchError names timeouts explicitly; the raw context error text
// is not very helpful in an attempt trail.
func describeFetchError(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "dispatch deadline exceeded: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout: " + err.Error()
	default:
		return err.Error()
	}
}

// loadDiscovered reads the working endpoints for this gateway. Store
// failures only cost the discovered phase.
func (p *Prober) loadDiscovered(ctx context.Context, log logger.Logger, baseURL, instance string) []*domain.DiscoveredEndpoint {
	if p.endpoints == nil {
		return nil
	}

	eps, err := p.endpoints.Working(ctx, baseURL, instance, p.discoveredLimit)
	if err != nil {
		log.Warn("failed to load discovered endpoints",
			logger.String("server_url", baseURL),
			logger.String("instance", instance),
			logger.Error(err),
		)
		return nil
	}

	if len(eps) > p.discoveredLimit {
		eps = eps[:p.discoveredLimit]
	}
	return eps
}

// buildResult assembles the public result from the attempt trail.
func buildResult(requestID string, attempts []*domain.AttemptRecord, diag domain.Diagnostics) *domain.DispatchResult {
	result := &domain.DispatchResult{
		RequestID:   requestID,
		Attempts:    attempts,
		Diagnostics: diag,
	}

	rec, success := domain.SelectOutcome(attempts)
	if rec == nil {
		return result
	}

	result.Success = success
	result.Winner = rec
	if rec.Status != nil {
		result.Status = *rec.Status
	}
	elapsed := rec.ElapsedMs
	result.ResponseTimeMs = &elapsed
	endpoint := rec.URL
	result.Endpoint = &endpoint
	result.Body = rec.Body

	return result
}
