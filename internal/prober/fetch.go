package prober

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/utils"
)

// fetchRequest describes one outbound call.
type fetchRequest struct {
	method      string
	url         string
	contentType string
	body        []byte
	apiKey      string // omitted from the request when empty
}

// fetchResult is what a completed call yields.
type fetchResult struct {
	status  int
	body    []byte
	elapsed time.Duration
}

// timedFetch performs a single call bounded by timeout. The timeout is
// enforced by cancelling the request context, so it also covers reading the
// body. elapsed is populated even when an error is returned.
func (p *Prober) timedFetch(ctx context.Context, fr fetchRequest, timeout time.Duration) (fetchResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader = http.NoBody
	if fr.body != nil {
		body = bytes.NewReader(fr.body)
	}

	req, err := http.NewRequestWithContext(ctx, fr.method, fr.url, body)
	if err != nil {
		return fetchResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	if fr.apiKey != "" {
		req.Header.Set("apikey", fr.apiKey)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if fr.contentType != "" {
		req.Header.Set("Content-Type", fr.contentType)
	}

	start := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fetchResult{elapsed: p.now().Sub(start)}, err
	}
	defer utils.DrainAndClose(resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodyBytes))
	elapsed := p.now().Sub(start)
	if err != nil {
		return fetchResult{status: resp.StatusCode, elapsed: elapsed}, fmt.Errorf("failed to read response body: %w", err)
	}

	return fetchResult{status: resp.StatusCode, body: data, elapsed: elapsed}, nil
}
