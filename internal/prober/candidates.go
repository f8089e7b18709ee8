package prober

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

// PrimaryRoute is the documented sendText route.
const PrimaryRoute = "/message/sendText/" + domain.InstancePlaceholder

// quickRoute is the WPPConnect-style route most forks expose.
const quickRoute = "/api/" + domain.InstancePlaceholder + "/send-message"

var (
	discoveredShapes = []domain.PayloadShape{
		domain.ShapeNumberText,
		domain.ShapePhoneMessage,
		domain.ShapeTextMessage,
		domain.ShapeRemoteJid,
		domain.ShapeSession,
	}

	quickShapes   = []domain.PayloadShape{domain.ShapeNumberText, domain.ShapePhoneMessage}
	quickPrefixes = []string{"", "/evolution", "/v1"}
)

// routeShape is one path/method/body-style template of the matrix.
type routeShape struct {
	method string
	path   string
	shape  domain.PayloadShape
}

// matrixRoutes is tried under every prefix, in this order.
var matrixRoutes = []routeShape{
	{http.MethodPost, "/message/sendText/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/message/sendText", domain.ShapeInstanceInBody},
	{http.MethodPost, "/messages/sendText/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/message/send-text/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/message/send/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/messages/send/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/chat/sendText/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/api/{instance}/send-text", domain.ShapeNumberText},
	{http.MethodPost, "/sendText/{instance}", domain.ShapeNumberText},
	{http.MethodPost, "/{instance}/sendMessage", domain.ShapeNumberText},
	{http.MethodPost, "/message/sendText", domain.ShapeSession},
	{http.MethodGet, "/message/sendText/{instance}", domain.ShapeQuery},
	{http.MethodPost, "/chat/send", domain.ShapeInstanceInBody},
}

// candidate is one (route, payload, encoding) combination to try.
type candidate struct {
	round       domain.Round
	method      string
	baseURL     string
	route       string // template relative to baseURL
	shape       domain.PayloadShape
	contentType string // empty for GET
	timeout     time.Duration
	endpoint    *domain.DiscoveredEndpoint
}

// key identifies a candidate so the cascade never sends the same request twice.
func (c candidate) key(instance string) string {
	return c.method + " " + c.baseURL + domain.ExpandRoute(c.route, instance) + " " + string(c.shape) + " " + c.contentType
}

// plan carries the per-dispatch inputs the generators need.
type plan struct {
	baseURL    string
	instance   string
	prefix     string
	discovered []*domain.DiscoveredEndpoint
}

// discoveredCandidates replays each known endpoint (outer) with every payload
// shape (inner). The recorded encoding of an endpoint goes first; GET
// routes carry their payload in the query and are replayed once.
func discoveredCandidates(pl *plan, timeout time.Duration) []candidate {
	out := make([]candidate, 0, len(pl.discovered)*(len(discoveredShapes)+1))
	for _, ep := range pl.discovered {
		base := strings.TrimRight(ep.ServerURL, "/")
		if base == "" {
			base = pl.baseURL
		}
		route := ep.Path
		if !strings.HasPrefix(route, "/") {
			route = "/" + route
		}
		method := strings.ToUpper(ep.Method)
		if method == "" {
			method = http.MethodPost
		}

		c := candidate{
			round:    domain.RoundDiscovered,
			method:   method,
			baseURL:  base,
			route:    route,
			timeout:  timeout,
			endpoint: ep,
		}

		if method == http.MethodGet {
			c.shape = domain.ShapeQuery
			out = append(out, c)
			continue
		}

		if ep.Payload != "" {
			c.shape = ep.Payload
			c.contentType = ep.ContentType
			if c.contentType == "" {
				c.contentType = domain.ContentTypeJSON
			}
			out = append(out, c)
		}

		for _, shape := range discoveredShapes {
			c.shape = shape
			c.contentType = contentTypeFor(method, domain.ContentTypeJSON)
			out = append(out, c)
		}
	}
	return out
}

// quickCandidates tries the WPPConnect-style route under a few prefixes.
func quickCandidates(pl *plan, timeout time.Duration) []candidate {
	prefixes := dedupe(append([]string{pl.prefix}, quickPrefixes...))
	out := make([]candidate, 0, len(prefixes)*len(quickShapes))
	for _, prefix := range prefixes {
		for _, shape := range quickShapes {
			out = append(out, candidate{
				round:       domain.RoundQuick,
				method:      http.MethodPost,
				baseURL:     pl.baseURL,
				route:       prefix + quickRoute,
				shape:       shape,
				contentType: domain.ContentTypeJSON,
				timeout:     timeout,
			})
		}
	}
	return out
}

// primaryCandidates is the single documented route, given the long timeout.
func primaryCandidates(pl *plan, timeout time.Duration) []candidate {
	return []candidate{{
		round:       domain.RoundPrimary,
		method:      http.MethodPost,
		baseURL:     pl.baseURL,
		route:       PrimaryRoute,
		shape:       domain.ShapeNumberText,
		contentType: domain.ContentTypeJSON,
		timeout:     timeout,
	}}
}

// matrixCandidates is the prefix-major, route-minor cross product. POST
// routes are tried as JSON first, then form-urlencoded.
func matrixCandidates(pl *plan, timeout time.Duration) []candidate {
	prefixes := dedupe(append([]string{pl.prefix}, domain.AllowedPrefixes...))
	out := make([]candidate, 0, len(prefixes)*len(matrixRoutes)*2)
	for _, prefix := range prefixes {
		for _, rs := range matrixRoutes {
			encodings := []string{""}
			if rs.method == http.MethodPost {
				encodings = []string{domain.ContentTypeJSON, domain.ContentTypeForm}
			}
			for _, ct := range encodings {
				out = append(out, candidate{
					round:       domain.RoundMatrix,
					method:      rs.method,
					baseURL:     pl.baseURL,
					route:       prefix + rs.path,
					shape:       rs.shape,
					contentType: ct,
					timeout:     timeout,
				})
			}
		}
	}
	return out
}

// buildPayload encodes (recipient, text) in the given field-naming convention.
func buildPayload(shape domain.PayloadShape, number, text, instance string) map[string]any {
	switch shape {
	case domain.ShapePhoneMessage:
		return map[string]any{"phone": number, "message": text}
	case domain.ShapeTextMessage:
		return map[string]any{"number": number, "textMessage": map[string]any{"text": text}}
	case domain.ShapeRemoteJid:
		return map[string]any{"remoteJid": number + "@s.whatsapp.net", "message": map[string]any{"text": text}}
	case domain.ShapeSession:
		return map[string]any{"session": instance, "number": number, "text": text}
	case domain.ShapeInstanceInBody:
		return map[string]any{"instance": instance, "number": number, "text": text}
	default:
		return map[string]any{"number": number, "text": text}
	}
}

// requestFor turns a candidate into the URL and body actually sent.
func requestFor(c candidate, instance, number, text, apiKey string) (fetchRequest, error) {
	fr := fetchRequest{
		method:      c.method,
		url:         c.baseURL + domain.ExpandRoute(c.route, instance),
		contentType: c.contentType,
		apiKey:      apiKey,
	}

	payload := buildPayload(c.shape, number, text, instance)

	switch {
	case c.method == http.MethodGet:
		q := url.Values{}
		q.Set("number", number)
		q.Set("text", text)
		fr.url += "?" + q.Encode()
		fr.contentType = ""
	case c.contentType == domain.ContentTypeForm:
		form, err := formEncode(payload)
		if err != nil {
			return fr, err
		}
		fr.body = []byte(form)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return fr, fmt.Errorf("failed to marshal payload: %w", err)
		}
		fr.body = data
	}

	return fr, nil
}

// formEncode flattens a payload into application/x-www-form-urlencoded.
// Nested values are sent as their JSON text.
func formEncode(payload map[string]any) (string, error) {
	values := url.Values{}
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			values.Set(k, val)
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("failed to encode form field %s: %w", k, err)
			}
			values.Set(k, string(data))
		}
	}
	return values.Encode(), nil
}

func contentTypeFor(method, ct string) string {
	if method == http.MethodGet || method == http.MethodHead {
		return ""
	}
	return ct
}

// dedupe keeps the first occurrence of each value, preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
