package domain

import (
	"regexp"
	"strings"
)

const (
	MsgInvalidParameters = "Parâmetros inválidos: forneça { number, text }."
	MsgInvalidNumber     = "Número inválido. Use apenas dígitos com DDI/DDD."
)

var (
	numberPattern = regexp.MustCompile(`^\d{8,15}$`)
	nonDigits     = regexp.MustCompile(`\D`)
)

// Field aliases accepted on the inbound payload, in lookup order.
var (
	numberKeys = []string{"number", "telefone", "to"}
	textKeys   = []string{"text", "message", "mensagem"}
	prefixKeys = []string{"prefix", "base_path_prefix"}
)

// AllowedPrefixes is the closed set of path prefixes the prober may put in
// front of a route. Caller-supplied prefixes outside this set are ignored.
var AllowedPrefixes = []string{"", "/api", "/evolution", "/evolution/api", "/v1", "/api/v1", "/v1/api"}

// DispatchTarget is a validated, normalized send request.
type DispatchTarget struct {
	// Number holds digits only (8 to 15 of them).
	Number string
	Text   string

	// Optional overrides.
	Instance string
	BaseURL  string
	Prefix   string // already normalized against AllowedPrefixes
}

// ParseTarget validates a decoded JSON object and normalizes it into a DispatchTarget.
// It never touches the network; a nil payload is treated as empty.
func ParseTarget(raw map[string]any) (*DispatchTarget, error) {
	rawNumber, numberOK := firstPresent(raw, numberKeys).(string)
	text, textOK := firstPresent(raw, textKeys).(string)
	if !numberOK || !textOK || rawNumber == "" || text == "" {
		return nil, InvalidParameters(MsgInvalidParameters)
	}

	number := NormalizeNumber(rawNumber)
	if !numberPattern.MatchString(number) {
		return nil, InvalidParameters(MsgInvalidNumber)
	}

	prefix, _ := firstPresent(raw, prefixKeys).(string)

	return &DispatchTarget{
		Number:   number,
		Text:     text,
		Instance: stringField(raw, "instance"),
		BaseURL:  stringField(raw, "base_url"),
		Prefix:   NormalizePrefix(prefix),
	}, nil
}

// NormalizeNumber strips every non-digit character.
// Example: "+55 (48) 9209-5244" -> "554892095244"
func NormalizeNumber(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// NormalizePrefix returns p with a leading slash and no trailing slash, or ""
// when the result is not one of AllowedPrefixes.
func NormalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimSuffix(p, "/")
	for _, allowed := range AllowedPrefixes {
		if p == allowed {
			return p
		}
	}
	return ""
}

// firstPresent returns the value of the first key that exists with a non-null value.
func firstPresent(raw map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}
