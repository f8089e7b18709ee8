package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/dispatchprobe/internal/dispatch"
	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

func init() { color.NoColor = true }

func intPtr(v int) *int { return &v }

func TestSendOptionsBody(t *testing.T) {
	opts := &sendOptions{number: "554892095244", text: "oi"}
	assert.Equal(t, map[string]any{"number": "554892095244", "text": "oi"}, opts.body())

	opts.instance = "main"
	opts.baseURL = "http://gateway:8080"
	opts.prefix = "/evolution"
	body := opts.body()
	assert.Equal(t, "main", body["instance"])
	assert.Equal(t, "http://gateway:8080", body["base_url"])
	assert.Equal(t, "/evolution", body["prefix"])

	target, err := domain.ParseTarget(body)
	require.NoError(t, err)
	assert.Equal(t, "/evolution", target.Prefix)
}

func TestRenderRejected(t *testing.T) {
	env := domain.NewErrorEnvelope("req-1", domain.MsgInvalidNumber)
	var buf bytes.Buffer
	renderResponse(&buf, dispatch.Response{Rejected: &env})

	out := buf.String()
	assert.Contains(t, out, "✗ "+domain.MsgInvalidNumber)
	assert.Contains(t, out, "Request: req-1")
}

func TestRenderResult(t *testing.T) {
	endpoint := "http://gw/message/sendText/inst"
	elapsed := int64(120)
	res := &domain.DispatchResult{
		Success:        true,
		Status:         201,
		RequestID:      "req-2",
		Endpoint:       &endpoint,
		ResponseTimeMs: &elapsed,
		Attempts: []*domain.AttemptRecord{
			{Round: domain.RoundQuick, Method: "POST", URL: "http://gw/api/inst/send-message", Payload: domain.ShapePhoneMessage, ContentType: domain.ContentTypeForm, Status: intPtr(404), ElapsedMs: 5, Error: "HTTP 404"},
			{Round: domain.RoundQuick, Method: "POST", URL: "http://gw/v1/api/inst/send-message", Payload: domain.ShapeNumberText, ElapsedMs: 3, Error: "connection refused"},
			{Round: domain.RoundPrimary, Method: "POST", URL: endpoint, Payload: domain.ShapeNumberText, ContentType: domain.ContentTypeJSON, Status: intPtr(201), OK: true, ElapsedMs: 120},
		},
		Diagnostics: domain.Diagnostics{
			ServerStatus:  intPtr(200),
			InstanceState: "open",
			InstanceReady: true,
		},
	}

	var buf bytes.Buffer
	renderResponse(&buf, dispatch.Response{Result: res})
	out := buf.String()

	assert.Contains(t, out, "Server: 200  Instance: open  Discovered: 0/0")
	assert.Contains(t, out, "phone_message (form)")
	assert.Contains(t, out, "HTTP 404")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "✓ Delivered via "+endpoint+" (HTTP 201, 120ms)")
	assert.Contains(t, out, "Request: req-2")
	// three table rows plus the summary line
	assert.Equal(t, 4, strings.Count(out, "http://gw/"), out)
}

func TestRenderFailure(t *testing.T) {
	res := &domain.DispatchResult{
		RequestID: "req-3",
		Attempts: []*domain.AttemptRecord{
			{Round: domain.RoundPrimary, Method: "POST", URL: "http://gw/message/sendText/inst", Payload: domain.ShapeNumberText, Error: "timeout"},
		},
		Diagnostics: domain.Diagnostics{
			InstanceState:    domain.InstanceStateUnknown,
			DeadlineExceeded: true,
			Recommendations:  []string{domain.MsgReconnectInstance},
		},
	}

	var buf bytes.Buffer
	renderResponse(&buf, dispatch.Response{Result: res})
	out := buf.String()

	assert.Contains(t, out, "Server: unreachable")
	assert.Contains(t, out, "Overall deadline exceeded")
	assert.Contains(t, out, "✗ Not delivered after 1 attempts")
	assert.Contains(t, out, "! "+domain.MsgReconnectInstance)
}

func TestSendRequiresFlags(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"send", "--text", "hello"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "number" not set`)
}
