package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/dispatchprobe/internal/app"
	"github.com/MrSnakeDoc/dispatchprobe/internal/config"
	"github.com/MrSnakeDoc/dispatchprobe/internal/dispatch"
	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
)

// errNotDelivered makes the process exit non-zero without repeating the
// outcome already printed.
var errNotDelivered = errors.New("message not delivered")

type sendOptions struct {
	number   string
	text     string
	instance string
	baseURL  string
	prefix   string
	asJSON   bool
	logLevel string
}

func newSendCommand() *cobra.Command {
	opts := &sendOptions{}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message and print the attempt trail",
		Example: `  dispatchprobe send --number "55 48 9209-5244" --text "hello"
  dispatchprobe send -n 554892095244 -t hello --base-url http://gateway:8080 --instance main --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := sendCmd.Flags()
	f.StringVarP(&opts.number, "number", "n", "", "Recipient number, digits with country and area code (required)")
	f.StringVarP(&opts.text, "text", "t", "", "Message text (required)")
	f.StringVarP(&opts.instance, "instance", "i", "", "Gateway instance, overrides the configured one")
	f.StringVarP(&opts.baseURL, "base-url", "b", "", "Gateway server URL, used when no configuration record exists")
	f.StringVarP(&opts.prefix, "prefix", "p", "", "Route prefix tried first (e.g. /evolution)")
	f.BoolVar(&opts.asJSON, "json", false, "Print the JSON envelope instead of a table")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	_ = sendCmd.MarkFlagRequired("number")
	_ = sendCmd.MarkFlagRequired("text")

	return sendCmd
}

func (o *sendOptions) body() map[string]any {
	raw := map[string]any{
		"number": o.number,
		"text":   o.text,
	}
	if o.instance != "" {
		raw["instance"] = o.instance
	}
	if o.baseURL != "" {
		raw["base_url"] = o.baseURL
	}
	if o.prefix != "" {
		raw["prefix"] = o.prefix
	}
	return raw
}

func runSend(ctx context.Context, out io.Writer, opts *sendOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	log := logger.New(opts.logLevel, true)

	stack, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close(log)

	resp := stack.Service.Send(ctx, opts.body())

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp.Body()); err != nil {
			return err
		}
	} else {
		renderResponse(out, resp)
	}

	if !resp.Success() {
		return errNotDelivered
	}
	return nil
}

func renderResponse(out io.Writer, resp dispatch.Response) {
	if resp.Rejected != nil {
		color.New(color.FgRed).Fprintf(out, "✗ %s\n", resp.Rejected.Error)
		fmt.Fprintf(out, "Request: %s\n", resp.Rejected.RequestID)
		return
	}

	res := resp.Result
	renderDiagnostics(out, res.Diagnostics)
	if len(res.Attempts) > 0 {
		renderAttempts(out, res.Attempts)
	}

	if res.Success {
		color.New(color.FgGreen).Fprintf(out, "✓ Delivered via %s (HTTP %d, %s)\n",
			deref(res.Endpoint), res.Status, formatMs(res.ResponseTimeMs))
	} else {
		color.New(color.FgRed).Fprintf(out, "✗ Not delivered after %d attempts\n", len(res.Attempts))
	}
	fmt.Fprintf(out, "Request: %s\n", res.RequestID)

	for _, rec := range res.Diagnostics.Recommendations {
		color.New(color.FgYellow).Fprintf(out, "! %s\n", rec)
	}
}

func renderDiagnostics(out io.Writer, d domain.Diagnostics) {
	server := color.RedString("unreachable")
	if d.ServerStatus != nil {
		server = strconv.Itoa(*d.ServerStatus)
	}

	state := color.RedString(d.InstanceState)
	if d.InstanceReady {
		state = color.GreenString(d.InstanceState)
	}

	fmt.Fprintf(out, "Server: %s  Instance: %s  Discovered: %d/%d\n",
		server, state, d.DiscoveredUsed, d.DiscoveredAvailable)
	if d.DeadlineExceeded {
		color.New(color.FgYellow).Fprintln(out, "Overall deadline exceeded, cascade cut short")
	}
}

func renderAttempts(out io.Writer, attempts []*domain.AttemptRecord) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Round", "Method", "URL", "Payload", "Status", "Time", "Result"})
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, a := range attempts {
		status := "-"
		if a.Status != nil {
			status = strconv.Itoa(*a.Status)
		}

		result := color.RedString("fail")
		switch {
		case a.Succeeded():
			result = color.GreenString("ok")
		case a.Error != "":
			result = color.RedString(a.Error)
		}

		payload := string(a.Payload)
		if a.ContentType == domain.ContentTypeForm {
			payload += " (form)"
		}

		table.Append([]string{
			strconv.Itoa(i + 1),
			string(a.Round),
			a.Method,
			a.URL,
			payload,
			status,
			(time.Duration(a.ElapsedMs) * time.Millisecond).String(),
			result,
		})
	}

	table.Render()
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
