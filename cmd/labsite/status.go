// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lrm2e/labsite/internal/config"
)

// ProbeStatus is the result of one health endpoint probe.
type ProbeStatus struct {
	Probe     string `json:"probe"`
	URL       string `json:"url"`
	Healthy   bool   `json:"healthy"`
	Code      int    `json:"code,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// probes are queried in this order.
var probes = []string{"liveness", "readiness"}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running labsite server",
		Long: `Query the liveness and readiness endpoints of a running labsite
server and report its health.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "", "observability address (defaults to metrics.addr from config)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "timeout per probe")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	addr := cfg.addr
	if addr == "" {
		appCfg, err := config.Load(configFile, nil)
		if err != nil {
			return err
		}
		addr = appCfg.Metrics.Addr
	}
	if addr == "" {
		return oops.Code("STATUS_NO_ADDR").Errorf("metrics listener is disabled; pass --addr")
	}

	base, err := probeBaseURL(addr)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.timeout}
	statuses := make([]ProbeStatus, 0, len(probes))
	for _, probe := range probes {
		statuses = append(statuses, queryProbe(cmd.Context(), client, base, probe))
	}

	if cfg.jsonOutput {
		output, err := formatStatusJSON(statuses)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), output)
	} else {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("STATUS_UNHEALTHY").With("probe", s.Probe).Errorf("%s probe failed", s.Probe)
		}
	}
	return nil
}

// probeBaseURL turns a listen address into a URL a client can dial. An
// empty or unspecified host becomes the loopback address.
func probeBaseURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", oops.Code("STATUS_BAD_ADDR").With("addr", addr).Wrap(err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func queryProbe(ctx context.Context, client *http.Client, base, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe, URL: base + "/healthz/" + probe}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.URL, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	start := time.Now()
	resp, err := client.Do(req)
	status.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.Code = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	if !status.Healthy {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		status.Error = strings.TrimSpace(string(body))
	}
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tCODE\tLATENCY\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t-------\t------")

	for _, s := range statuses {
		state := "ok"
		if !s.Healthy {
			state = "failing"
		}
		code := "-"
		if s.Code != 0 {
			code = fmt.Sprintf("%d", s.Code)
		}
		detail := s.Error
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n", s.Probe, state, code, s.LatencyMS, detail)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the probes as JSON.
func formatStatusJSON(statuses []ProbeStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}
