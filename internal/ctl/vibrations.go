package ctl

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ListOptions controls the list command.
type ListOptions struct {
	Status string
	Limit  int
	JSON   bool
}

// List shows recent vibrations, newest first.
func List(baseURL string, opts ListOptions) error {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/vibrations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Vibrations []VibrationInfo `json:"vibrations"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  RECENT VIBRATIONS"))
	if len(resp.Vibrations) == 0 {
		fmt.Fprintln(stdout, "  No vibrations yet.")
		fmt.Fprintln(stdout)
		return nil
	}
	t := newTable("  ", "ID", "Status", "Usage", "UID", "Package", "Took")
	for _, v := range resp.Vibrations {
		t.row(
			fmt.Sprintf("%d", v.ID),
			colorize(statusColor(v.Status), v.Status),
			v.Caller.Usage,
			fmt.Sprintf("%d", v.Caller.UID),
			v.Caller.Package,
			took(v),
		)
	}
	t.flush()
	fmt.Fprintln(stdout)
	return nil
}

// Get shows one vibration.
func Get(baseURL string, id int64, jsonOutput bool) error {
	var v VibrationInfo
	if err := getJSON(baseURL, fmt.Sprintf("/api/vibrations/%d", id), &v); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(v)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header(fmt.Sprintf("  VIBRATION #%d", v.ID)))
	fmt.Fprintln(stdout, rule(38))
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Status:"), colorize(statusColor(v.Status), v.Status))
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Usage:"), v.Caller.Usage)
	fmt.Fprintf(stdout, "  %-12s %d\n", colorize(dim, "UID:"), v.Caller.UID)
	if v.Caller.Package != "" {
		fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Package:"), v.Caller.Package)
	}
	fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Created:"), v.CreatedAt)
	if v.StartedAt != nil {
		fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Started:"), *v.StartedAt)
	}
	if v.EndedAt != nil {
		fmt.Fprintf(stdout, "  %-12s %s\n", colorize(dim, "Ended:"), *v.EndedAt)
	}
	fmt.Fprintln(stdout)
	return nil
}

// CancelOptions controls the cancel command.
type CancelOptions struct {
	Status    string
	Immediate *bool
	JSON      bool
}

// Cancel asks the daemon to cancel vibration id.
func Cancel(baseURL string, id int64, opts CancelOptions) error {
	body := map[string]any{}
	if opts.Status != "" {
		body["status"] = opts.Status
	}
	if opts.Immediate != nil {
		body["immediate"] = *opts.Immediate
	}
	var resp okResponse
	if err := postJSON(baseURL, fmt.Sprintf("/api/vibrations/%d/cancel", id), body, &resp); err != nil {
		return err
	}
	return printOK(resp, opts.JSON)
}

func took(v VibrationInfo) string {
	if v.StartedAt == nil || v.EndedAt == nil {
		return "-"
	}
	start, err1 := time.Parse(time.RFC3339Nano, *v.StartedAt)
	end, err2 := time.Parse(time.RFC3339Nano, *v.EndedAt)
	if err1 != nil || err2 != nil {
		return "-"
	}
	return formatMs(end.Sub(start).Milliseconds())
}
