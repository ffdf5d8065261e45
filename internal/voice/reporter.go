package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"voiceagent-platform/internal/calls"
	"voiceagent-platform/pkg/utils"
)

// Reporter delivers lifecycle signals from the agent process to the backend
// over the service-token API. Delivery is best effort with a short bounded
// retry window; a backend outage must never take the call down with it.
type Reporter struct {
	client  *http.Client
	baseURL string
	token   string

	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func NewReporter(baseURL, serviceToken string) *Reporter {
	return &Reporter{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		token:    serviceToken,
		attempts: 3,
		backoff:  2 * time.Second,
		log:      slog.Default(),
	}
}

// ReportStatus sends a lifecycle status signal. Failures are logged and
// returned, but callers treat them as advisory.
func (r *Reporter) ReportStatus(ctx context.Context, report calls.StatusReport) error {
	err := r.post(ctx, "/internal/calls/status", report)
	if err != nil {
		r.log.Warn("status report delivery failed",
			"call_id", report.CallID, "status", report.Status, "err", err)
	}
	return err
}

// SubmitFinalReport sends the authoritative end-of-call report.
func (r *Reporter) SubmitFinalReport(ctx context.Context, report calls.FinalReport) error {
	err := r.post(ctx, "/internal/calls/report", report)
	if err != nil {
		r.log.Error("final report delivery failed", "call_id", report.CallID, "err", err)
	}
	return err
}

func (r *Reporter) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return utils.Retry(ctx, r.attempts, r.backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.token)

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
		}
		return nil
	})
}
