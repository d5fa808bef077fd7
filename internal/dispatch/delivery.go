package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smsmock/internal/domain"
)

const maxResponseBody = 500

// DeliveryResult classifies one callback attempt.
type DeliveryResult struct {
	Succeeded  bool
	StatusCode *int // nil on transport failure
	Retryable  bool
	Body       string
}

// deliver performs one form-encoded POST to the callback target.
// 2xx is success; transport errors, 5xx, 408 and 429 are retryable;
// any other 4xx is a terminal rejection by the target.
func (d *Dispatcher) deliver(ctx context.Context, target string, payload url.Values) DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(payload.Encode()))
	if err != nil {
		return DeliveryResult{Body: "Error: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := d.Client.Do(req)
	if err != nil {
		return DeliveryResult{Retryable: true, Body: "Error: " + err.Error()}
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	code := res.StatusCode
	result := DeliveryResult{StatusCode: &code, Body: string(body)}
	switch {
	case code >= 200 && code < 300:
		result.Succeeded = true
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		result.Retryable = true
	case code >= 500:
		result.Retryable = true
	}
	return result
}

// deliverWithRetry is the retry coordinator: it attempts delivery up to
// RetryAttempts+1 times with a fixed delay between attempts and records
// one callback log row per attempt. A delivery failure is never
// surfaced to the entity's own status.
func (d *Dispatcher) deliverWithRetry(target string, payload url.Values) {
	maxAttempts := d.Policy.RetryAttempts + 1
	snapshot := payloadSnapshot(payload)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res := d.deliver(d.ctx, target, payload)
		outcome := classify(res, attempt == maxAttempts)
		d.recordAttempt(target, snapshot, attempt, res, outcome)
		if res.Succeeded {
			log.Printf("dispatch: callback to %s delivered (attempt %d)", target, attempt)
			return
		}
		if !res.Retryable {
			log.Printf("dispatch: callback to %s rejected, not retrying (attempt %d)", target, attempt)
			return
		}
		if attempt == maxAttempts {
			log.Printf("dispatch: all callback attempts to %s failed", target)
			return
		}
		if !d.wait(d.Policy.RetryDelay) {
			return
		}
	}
}

func classify(res DeliveryResult, lastAttempt bool) string {
	switch {
	case res.Succeeded:
		return domain.OutcomeSuccess
	case !res.Retryable:
		return domain.OutcomeTerminalFailure
	case lastAttempt:
		return domain.OutcomeTerminalFailure
	default:
		return domain.OutcomeRetryableFailure
	}
}

func (d *Dispatcher) recordAttempt(target, snapshot string, attempt int, res DeliveryResult, outcome string) {
	logRow := domain.CallbackLog{
		TargetURL:     target,
		Payload:       snapshot,
		StatusCode:    res.StatusCode,
		ResponseBody:  res.Body,
		AttemptNumber: attempt,
		Outcome:       outcome,
		CreatedAt:     d.now().UTC().Format(time.RFC3339),
	}
	if _, err := d.Repo.InsertCallbackLog(context.Background(), logRow); err != nil {
		log.Printf("dispatch: record callback attempt failed: %v", err)
	}
}

// payloadSnapshot flattens form values to a JSON object for the audit
// trail, matching what the target received.
func payloadSnapshot(payload url.Values) string {
	flat := make(map[string]string, len(payload))
	for k := range payload {
		flat[k] = payload.Get(k)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(data)
}
