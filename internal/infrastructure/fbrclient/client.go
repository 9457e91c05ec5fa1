// Package fbrclient is the HTTP adapter for the FBR digital invoicing API.
//
// Error contract (consumed by the queue worker's failure classification):
//   - *fbr.PermanentError for structured rejections; retrying the same
//     payload cannot succeed
//   - shared.ErrFBRNotConfigured (wrapped) when the authority refuses the
//     bearer token, which is a tenant setup problem rather than a
//     submission failure
//   - plain errors for everything transient: timeouts, connection failures,
//     rate limits, 5xx
package fbrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/shared"
)

// maxResponseSize is the maximum allowed response size from the authority (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	submitPath   = "/postinvoicedata"
	validatePath = "/validateinvoicedata"
)

// Client calls the external tax authority with per-tenant credentials
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. The timeout bounds each remote call; the worker
// additionally applies its own per-entry context deadline.
func New(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ValidateInvoice runs the authority's dry-run validation endpoint and
// returns the violations it reported. A payload the authority accepts yields
// an empty slice.
func (c *Client) ValidateInvoice(ctx context.Context, cred *fbr.Credential, payload *fbr.WirePayload) ([]fbr.Violation, error) {
	resp, err := c.post(ctx, cred, validatePath, payload)
	if err != nil {
		var perr *fbr.PermanentError
		if errors.As(err, &perr) {
			return perr.Violations, nil
		}
		return nil, err
	}
	if resp.ValidationResponse != nil && resp.ValidationResponse.StatusCode != statusCodeValid {
		return violationsFrom(resp.ValidationResponse), nil
	}
	return nil, nil
}

// SubmitInvoice submits the invoice for fiscal recording
func (c *Client) SubmitInvoice(ctx context.Context, cred *fbr.Credential, payload *fbr.WirePayload) (*fbr.SubmissionAck, error) {
	resp, err := c.post(ctx, cred, submitPath, payload)
	if err != nil {
		return nil, err
	}
	if resp.InvoiceNumber == "" {
		// A 2xx without an invoice number is an authority-side anomaly;
		// treat it as transient so the frozen payload is retried.
		return nil, fmt.Errorf("authority returned success without an invoice number")
	}
	return &fbr.SubmissionAck{InvoiceNumber: resp.InvoiceNumber, Dated: resp.Dated}, nil
}

// post issues one authenticated call and classifies the outcome
func (c *Client) post(ctx context.Context, cred *fbr.Credential, path string, payload *fbr.WirePayload) (*invoiceResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	url := strings.TrimRight(cred.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure or timeout: transient by definition
		return nil, fmt.Errorf("authority request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read authority response: %w", err)
	}

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		var resp invoiceResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("authority returned unparseable response: %w", err)
		}
		if resp.ValidationResponse != nil && resp.ValidationResponse.StatusCode == statusCodeInvalid {
			return nil, &fbr.PermanentError{
				StatusCode: httpResp.StatusCode,
				Message:    resp.ValidationResponse.Error,
				Violations: violationsFrom(resp.ValidationResponse),
			}
		}
		return &resp, nil

	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: authority rejected credential (status %d)",
			shared.ErrFBRNotConfigured, httpResp.StatusCode)

	case httpResp.StatusCode == http.StatusBadRequest || httpResp.StatusCode == http.StatusUnprocessableEntity:
		perr := &fbr.PermanentError{StatusCode: httpResp.StatusCode}
		var resp invoiceResponse
		if err := json.Unmarshal(raw, &resp); err == nil && resp.ValidationResponse != nil {
			perr.Message = resp.ValidationResponse.Error
			perr.Violations = violationsFrom(resp.ValidationResponse)
		} else {
			perr.Message = truncate(string(raw), 512)
		}
		return nil, perr

	default:
		// 408, 429, 5xx and anything unexpected: transient
		c.logger.Debug("transient authority failure",
			zap.Int("status", httpResp.StatusCode),
			zap.String("path", path),
		)
		return nil, fmt.Errorf("authority returned status %d: %s", httpResp.StatusCode, truncate(string(raw), 256))
	}
}

// violationsFrom flattens the authority's validation envelope into violations
func violationsFrom(env *validationEnvelope) []fbr.Violation {
	var out []fbr.Violation
	if env.Error != "" {
		out = append(out, fbr.Violation{Field: "invoice", Code: env.ErrorCode, Message: env.Error})
	}
	for _, st := range env.InvoiceStatuses {
		if st.StatusCode == statusCodeValid || st.Error == "" {
			continue
		}
		out = append(out, fbr.Violation{
			Field:   "items[" + st.ItemSNo + "]",
			Code:    st.ErrorCode,
			Message: st.Error,
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ fbr.InvoiceService = (*Client)(nil)
