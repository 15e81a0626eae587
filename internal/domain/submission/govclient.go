package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichub/clinichub/internal/domain/anonymizer"
)

// GovRequest is the wire format sent to the government compliance API. The
// clinical payload is already anonymized and encrypted; everything else is
// routing and audit metadata.
type GovRequest struct {
	BatchID          uuid.UUID           `json:"batch_id"`
	Month            string              `json:"month"`
	ReportCount      int                 `json:"report_count"`
	SubmittedBy      string              `json:"submitted_by"`
	SubmittedAt      time.Time           `json:"submitted_at"`
	EncryptedPayload []byte              `json:"encrypted_payload"` // base64 via encoding/json
	Encryption       anonymizer.Metadata `json:"encryption"`
	ComplianceFlags  []string            `json:"compliance_flags"`
}

// GovResponse is a successful acknowledgement from the government API.
type GovResponse struct {
	Reference      string          `json:"reference"`
	ConfirmationID string          `json:"confirmation_id"`
	Raw            json.RawMessage `json:"-"`
}

// GovernmentClient submits one batch payload. Implementations return
// *SubmissionError for any failed attempt so the engine can schedule retries.
type GovernmentClient interface {
	Submit(ctx context.Context, req GovRequest) (*GovResponse, error)
}

// HTTPGovClient talks to the real compliance endpoint.
type HTTPGovClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

func NewHTTPGovClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *HTTPGovClient {
	return &HTTPGovClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "gov_client").Logger(),
	}
}

func (c *HTTPGovClient) Submit(ctx context.Context, req GovRequest) (*GovResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &SubmissionError{Code: CodeClientError, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submissions", bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{Code: CodeClientError, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Batch-ID", req.BatchID.String())

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		code := CodeNetworkError
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			code = CodeTimeout
		}
		c.log.Warn().Err(err).Str("batch_id", req.BatchID.String()).Msg("government API unreachable")
		return nil, &SubmissionError{Code: code, Message: err.Error(), Recoverable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &SubmissionError{Code: CodeNetworkError, Message: fmt.Sprintf("read response: %v", err), Recoverable: true}
	}

	c.log.Info().
		Str("batch_id", req.BatchID.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("government API responded")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var gr GovResponse
		if err := json.Unmarshal(raw, &gr); err != nil {
			return nil, &SubmissionError{Code: CodeServerError, Message: fmt.Sprintf("malformed acknowledgement: %v", err), Recoverable: true}
		}
		gr.Raw = raw
		return &gr, nil
	case resp.StatusCode >= 500:
		return nil, &SubmissionError{Code: CodeServerError, Message: httpFailureMessage(resp.StatusCode, raw), Recoverable: true}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &SubmissionError{Code: CodeTimeout, Message: httpFailureMessage(resp.StatusCode, raw), Recoverable: true}
	default:
		return nil, &SubmissionError{Code: CodeClientError, Message: httpFailureMessage(resp.StatusCode, raw), Recoverable: false}
	}
}

func httpFailureMessage(status int, body []byte) string {
	msg := fmt.Sprintf("HTTP %d", status)
	if len(body) > 0 {
		const max = 256
		if len(body) > max {
			body = body[:max]
		}
		msg += ": " + string(body)
	}
	return msg
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// SimulatedGovClient acknowledges every submission locally. Used in sandbox
// mode where no government endpoint is configured.
type SimulatedGovClient struct {
	seq atomic.Int64
}

func NewSimulatedGovClient() *SimulatedGovClient { return &SimulatedGovClient{} }

func (c *SimulatedGovClient) Submit(_ context.Context, req GovRequest) (*GovResponse, error) {
	n := c.seq.Add(1)
	return &GovResponse{
		Reference:      fmt.Sprintf("SIM-%s-%06d", req.Month, n),
		ConfirmationID: uuid.NewString(),
	}, nil
}
