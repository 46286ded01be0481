package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cati-platform/internal/config"
)

// ExotelProvider initiates two-leg connect calls through Exotel's REST API.
//
// Success is narrow on purpose: HTTP 2xx AND a call payload whose status is
// not an explicit failure. Every other shape is a transport failure carrying
// the best message we can extract from the body.
type ExotelProvider struct {
	client *http.Client

	baseURL  string
	sid      string
	token    string
	callerID string
}

func NewExotelProvider(cfg config.TelephonyConfig) *ExotelProvider {
	return &ExotelProvider{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		sid:      cfg.AccountSID,
		token:    cfg.AuthToken,
		callerID: cfg.CallerID,
	}
}

func (p *ExotelProvider) Name() string { return "exotel" }

func (p *ExotelProvider) HealthCheck(ctx context.Context) error {
	// The connect endpoint has no ping; treat client construction as healthy.
	return nil
}

// exotelResponse covers both the success and error payload shapes.
type exotelResponse struct {
	Call struct {
		Sid    string `json:"Sid"`
		Status string `json:"Status"`
	} `json:"Call"`
	RestException struct {
		Status  int    `json:"Status"`
		Message string `json:"Message"`
	} `json:"RestException"`
}

func (p *ExotelProvider) InitiateCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if req.From == "" || req.To == "" {
		return CallResult{}, fmt.Errorf("%w: from and to numbers are required", ErrTransport)
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("CallerId", p.callerID)
	form.Set("CallType", "trans")
	if req.FromRingSeconds > 0 {
		form.Set("TimeOut", strconv.Itoa(req.FromRingSeconds))
	}
	if req.ToRingSeconds > 0 {
		form.Set("AttemptTimeOut", strconv.Itoa(req.ToRingSeconds))
	}

	endpoint := p.baseURL + "/Calls/connect.json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CallResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.sid, p.token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CallResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var parsed exotelResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CallResult{}, fmt.Errorf("%w: %s", ErrTransport, extractMessage(parsed, resp.StatusCode, body))
	}
	if parsed.RestException.Message != "" {
		return CallResult{}, fmt.Errorf("%w: %s", ErrTransport, parsed.RestException.Message)
	}
	if parsed.Call.Sid == "" || isFailureStatus(parsed.Call.Status) {
		return CallResult{}, fmt.Errorf("%w: %s", ErrTransport, extractMessage(parsed, resp.StatusCode, body))
	}

	return CallResult{ProviderCallID: parsed.Call.Sid, Status: parsed.Call.Status}, nil
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(status) {
	case "failed", "busy", "no-answer", "canceled":
		return true
	default:
		return false
	}
}

// extractMessage pulls the most specific error message available from the
// provider response, falling back to the raw body and HTTP status.
func extractMessage(parsed exotelResponse, httpStatus int, body []byte) string {
	if parsed.RestException.Message != "" {
		return parsed.RestException.Message
	}
	if parsed.Call.Status != "" {
		return "call status " + parsed.Call.Status
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" {
		if len(trimmed) > 200 {
			trimmed = trimmed[:200]
		}
		return fmt.Sprintf("http %d: %s", httpStatus, trimmed)
	}
	return fmt.Sprintf("http %d", httpStatus)
}

// WithTimeout is a convenience for callers that want the documented 30s
// initiation budget regardless of the inbound request deadline.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
