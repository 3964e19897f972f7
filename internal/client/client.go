// Package client talks to the intake API on behalf of the form and the
// dashboard.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/patient"
)

// APIError is a non-2xx answer from the API, returned as is without retry.
type APIError struct {
	StatusCode int
	Code       string
	Details    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("api error %d %s", e.StatusCode, e.Code)
}

type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  websocket.DefaultDialer,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpsertPatient writes the whole form for sessionID. The first write for a
// session creates the row, later ones replace it.
func (c *Client) UpsertPatient(ctx context.Context, sessionID string, data patient.FormData, status patient.Status) error {
	params := patient.NewUpsertParams(sessionID, data, status, c.now())
	return c.do(ctx, http.MethodPut, "/patients/sessions/"+url.PathEscape(sessionID), params, nil)
}

// ListPatients returns every patient, most recently updated first.
func (c *Client) ListPatients(ctx context.Context) ([]patient.Patient, error) {
	var resp struct {
		Patients []patient.Patient `json:"patients"`
	}
	if err := c.do(ctx, http.MethodGet, "/patients", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Patients, nil
}

func (c *Client) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/patients/"+id.String(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error   string            `json:"error"`
		Details string            `json:"details"`
		Fields  map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Error
		apiErr.Details = body.Details
		apiErr.Fields = body.Fields
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}
