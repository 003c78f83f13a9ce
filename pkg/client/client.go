// Package client is the Go SDK for the involvement-ledger HTTP API.
//
// It wraps every mutating and read call of the ledger service. Mutating
// calls require a caller token issued by the authentication layer:
//
//	c, _ := client.New("https://ledger.example.org",
//	    client.WithBearerToken(token),
//	)
//	id, err := c.LogActivity(ctx, client.LogActivityRequest{
//	    SubjectID:    42,
//	    ActivityType: "meeting",
//	    Description:  "Attended parent-teacher meeting",
//	})
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the ledger service. Code is the
// stable machine-readable error code ("not_found", "already_verified", ...).
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Entry is the activity record returned by GetEntry.
type Entry struct {
	LogID        uint64   `json:"log_id"`
	Submitter    string   `json:"submitter"`
	SubjectID    uint64   `json:"subject_id"`
	ActivityType string   `json:"activity_type"`
	Description  string   `json:"description"`
	Evidence     []string `json:"evidence"`
	Metadata     string   `json:"metadata,omitempty"`
	CreatedAt    uint64   `json:"created_at"`
	Verified     bool     `json:"verified"`
	Verifier     string   `json:"verifier,omitempty"`
	Disputed     bool     `json:"disputed"`
	DisputeNotes string   `json:"dispute_notes,omitempty"`
}

// TypeInfo is a type-registry record returned by GetType.
type TypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// Status is the ledger overview returned by Status.
type Status struct {
	Paused           bool   `json:"paused"`
	Entries          uint64 `json:"entries"`
	MaxEntriesPerKey int    `json:"max_entries_per_key"`
}

// LogActivityRequest is the payload for LogActivity.
type LogActivityRequest struct {
	SubjectID    uint64   `json:"subject_id"`
	ActivityType string   `json:"activity_type"`
	Description  string   `json:"description"`
	Evidence     []string `json:"evidence,omitempty"`
	Metadata     string   `json:"metadata,omitempty"`
}

// Client talks to one ledger service instance.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches a caller token to every request. Required for
// all mutating calls.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RegisterType registers a new activity type. Administrator token required.
func (c *Client) RegisterType(ctx context.Context, name, description string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/types",
		map[string]string{"name": name, "description": description}, nil)
}

// LogActivity appends a new activity entry and returns its log id.
// Evidence items are 64-character hex hashes.
func (c *Client) LogActivity(ctx context.Context, req LogActivityRequest) (uint64, error) {
	var resp struct {
		LogID uint64 `json:"log_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/activities", req, &resp); err != nil {
		return 0, err
	}
	return resp.LogID, nil
}

// VerifyActivity marks an entry verified by the token's caller.
func (c *Client) VerifyActivity(ctx context.Context, logID uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/activities/%d/verify", logID), nil, nil)
}

// DisputeActivity marks an entry disputed with the given notes.
func (c *Client) DisputeActivity(ctx context.Context, logID uint64, notes string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/activities/%d/dispute", logID),
		map[string]string{"notes": notes}, nil)
}

// UpdateDescription amends an unverified entry's description.
func (c *Client) UpdateDescription(ctx context.Context, logID uint64, description string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/activities/%d/description", logID),
		map[string]string{"description": description}, nil)
}

// AddEvidence appends a hex-encoded evidence hash to an unverified entry.
func (c *Client) AddEvidence(ctx context.Context, logID uint64, hashHex string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/activities/%d/evidence", logID),
		map[string]string{"hash": hashHex}, nil)
}

// SetPaused toggles the global pause switch. Administrator token required.
func (c *Client) SetPaused(ctx context.Context, paused bool) error {
	return c.do(ctx, http.MethodPut, "/api/v1/ledger/pause",
		map[string]bool{"paused": paused}, nil)
}

// GetEntry fetches one entry by log id.
func (c *Client) GetEntry(ctx context.Context, logID uint64) (*Entry, error) {
	entry := &Entry{}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/activities/%d", logID), nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ActivitiesBySubmitter returns the insertion-ordered log ids for a submitter.
func (c *Client) ActivitiesBySubmitter(ctx context.Context, submitter string) ([]uint64, error) {
	var resp struct {
		LogIDs []uint64 `json:"log_ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/submitters/"+submitter+"/activities", nil, &resp); err != nil {
		return nil, err
	}
	return resp.LogIDs, nil
}

// ActivitiesBySubject returns the insertion-ordered log ids for a subject.
func (c *Client) ActivitiesBySubject(ctx context.Context, subjectID uint64) ([]uint64, error) {
	var resp struct {
		LogIDs []uint64 `json:"log_ids"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/subjects/%d/activities", subjectID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.LogIDs, nil
}

// GetType fetches a type-registry record by name.
func (c *Client) GetType(ctx context.Context, name string) (*TypeInfo, error) {
	info := &TypeInfo{}
	if err := c.do(ctx, http.MethodGet, "/api/v1/types/"+name, nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Status fetches the ledger overview.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/status", nil, st); err != nil {
		return nil, err
	}
	return st, nil
}

// do performs one API request, decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &errBody) == nil {
			apiErr.Message = errBody.Error
			apiErr.Code = errBody.Code
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
