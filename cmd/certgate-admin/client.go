// ABOUTME: HTTP client for the certgate admin and auth endpoints
// ABOUTME: Decodes responses into the server's own API types

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/certgate/internal/api"
	"github.com/2389/certgate/internal/auth"
)

// errUnauthorized is returned for any 401 from the server.
var errUnauthorized = errors.New("unauthorized")

// Client talks to a certgate server.
type Client struct {
	baseURL     string
	adminSecret string
	http        *http.Client
}

// NewClient creates a client for the server at baseURL (scheme and host,
// without the /api prefix).
func NewClient(baseURL, adminSecret string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		adminSecret: adminSecret,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response carrying the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode/100 != 2 {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Issue asks the server to issue a certificate.
func (c *Client) Issue(ctx context.Context, name, email string, days int) (*auth.IssuedCertificate, error) {
	var out auth.IssuedCertificate
	err := c.do(ctx, http.MethodPost, "/api/admin/generate-certificate", c.adminSecret,
		api.GenerateCertificateRequest{ClientName: name, ClientEmail: email, ExpiresDays: days}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns issued certificates, newest first.
func (c *Client) List(ctx context.Context, status string, limit int) ([]api.CertificateSummary, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/admin/certificates"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out api.ListCertificatesResponse
	if err := c.do(ctx, http.MethodGet, path, c.adminSecret, nil, &out); err != nil {
		return nil, err
	}
	return out.Certificates, nil
}

// Revoke revokes a certificate by id.
func (c *Client) Revoke(ctx context.Context, certificateID string) (*api.RevokeCertificateResponse, error) {
	path := "/api/admin/revoke-certificate?certificate_id=" + url.QueryEscape(certificateID)
	var out api.RevokeCertificateResponse
	if err := c.do(ctx, http.MethodPost, path, c.adminSecret, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Audit returns audit entries, optionally for one certificate or action.
func (c *Client) Audit(ctx context.Context, certificateID, action string, limit int) ([]api.AuditEntryResponse, error) {
	q := url.Values{}
	if certificateID != "" {
		q.Set("certificate_id", certificateID)
	}
	if action != "" {
		q.Set("action", action)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/admin/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out api.ListAuditResponse
	if err := c.do(ctx, http.MethodGet, path, c.adminSecret, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Login presents a certificate in the request body.
func (c *Client) Login(ctx context.Context, certificate string) (*auth.Identity, error) {
	var out api.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", api.LoginRequest{Certificate: certificate}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// Verify presents a certificate as a bearer credential.
func (c *Client) Verify(ctx context.Context, certificate string) (*auth.Identity, error) {
	var out api.VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", certificate, nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// PublicKey fetches the authority public key PEM.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/authority/public-key", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}

// Ready reports the server readiness line.
func (c *Client) Ready(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/ready", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return strings.TrimSpace(string(body)), nil
}
