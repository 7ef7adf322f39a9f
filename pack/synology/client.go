package synology

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrLoginFailed indicates the NAS rejected the credentials.
	ErrLoginFailed = errors.New("synology login failed")

	// ErrNotConnected indicates no NAS host is configured.
	ErrNotConnected = errors.New("NAS not connected; fix credentials")
)

// sessionExpired is the DSM error code for an unknown or expired sid.
const sessionExpired = 119

// APIError is an error reported by the DSM web API.
type APIError struct {
	API  string
	Code int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with code %d", e.API, e.Code)
}

// ClientConfig configures a FileStation client.
type ClientConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Secure             bool
	InsecureSkipVerify bool
	Timeout            time.Duration

	// BaseURL overrides the scheme, host and port, mainly for tests.
	BaseURL string
}

// Client talks to the DSM FileStation web API.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client

	mu  sync.Mutex
	sid string
}

// NewClient creates a FileStation client. It does not log in.
func NewClient(cfg ClientConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		scheme := "http"
		if cfg.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for self-signed NAS certificates
	}

	return &Client{
		base:     base + "/webapi",
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code int `json:"code"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, cgi string, params url.Values, out any) error {
	u := c.base + "/" + cgi + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", params.Get("api"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d", params.Get("api"), resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", params.Get("api"), err)
	}
	if !env.Success {
		code := 0
		if env.Error != nil {
			code = env.Error.Code
		}
		return &APIError{API: params.Get("api"), Code: code}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", params.Get("api"), err)
		}
	}
	return nil
}

// Login opens a FileStation session.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	params := url.Values{
		"api":     {"SYNO.API.Auth"},
		"version": {"3"},
		"method":  {"login"},
		"account": {c.username},
		"passwd":  {c.password},
		"session": {"FileStation"},
		"format":  {"sid"},
	}
	var data struct {
		SID string `json:"sid"`
	}
	if err := c.get(ctx, "auth.cgi", params, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	c.sid = data.SID
	return nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sid == "" {
		return nil
	}
	params := url.Values{
		"api":     {"SYNO.API.Auth"},
		"version": {"1"},
		"method":  {"logout"},
		"session": {"FileStation"},
		"_sid":    {c.sid},
	}
	c.sid = ""
	return c.get(ctx, "auth.cgi", params, nil)
}

// call runs an authenticated FileStation request, logging in first and
// once more if the session expired.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if c.sid == "" {
			if err := c.loginLocked(ctx); err != nil {
				return err
			}
		}
		params.Set("_sid", c.sid)
		err := c.get(ctx, "entry.cgi", params, out)

		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.Code == sessionExpired {
			c.sid = ""
			continue
		}
		return err
	}
}

// ListShares returns the shared folder names.
func (c *Client) ListShares(ctx context.Context) ([]string, error) {
	var data struct {
		Shares []struct {
			Name string `json:"name"`
		} `json:"shares"`
	}
	err := c.call(ctx, url.Values{
		"api":     {"SYNO.FileStation.List"},
		"version": {"2"},
		"method":  {"list_share"},
	}, &data)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(data.Shares))
	for i, s := range data.Shares {
		names[i] = s.Name
	}
	return names, nil
}

// List returns the entry names in a folder.
func (c *Client) List(ctx context.Context, folder string) ([]string, error) {
	var data struct {
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	err := c.call(ctx, url.Values{
		"api":         {"SYNO.FileStation.List"},
		"version":     {"2"},
		"method":      {"list"},
		"folder_path": {folder},
	}, &data)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(data.Files))
	for i, f := range data.Files {
		names[i] = f.Name
	}
	return names, nil
}

// Delete removes a path, recursing into folders.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.call(ctx, url.Values{
		"api":       {"SYNO.FileStation.Delete"},
		"version":   {"1"},
		"method":    {"delete"},
		"path":      {path},
		"recursive": {"true"},
	}, nil)
}

// Rename gives a path a new base name.
func (c *Client) Rename(ctx context.Context, path, name string) error {
	return c.call(ctx, url.Values{
		"api":     {"SYNO.FileStation.Rename"},
		"version": {"2"},
		"method":  {"rename"},
		"path":    {path},
		"name":    {name},
	}, nil)
}

// Copy copies src into the dest folder and waits for the task to finish.
func (c *Client) Copy(ctx context.Context, src, dest string) error {
	var started struct {
		TaskID string `json:"taskid"`
	}
	err := c.call(ctx, url.Values{
		"api":              {"SYNO.FileStation.CopyMove"},
		"version":          {"3"},
		"method":           {"start"},
		"path":             {src},
		"dest_folder_path": {dest},
		"overwrite":        {"false"},
		"remove_src":       {"false"},
	}, &started)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		var status struct {
			Finished bool `json:"finished"`
		}
		err := c.call(ctx, url.Values{
			"api":     {"SYNO.FileStation.CopyMove"},
			"version": {"3"},
			"method":  {"status"},
			"taskid":  {strconv.Quote(started.TaskID)},
		}, &status)
		if err != nil {
			return err
		}
		if status.Finished {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
