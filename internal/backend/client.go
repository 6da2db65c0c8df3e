// Package backend is the HTTP client for the panel backend contract. All
// error classification happens here: stores above this layer switch on
// apperr kinds, never on response codes or message text.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/officeboard/panel/internal/apperr"
	"github.com/officeboard/panel/internal/board"
	"github.com/officeboard/panel/internal/models"
)

// signatureHeader carries the identity token on every backend request.
const signatureHeader = "x-miro-signature"

// appDataSettingsKey flags "settings configured" in per-board app metadata.
const appDataSettingsKey = "settings"

// Client talks to the panel backend on behalf of one board.
type Client struct {
	baseURL         string
	installationURL string
	board           board.Board
	http            *http.Client

	// AuthTimeout bounds the authorize round-trip. The request is aborted
	// client-side when it trips.
	AuthTimeout time.Duration
	// RetryBase is the first delay of the listing retry schedule; each
	// further attempt doubles it.
	RetryBase time.Duration
	// MaxRetries bounds transient-failure retries on the listing fetch.
	MaxRetries int
}

// New creates a backend client. baseURL must not end with a slash.
func New(baseURL, installationURL string, b board.Board) *Client {
	// Authorize answers with a Set-Cookie; the jar carries that session
	// cookie on every later backend request.
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		installationURL: installationURL,
		board:           b,
		http:            &http.Client{Jar: jar},
		AuthTimeout:     3500 * time.Millisecond,
		RetryBase:       time.Second,
		MaxRetries:      3,
	}
}

// boardContext fetches board info and the identity token concurrently.
func (c *Client) boardContext(ctx context.Context) (board.Info, string, error) {
	var (
		info  board.Info
		token string
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.board.Info(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		token, err = c.board.IDToken(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return board.Info{}, "", err
	}
	return info, token, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, token)
	return req, nil
}

// Authorize exchanges a fresh identity token for a backend session cookie
// and returns its expiry in epoch seconds. The round-trip is bounded by
// AuthTimeout; tripping it classifies as a request timeout, which the
// session layer treats as fail-closed.
func (c *Client) Authorize(ctx context.Context) (int64, error) {
	token, err := c.board.IDToken(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnclassified, "failed to authorize the request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.AuthTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/authorize", token, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, apperr.New(apperr.KindRequestTimeout, "request timeout")
		}
		return 0, apperr.Wrap(apperr.KindUnclassified, "failed to authorize the request", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return 0, apperr.New(apperr.KindNotAuthorized, "not authorized")
	case http.StatusForbidden:
		return 0, apperr.New(apperr.KindAccessDenied, "access denied")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperr.New(apperr.KindUnclassified, "failed to authorize the request")
	}

	var body struct {
		ExpiresAt int64 `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.ExpiresAt == 0 {
		return 0, apperr.New(apperr.KindUnclassified, "failed to authorize the request")
	}
	return body.ExpiresAt, nil
}

// FetchDocuments fetches one listing page. An empty cursor requests the
// first page. Transient failures are retried MaxRetries times with
// exponential backoff; 401/403/409 bypass retry and fail classified.
func (c *Client) FetchDocuments(ctx context.Context, cursor string) (*models.Pageable, error) {
	info, token, err := c.boardContext(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "could not fetch documents information", err)
	}

	path := "/api/files?bid=" + url.QueryEscape(info.ID)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	for attempt := 0; ; attempt++ {
		page, retryable, err := c.fetchDocumentsOnce(ctx, path, token)
		if err == nil {
			return page, nil
		}
		if !retryable || attempt >= c.MaxRetries {
			return nil, err
		}
		if err := sleep(ctx, c.RetryBase<<attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) fetchDocumentsOnce(ctx context.Context, path, token string) (*models.Pageable, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, apperr.Wrap(apperr.KindUnclassified, "could not fetch documents information", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, false, apperr.New(apperr.KindNotAuthorized, "not authorized")
	case http.StatusForbidden:
		return nil, false, apperr.New(apperr.KindAccessDenied, "access denied")
	case http.StatusConflict:
		return nil, false, apperr.New(apperr.KindServerMisconfigured, "document server not configured")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, true, apperr.New(apperr.KindUnclassified, "could not fetch documents information")
	}

	var page models.Pageable
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, apperr.Wrap(apperr.KindUnclassified, "could not fetch documents information", err)
	}
	return &page, false, nil
}

// CreateFile creates a new office document on the current board. The
// returned record carries the server-assigned id, timestamps and self link;
// Name is filled in from the request since the backend omits it.
func (c *Client) CreateFile(ctx context.Context, fileName, fileType string) (*models.FileInfo, error) {
	var (
		user  board.UserInfo
		info  board.Info
		token string
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.board.UserInfo(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = c.board.Info(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		token, err = c.board.IDToken(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to create a new document", err)
	}

	path := "/api/files/create?uid=" + url.QueryEscape(user.ID) + "&bid=" + url.QueryEscape(info.ID)
	req, err := c.newRequest(ctx, http.MethodPost, path, token, map[string]string{
		"board_id":  info.ID,
		"file_name": fileName,
		"file_type": fileType,
		"file_lang": info.Locale,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to create a new document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.New(apperr.KindUnclassified, "failed to create a new document")
	}

	var body struct {
		Data models.FileInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to create a new document", err)
	}
	file := body.Data
	file.Name = fileName + "." + fileType
	return &file, nil
}

// RequestConversion asks the backend for a conversion handoff: the
// converter endpoint plus a one-time token.
func (c *Client) RequestConversion(ctx context.Context, fileID string) (*models.ConvertTicket, error) {
	info, token, err := c.boardContext(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "could not get converted document", err)
	}

	path := "/api/files/convert?fid=" + url.QueryEscape(fileID) + "&bid=" + url.QueryEscape(info.ID)
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "could not get converted document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindUnclassified, "could not get converted document")
	}

	var ticket models.ConvertTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "could not get converted document", err)
	}
	return &ticket, nil
}

// Convert posts the one-time token to the converter endpoint, tagged with a
// random shard key, and returns the resulting file URL.
func (c *Client) Convert(ctx context.Context, ticket *models.ConvertTicket) (string, error) {
	shardKey := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	endpoint := strings.TrimRight(ticket.URL, "/") + "/converter?shardKey=" + shardKey

	raw, err := json.Marshal(map[string]string{"token": ticket.Token})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnclassified, "could not get converted document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.New(apperr.KindUnclassified, "could not get converted document")
	}

	var body struct {
		FileURL string `json:"fileUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.FileURL == "" {
		return "", apperr.New(apperr.KindUnclassified, "could not get converted document")
	}
	return body.FileURL, nil
}

// FetchSettings loads the board's server configuration. A 404 means the
// backend has no settings yet and yields empty defaults, not an error.
func (c *Client) FetchSettings(ctx context.Context) (*models.Settings, error) {
	info, token, err := c.boardContext(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to fetch settings", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/settings?bid="+url.QueryEscape(info.ID), token, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to fetch settings", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, apperr.New(apperr.KindNotAuthorized, "not authorized")
	case http.StatusForbidden:
		return nil, apperr.New(apperr.KindAccessDenied, "access denied")
	case http.StatusNotFound:
		return &models.Settings{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindUnclassified, "failed to fetch settings")
	}

	var settings models.Settings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, apperr.Wrap(apperr.KindUnclassified, "failed to fetch settings", err)
	}
	return &settings, nil
}

// SaveSettings persists the board's server configuration and stamps the
// "settings configured" flag in per-board app metadata on success.
func (c *Client) SaveSettings(ctx context.Context, req models.SettingsRequest) error {
	info, token, err := c.boardContext(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindUnclassified, "failed to save settings", err)
	}
	req.BoardID = info.ID

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/settings", token, req)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apperr.Wrap(apperr.KindUnclassified, "failed to save settings", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return apperr.New(apperr.KindAccessDenied, "access denied")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.New(apperr.KindUnclassified, "failed to save settings")
	}

	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.board.SetAppData(ctx, appDataSettingsKey, stamp); err != nil {
		return fmt.Errorf("save settings app data: %w", err)
	}
	return nil
}

// CheckSettings reports whether the "settings configured" flag was ever
// stamped for this board.
func (c *Client) CheckSettings(ctx context.Context) (bool, error) {
	value, err := c.board.AppData(ctx, appDataSettingsKey)
	if err != nil {
		return false, err
	}
	return value != "", nil
}

// OpenEditor opens the backend editor page for the given file through the
// board. The editor authenticates with the session cookie, so callers must
// refresh a stale cookie before the handoff.
func (c *Client) OpenEditor(ctx context.Context, fileID string) error {
	var (
		user board.UserInfo
		info board.Info
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.board.UserInfo(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = c.board.Info(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return apperr.Wrap(apperr.KindUnclassified, "failed to open the document", err)
	}

	editorURL := c.baseURL + "/api/editor?uid=" + url.QueryEscape(user.ID) +
		"&fid=" + url.QueryEscape(fileID) +
		"&bid=" + url.QueryEscape(info.ID) +
		"&lang=" + url.QueryEscape(info.Locale)
	return c.board.OpenURL(ctx, editorURL)
}

// OpenInstallation opens the app installation page through the board.
func (c *Client) OpenInstallation(ctx context.Context) error {
	return c.board.OpenURL(ctx, c.installationURL)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
