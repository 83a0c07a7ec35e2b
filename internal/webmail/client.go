// Package webmail implements an authenticated client for the OpenMailbox
// webmail front end. The server exposes no stable API, only the HTML/JSON
// surface meant for browsers, so the client maintains a browser-like session:
// a cookie jar, a fixed User-Agent, and a fresh CSRF token fetched before
// every state-changing request.
package webmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the production webmail host.
const DefaultBaseURL = "https://app.openmailbox.org"

// successMessage is the server's fixed confirmation string, misspelling
// included. Every mutating call except login must return it verbatim.
const successMessage = "the action was performed sucessfully"

// Server-side exception tags the client recognizes.
const (
	exceptionAuthFailed    = "AuthentificationFailed"
	exceptionLoginRequired = "LoginRequired"
)

// httpTimeout bounds every request; operations that hit it fail with a
// transport error, not a classified webmail error.
const httpTimeout = 30 * time.Second

// MessageDescriptor is one entry of the server's mailbox listing.
type MessageDescriptor struct {
	UID     int    `json:"uid"`
	Mailbox string `json:"mailbox"`
	Seen    bool   `json:"seen"`
}

// Client is one authenticated webmail session: a cookie jar plus a chosen
// user agent. A Client belongs to exactly one protocol connection and must
// never be shared across users; cookies and CSRF tokens are per-identity
// state.
type Client struct {
	rootURL     string
	loginPage   string
	loginURL    string
	webmailPage string
	requestsURL string
	sendURL     string

	userAgent  string
	httpClient *http.Client

	// mu serializes every token-consuming operation so that a CSRF token
	// fetched for one call is always the token that call spends.
	mu sync.Mutex
}

// New creates a Client for the webmail server at baseURL, presenting
// userAgent on every request. The cookie jar starts empty; Login populates
// it.
func New(baseURL, userAgent string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	root := strings.TrimRight(baseURL, "/")
	return &Client{
		rootURL:     root,
		loginPage:   root + "/login",
		loginURL:    root + "/requests/guest",
		webmailPage: root + "/webmail/",
		requestsURL: root + "/requests/webmail",
		sendURL:     root + "/requests/webmail/send-message",
		userAgent:   userAgent,
		httpClient:  &http.Client{Jar: jar, Timeout: httpTimeout},
	}, nil
}

// apiResponse is the union of JSON fields the server returns across
// endpoints. Exception is a pointer because its absence, not its emptiness,
// marks success.
type apiResponse struct {
	Exception   *string         `json:"exception"`
	ErrorInfo   string          `json:"error_info"`
	Success     string          `json:"success"`
	PartialList json.RawMessage `json:"partial_list"`
}

// Login authenticates the session. The server sets its session cookies on
// the login response; they live in the client's jar for all later calls.
// The password is used for this one request and not retained.
func (c *Client) Login(ctx context.Context, domain, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.fetchCSRFToken(ctx, c.loginPage)
	if err != nil {
		return err
	}

	form := url.Values{
		"domain":   {domain},
		"name":     {username},
		"password": {password},
		"action":   {"login"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", c.rootURL)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRFToken", token)
	req.Header.Set("Referer", c.loginPage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isJSON(resp) {
		return newError(KindLogin, "invalid response")
	}

	result, err := decodeResponse(resp.Body)
	if err != nil {
		return newError(KindLogin, "invalid response: %v", err)
	}

	if result.Exception != nil {
		if *result.Exception == exceptionAuthFailed {
			return newError(KindAuthenticationFailed, "%s", result.ErrorInfo)
		}
		return newError(KindLogin, "%s", result.ErrorInfo)
	}
	if resp.StatusCode != http.StatusOK {
		return newError(KindLogin, "unexpected response status code: %d", resp.StatusCode)
	}

	// Unlike the other mutating calls, login carries no success marker;
	// status 200 without an exception is all the server gives us.
	return nil
}

// FetchMessages lists messages rangeStart..rangeEnd of mailbox in ascending
// date order, exactly as the server delivers them. Both bounds are validated
// before any network activity.
func (c *Client) FetchMessages(ctx context.Context, mailbox string, rangeStart, rangeEnd int) ([]MessageDescriptor, error) {
	if rangeStart < 1 || rangeEnd < rangeStart {
		return nil, newError(KindGeneric, "invalid range %d-%d", rangeStart, rangeEnd)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.fetchCSRFToken(ctx, c.webmailPage)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"range":    {fmt.Sprintf("%d-%d", rangeStart, rangeEnd)},
		"sort":     {"date"},
		"order":    {"1"}, // 0 = most recent first; 1 = least recent first
		"selected": {""},
		"action":   {"maillist"},
		"mailbox":  {mailbox},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestsURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-CSRFToken", token)
	req.Header.Set("Referer", c.webmailPage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isJSON(resp) {
		return nil, newError(KindGeneric, "invalid response")
	}

	result, err := decodeResponse(resp.Body)
	if err != nil {
		return nil, newError(KindGeneric, "invalid response: %v", err)
	}
	if result.PartialList == nil {
		return nil, newError(KindGeneric, "unexpected response")
	}

	var descriptors []MessageDescriptor
	if err := json.Unmarshal(result.PartialList, &descriptors); err != nil {
		return nil, newError(KindGeneric, "invalid partial_list: %v", err)
	}
	return descriptors, nil
}

// FetchMessage downloads the raw source of one message. The endpoint needs
// no CSRF token, so it may run alongside the serialized operations.
func (c *Client) FetchMessage(ctx context.Context, ref MessageRef) (string, error) {
	query := url.Values{
		"mailbox": {ref.Mailbox},
		"uid":     {fmt.Sprintf("%d", ref.UID)},
		"action":  {"downloadmessage"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestsURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.webmailPage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newError(KindGeneric, "unexpected response status code: %d", resp.StatusCode)
	}
	if contentType(resp) != "text/plain" {
		return "", newError(KindGeneric, "invalid response")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// MarkAsSeen flags the referenced messages as read, one request per mailbox,
// sequentially. An empty input returns 0 without touching the network. On a
// per-mailbox failure the error propagates immediately; mailboxes already
// processed stay mutated on the server.
func (c *Client) MarkAsSeen(ctx context.Context, refs []MessageRef) (int, error) {
	return c.applyBatch(ctx, refs, func(g MailboxGroup) url.Values {
		return url.Values{
			"mailbox": {g.Mailbox},
			"uids":    {joinUIDs(g.UIDs)},
			"action":  {"markasseen"},
		}
	})
}

// TrashMessages moves the referenced messages to the Trash mailbox. Batching
// and failure semantics match MarkAsSeen.
func (c *Client) TrashMessages(ctx context.Context, refs []MessageRef) (int, error) {
	return c.applyBatch(ctx, refs, func(g MailboxGroup) url.Values {
		return url.Values{
			"mailbox": {g.Mailbox},
			"dest":    {"Trash"},
			"uids":    {joinUIDs(g.UIDs)},
			"action":  {"move"},
		}
	})
}

func (c *Client) applyBatch(ctx context.Context, refs []MessageRef, form func(MailboxGroup) url.Values) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, group := range GroupByMailbox(refs) {
		if err := c.postAction(ctx, c.requestsURL, form(group)); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// Send submits an outgoing message through the send endpoint.
func (c *Client) Send(ctx context.Context, msg *OutgoingMessage) error {
	payload, err := json.Marshal(buildSendPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.postAction(ctx, c.sendURL, url.Values{
		"message": {string(payload)},
		"action":  {"sendmessage"},
	})
}

// postAction is the request/response contract shared by every mutating call:
// fetch a fresh token against the webmail page, POST the form with the
// browser-shaped headers, then classify the JSON reply. The caller must hold
// c.mu so the token fetch and its use run as one uninterrupted sequence.
func (c *Client) postAction(ctx context.Context, target string, form url.Values) error {
	token, err := c.fetchCSRFToken(ctx, c.webmailPage)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", c.rootURL)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-CSRFToken", token)
	req.Header.Set("Referer", c.webmailPage)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isJSON(resp) {
		return newError(KindGeneric, "invalid response")
	}

	result, err := decodeResponse(resp.Body)
	if err != nil {
		return newError(KindGeneric, "invalid response: %v", err)
	}

	if result.Exception != nil {
		if *result.Exception == exceptionLoginRequired {
			return newError(KindLoginRequired, "%s", result.ErrorInfo)
		}
		return newError(KindGeneric, "%s", result.ErrorInfo)
	}
	if result.Success != successMessage {
		return newError(KindGeneric, "unexpected response")
	}
	return nil
}

func decodeResponse(body io.Reader) (*apiResponse, error) {
	var result apiResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// contentType returns the response's media type without parameters, or the
// raw header value if it does not parse.
func contentType(resp *http.Response) string {
	raw := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw
	}
	return mediaType
}

func isJSON(resp *http.Response) bool {
	return contentType(resp) == "application/json"
}
