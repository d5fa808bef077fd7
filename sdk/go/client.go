package smsmocksdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SMS Mock HTTP API client. It speaks the
// Twilio-compatible surface, so it also works against the real thing
// for the endpoints it covers.
type Client struct {
	BaseURL    string
	AccountSid string
	AuthToken  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, accountSid, authToken string) *Client {
	return &Client{
		BaseURL:    baseURL,
		AccountSid: accountSid,
		AuthToken:  authToken,
		Timeout:    10 * time.Second,
	}
}

// Message represents the API message model (partial).
type Message struct {
	Sid         string `json:"sid"`
	AccountSid  string `json:"account_sid"`
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Status      string `json:"status"`
	NumSegments string `json:"num_segments"`
	DateCreated string `json:"date_created"`
	URI         string `json:"uri"`
}

// Call represents the API call model (partial).
type Call struct {
	Sid         string `json:"sid"`
	AccountSid  string `json:"account_sid"`
	From        string `json:"from"`
	To          string `json:"to"`
	Status      string `json:"status"`
	Direction   string `json:"direction"`
	DateCreated string `json:"date_created"`
	URI         string `json:"uri"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SendMessageParams are the inputs for SendMessage.
type SendMessageParams struct {
	From           string
	To             string
	Body           string
	StatusCallback string
}

// SendMessage submits a message for delivery.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (Message, error) {
	form := url.Values{}
	form.Set("From", p.From)
	form.Set("To", p.To)
	form.Set("Body", p.Body)
	if p.StatusCallback != "" {
		form.Set("StatusCallback", p.StatusCallback)
	}
	var resp Message
	err := c.do(ctx, http.MethodPost, c.accountPath("Messages.json"), form, &resp)
	return resp, err
}

// MakeCallParams are the inputs for MakeCall.
type MakeCallParams struct {
	From           string
	To             string
	URL            string
	StatusCallback string
}

// MakeCall initiates an outbound call.
func (c *Client) MakeCall(ctx context.Context, p MakeCallParams) (Call, error) {
	form := url.Values{}
	form.Set("From", p.From)
	form.Set("To", p.To)
	form.Set("Url", p.URL)
	if p.StatusCallback != "" {
		form.Set("StatusCallback", p.StatusCallback)
	}
	var resp Call
	err := c.do(ctx, http.MethodPost, c.accountPath("Calls.json"), form, &resp)
	return resp, err
}

// GetMessage fetches a message by SID.
func (c *Client) GetMessage(ctx context.Context, sid string) (Message, error) {
	var resp Message
	endpoint := c.accountPath(fmt.Sprintf("Messages/%s.json", url.PathEscape(sid)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetCall fetches a call by SID.
func (c *Client) GetCall(ctx context.Context, sid string) (Call, error) {
	var resp Call
	endpoint := c.accountPath(fmt.Sprintf("Calls/%s.json", url.PathEscape(sid)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.AccountSid, c.AuthToken)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) accountPath(p string) string {
	return fmt.Sprintf("2010-04-01/Accounts/%s/%s", url.PathEscape(c.AccountSid), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
