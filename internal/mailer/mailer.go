package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mailcrewerrors "mailcrew/internal/errors"
	"mailcrew/internal/httpclient"
	"mailcrew/internal/logging"
)

// Message is one outbound email, threaded into an existing conversation via
// InReplyTo when set.
type Message struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// Sender delivers outbound email. Delivery is best-effort from the core's
// perspective; callers log failures but do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config carries mail provider settings.
type Config struct {
	APIURL  string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Client posts messages to a JSON mail-provider API.
type Client struct {
	apiURL     string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient constructs a mail provider client.
func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, mailcrewerrors.NewConfigError("MAILCREW_MAIL_API_URL", "mail provider endpoint is required")
	}
	logger = logging.OrNop(logger)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		httpClient: httpclient.New(timeout, logger),
		logger:     logger,
	}, nil
}

// Send posts one message to the provider.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = c.from
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail message requires a recipient")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Sending mail to=%s subject=%q in_reply_to=%s", msg.To, msg.Subject, msg.InReplyTo)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return mailcrewerrors.FromHTTPStatus(resp.StatusCode, respBody, resp.Header)
	}
	return nil
}
