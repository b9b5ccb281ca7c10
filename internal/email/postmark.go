package email

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// ErrNotConfigured is returned when no server token is set.
var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

type postmarkAttachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkEmail struct {
	From        string               `json:"From"`
	To          string               `json:"To"`
	Subject     string               `json:"Subject"`
	HtmlBody    string               `json:"HtmlBody"`
	TextBody    string               `json:"TextBody"`
	Tag         string               `json:"Tag,omitempty"`
	Attachments []postmarkAttachment `json:"Attachments,omitempty"`
}

// Message is a single outgoing email.
type Message struct {
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Tag         string
	Attachments []Attachment
}

// Send delivers msg through Postmark.
func (c *Client) Send(msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
		Tag:      msg.Tag,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, postmarkAttachment{
			Name:        a.Name,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return nil
}

// SendAuthCode sends the six-digit sign-in code.
func (c *Client) SendAuthCode(toEmail, code string) error {
	text := fmt.Sprintf("Your sign-in code is %s.\n\nEnter it on %s to continue. The code expires in 15 minutes.", code, c.baseURL)
	htmlBody := fmt.Sprintf(
		`<p>Your sign-in code is <strong>%s</strong>.</p><p>Enter it on <a href="%s">%s</a> to continue. The code expires in 15 minutes.</p>`,
		html.EscapeString(code), c.baseURL, html.EscapeString(c.baseURL),
	)
	return c.Send(Message{
		To:       toEmail,
		Subject:  "Your sign-in code",
		TextBody: text,
		HTMLBody: htmlBody,
		Tag:      "auth-code",
	})
}

// Review describes an agreement sent to a lawyer for independent legal advice.
type Review struct {
	LawyerName  string
	LawyerEmail string
	ClientName  string
	PartyLabel  string // "the user" or "the partner"
	Title       string
	Filename    string
	PDF         []byte
}

// SendLawyerReview emails the finished agreement to a lawyer.
func (c *Client) SendLawyerReview(r Review) error {
	text := fmt.Sprintf(
		"Dear %s,\n\n%s has selected you to provide independent legal advice on the attached %s, acting for %s.\n\nPlease reply to this email to arrange a consultation.",
		r.LawyerName, r.ClientName, r.Title, r.PartyLabel,
	)
	htmlBody := fmt.Sprintf(
		`<p>Dear %s,</p><p>%s has selected you to provide independent legal advice on the attached %s, acting for %s.</p><p>Please reply to this email to arrange a consultation.</p>`,
		html.EscapeString(r.LawyerName), html.EscapeString(r.ClientName), html.EscapeString(r.Title), html.EscapeString(r.PartyLabel),
	)
	return c.Send(Message{
		To:       r.LawyerEmail,
		Subject:  fmt.Sprintf("%s for review: %s", r.Title, r.ClientName),
		TextBody: text,
		HTMLBody: htmlBody,
		Tag:      "lawyer-review",
		Attachments: []Attachment{
			{Name: r.Filename, ContentType: "application/pdf", Content: r.PDF},
		},
	})
}

// SendReceipt confirms a completed purchase.
func (c *Client) SendReceipt(toEmail string, contractID int64, amount string) error {
	link := fmt.Sprintf("%s/contracts/%d", c.baseURL, contractID)
	text := fmt.Sprintf("Thank you for your purchase.\n\nAmount paid: %s\n\nYour agreement is ready to download at %s", amount, link)
	htmlBody := fmt.Sprintf(
		`<p>Thank you for your purchase.</p><p>Amount paid: %s</p><p>Your agreement is ready to download at <a href="%s">%s</a>.</p>`,
		html.EscapeString(amount), link, link,
	)
	return c.Send(Message{
		To:       toEmail,
		Subject:  "Your agreement is ready",
		TextBody: text,
		HTMLBody: htmlBody,
		Tag:      "receipt",
	})
}
