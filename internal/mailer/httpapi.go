package mailer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSender delivers mail through an HTTP email provider API. The raw
// provider response for non-2xx statuses is preserved in the returned error
// text so the failure classifier can inspect it.
type HTTPSender struct {
	client *http.Client
	url    string
	apiKey string
}

func NewHTTPSender(url, apiKey string) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		url:    url,
		apiKey: apiKey,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *HTTPSender) Send(to, subject, body string) error {
	payload, err := json.Marshal(sendRequest{To: to, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Limit to 1KB: provider error bodies are short, and this text ends up
	// on the failure record.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.TrimSpace(string(respBody))
	if detail != "" {
		return fmt.Errorf("provider returned %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), detail)
	}
	return fmt.Errorf("provider returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (s *HTTPSender) Name() string {
	return "http"
}
