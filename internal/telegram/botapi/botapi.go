package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/mail2telegram/internal/telegram"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// defaultTimeout bounds a single HTTP request, uploads included.
const defaultTimeout = 60 * time.Second

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	Token string
	// BaseURL overrides DefaultBaseURL, e.g. for a self-hosted Bot API server.
	BaseURL string
	Timeout time.Duration
}

// Client sends messages and files through the Telegram Bot API. It performs
// exactly one HTTP request per call; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client with the given configuration.
func New(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/bot" + cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// newWithOverrides creates a Client against a custom endpoint root and HTTP
// client, used for testing.
func newWithOverrides(endpoint string, client *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(endpoint, "/"),
		httpClient: client,
	}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "botapi"
}

// SendMessage posts text to the destination topic.
func (c *Client) SendMessage(ctx context.Context, dest telegram.Destination, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:          dest.ChatID,
		MessageThreadID: dest.TopicID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage request: %w", err)
	}

	return c.do(ctx, "sendMessage", "application/json", body)
}

// SendFile uploads one file with sendPhoto, sendVideo or sendDocument
// depending on kind.
func (c *Client) SendFile(ctx context.Context, dest telegram.Destination, kind telegram.MediaKind, file telegram.InputFile, caption *string) error {
	method, field := fileField(kind)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeDestination(w, dest); err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	if caption != nil {
		if err := w.WriteField("caption", *caption); err != nil {
			return fmt.Errorf("failed to build %s request: %w", method, err)
		}
	}
	if err := writeFile(w, field, file); err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}

	return c.do(ctx, method, w.FormDataContentType(), buf.Bytes())
}

// SendMediaGroup uploads all items in one sendMediaGroup request. Each item
// is written as a file field named by its Ref and described in the "media"
// JSON array.
func (c *Client) SendMediaGroup(ctx context.Context, dest telegram.Destination, media []telegram.InputMedia) error {
	descriptors, err := json.Marshal(buildMediaDescriptors(media))
	if err != nil {
		return fmt.Errorf("failed to marshal media descriptors: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeDestination(w, dest); err != nil {
		return fmt.Errorf("failed to build sendMediaGroup request: %w", err)
	}
	if err := w.WriteField("media", string(descriptors)); err != nil {
		return fmt.Errorf("failed to build sendMediaGroup request: %w", err)
	}
	for _, m := range media {
		if err := writeFile(w, m.Ref, m.File); err != nil {
			return fmt.Errorf("failed to build sendMediaGroup request: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build sendMediaGroup request: %w", err)
	}

	return c.do(ctx, "sendMediaGroup", w.FormDataContentType(), buf.Bytes())
}

// do performs a single POST to the given Bot API method and converts a
// non-OK response into a *telegram.APIError.
func (c *Client) do(ctx context.Context, method, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The token is part of the URL; do not let it leak through *url.Error.
		return fmt.Errorf("telegram %s request failed: %s", method, redact(err.Error(), c.baseURL))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var apiResp apiResponse
	jsonErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode == http.StatusOK && jsonErr == nil && apiResp.OK {
		return nil
	}

	apiErr := &telegram.APIError{
		Method:      method,
		StatusCode:  resp.StatusCode,
		Description: strings.TrimSpace(string(respBody)),
	}
	if jsonErr == nil {
		if apiResp.Description != "" {
			apiErr.Description = apiResp.Description
		}
		if apiResp.Parameters != nil {
			apiErr.RetryAfter = apiResp.Parameters.RetryAfter
		}
	}
	if apiErr.RetryAfter == 0 {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			apiErr.RetryAfter = seconds
		}
	}

	slog.Debug("telegram API error",
		"method", method,
		"status", resp.StatusCode,
		"description", apiErr.Description,
		"retry_after", apiErr.RetryAfter,
	)

	return apiErr
}

// writeDestination writes the chat_id and message_thread_id form fields.
func writeDestination(w *multipart.Writer, dest telegram.Destination) error {
	if err := w.WriteField("chat_id", dest.ChatID); err != nil {
		return err
	}
	if dest.TopicID != 0 {
		if err := w.WriteField("message_thread_id", strconv.FormatInt(dest.TopicID, 10)); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes one file part under the given field name.
func writeFile(w *multipart.Writer, field string, file telegram.InputFile) error {
	part, err := w.CreateFormFile(field, file.Name)
	if err != nil {
		return err
	}
	_, err = part.Write(file.Data)
	return err
}

// redact removes the bot URL (which embeds the token) from s.
func redact(s, baseURL string) string {
	return strings.ReplaceAll(s, baseURL, "<bot-api>")
}
