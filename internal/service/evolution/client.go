// Package evolution sends WhatsApp messages through an Evolution-style
// gateway HTTP API.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
	"B24Relay/internal/lib/sl"
)

const instancePlaceholder = "{instance}"

type Client struct {
	mu         sync.RWMutex
	baseURL    string
	token      string
	sendPath   string
	mediaPath  string
	statusPath string
	instance   string
	style      entity.AddressStyle
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(conf *config.Config, log *slog.Logger) (*Client, error) {
	style, err := entity.ParseAddressStyle(conf.Evolution.AddressStyle)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    strings.TrimRight(conf.Evolution.BaseURL, "/"),
		token:      conf.Evolution.Token,
		sendPath:   conf.Evolution.SendPath,
		mediaPath:  conf.Evolution.MediaPath,
		statusPath: conf.Evolution.StatusPath,
		instance:   conf.Evolution.Instance,
		style:      style,
		httpClient: &http.Client{},
		log:        log.With(sl.Module("evolution")),
	}, nil
}

func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetConnection replaces the gateway location and token, as saved from the
// settings page.
func (c *Client) SetConnection(baseURL, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.token = token
}

func (c *Client) connection() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.token
}

func (c *Client) Style() entity.AddressStyle {
	return c.style
}

// url joins the base URL and a path, substituting the instance name.
func (c *Client) url(p string) string {
	if strings.Contains(p, instancePlaceholder) {
		if c.instance == "" {
			p = strings.ReplaceAll(p, "/"+instancePlaceholder, "")
		}
		p = strings.ReplaceAll(p, instancePlaceholder, c.instance)
	}
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	base, _ := c.connection()
	return base + p
}

// Body renders a send request in the configured address style.
func (c *Client) Body(req entity.GatewaySendRequest) map[string]interface{} {
	key, value := c.style.Field(req.Recipient)
	body := map[string]interface{}{key: value}
	if req.MediaURL != "" {
		body["media"] = req.MediaURL
		body["mediaUrl"] = req.MediaURL
		body["mediatype"] = MediaType(req.MediaURL, req.MediaName)
		if req.MediaName != "" {
			body["fileName"] = req.MediaName
		}
		if req.Text != "" {
			body["caption"] = req.Text
		}
		return body
	}
	body["text"] = req.Text
	return body
}

func (c *Client) SendText(ctx context.Context, req entity.GatewaySendRequest) (interface{}, error) {
	return c.post(ctx, c.url(c.sendPath), c.Body(req))
}

func (c *Client) SendMedia(ctx context.Context, req entity.GatewaySendRequest) (interface{}, error) {
	return c.post(ctx, c.url(c.mediaPath), c.Body(req))
}

// ConnectionState asks the gateway for the instance state.
func (c *Client) ConnectionState(ctx context.Context) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.statusPath), nil)
	if err != nil {
		return nil, c.sendError(0, nil, fmt.Errorf("create request: %w", err))
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, url string, body map[string]interface{}) (interface{}, error) {
	log := c.log.With(slog.String("url", url))
	t := time.Now()
	defer func() {
		log.With(slog.Duration("duration", time.Since(t))).Debug("gateway send")
	}()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, c.sendError(0, nil, fmt.Errorf("marshal body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, c.sendError(0, nil, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	result, err := c.do(req)
	if err != nil {
		log.Error("gateway send", sl.Err(err))
	}
	return result, err
}

func (c *Client) do(req *http.Request) (interface{}, error) {
	base, token := c.connection()
	if base == "" {
		return nil, &entity.ConfigurationError{Missing: []string{"EVOLUTION_BASE_URL"}}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("apikey", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.sendError(0, nil, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.sendError(resp.StatusCode, nil, fmt.Errorf("read response: %w", err))
	}
	var body interface{}
	if err = json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.sendError(resp.StatusCode, body, fmt.Errorf("gateway returned %d", resp.StatusCode))
	}
	return body, nil
}

func (c *Client) sendError(status int, body interface{}, err error) *entity.RemoteSendError {
	return &entity.RemoteSendError{
		Target: "gateway",
		Code:   entity.CodeGateway,
		Status: status,
		Body:   body,
		Err:    err,
	}
}

// MediaType maps a file to the gateway's media kinds: image, video, audio
// or document.
func MediaType(url, name string) string {
	ext := path.Ext(name)
	if ext == "" {
		u := url
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
		ext = path.Ext(u)
	}
	mt := mime.TypeByExtension(strings.ToLower(ext))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return "image"
	case strings.HasPrefix(mt, "video/"):
		return "video"
	case strings.HasPrefix(mt, "audio/"):
		return "audio"
	}
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return "image"
	case ".mp4", ".3gp", ".mov":
		return "video"
	case ".mp3", ".ogg", ".oga", ".opus", ".m4a", ".wav":
		return "audio"
	}
	return "document"
}
