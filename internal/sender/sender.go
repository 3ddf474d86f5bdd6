// Package sender forwards stored invoices to the remote message API.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rezonia/facturx/internal/logger"
	"github.com/rezonia/facturx/internal/model"
)

// MessagesPath is the endpoint receiving injection messages
const MessagesPath = "/api/messages?type=nouveau"

// Config holds the remote endpoint and credentials
type Config struct {
	APIURL       string // remote API base URL
	BaseURL      string // public URL of this service, used for download links
	RoutingKey   string
	FolderNumber string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Sender posts injection messages with a cached bearer token.
// A 401 answer drops the token, fetches a new one and retries exactly once.
type Sender struct {
	cfg    Config
	client *http.Client
	creds  *clientcredentials.Config
	log    zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures a Sender
type Option func(*Sender)

// WithHTTPClient sets the client used for both the token and the API calls
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		s.client = c
	}
}

// New creates a sender
func New(cfg Config, opts ...Option) *Sender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s := &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		creds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		},
		log: logger.WithComponent("sender"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DownloadURL returns the public link of an invoice PDF
func (s *Sender) DownloadURL(id string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/invoices/" + id
}

// Send forwards md to the remote API
func (s *Sender) Send(ctx context.Context, md model.Metadata) error {
	doc := NewFluxExportDocument(md, s.cfg.FolderNumber, s.DownloadURL(md.ID))
	msg, err := NewInjectionMessage(s.cfg.RoutingKey, doc)
	if err != nil {
		return model.NewRemoteSendFailure("build message", err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return model.NewRemoteSendFailure("encode message", err)
	}

	s.log.Info().Str("id", md.ID).Msg("sending invoice to remote API")

	status, err := s.post(ctx, body, false)
	if err == nil && status == http.StatusUnauthorized {
		s.log.Debug().Str("id", md.ID).Msg("token rejected, refreshing")
		status, err = s.post(ctx, body, true)
	}
	if err != nil {
		s.log.Error().Err(err).Str("id", md.ID).Msg("remote send failed")
		return err
	}
	if status < 200 || status >= 300 {
		s.log.Error().Int("status", status).Str("id", md.ID).Msg("remote API rejected invoice")
		return model.NewRemoteSendFailure(fmt.Sprintf("remote API returned status %d", status), nil)
	}

	s.log.Info().Str("id", md.ID).Msg("invoice sent")
	return nil
}

func (s *Sender) post(ctx context.Context, body []byte, refresh bool) (int, error) {
	token, err := s.accessToken(ctx, refresh)
	if err != nil {
		return 0, model.NewRemoteSendFailure("token request failed", err)
	}

	url := strings.TrimRight(s.cfg.APIURL, "/") + MessagesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, model.NewRemoteSendFailure("build request", err)
	}
	req.Header.Set("Content-Type", ContentTypeJSON)
	req.Header.Set("Accept", ContentTypeJSON)
	token.SetAuthHeader(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, model.NewRemoteSendFailure("request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// accessToken returns the cached token, fetching a new one when it is
// missing, expired or refresh is set
func (s *Sender) accessToken(ctx context.Context, refresh bool) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !refresh && s.token.Valid() {
		return s.token, nil
	}
	if s.cfg.TokenURL == "" {
		return nil, errors.New("token endpoint not configured")
	}
	tok, err := s.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, s.client))
	if err != nil {
		s.token = nil
		return nil, err
	}
	s.token = tok
	return tok, nil
}
