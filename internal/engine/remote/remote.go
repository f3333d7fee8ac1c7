// Package remote talks to an extraction engine served over HTTP.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"nerapi/internal/engine"
	"nerapi/internal/logger"
)

const codeCallShape = "call_shape"

type Config struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

type Loader struct {
	client *resty.Client
}

func NewLoader(cfg Config) *Loader {
	return &Loader{client: buildHTTPClient(cfg)}
}

// buildHTTPClient configures a client without retries: a failed engine call
// is reported to the caller as is.
func buildHTTPClient(cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return client
}

type loadBody struct {
	Model string `json:"model"`
}

func (l *Loader) Load(ctx context.Context, identifier string) (engine.Engine, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetBody(loadBody{Model: identifier}).
		SetError(&APIError{}).
		Post("/v1/models/load")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if err := handleResponse(resp); err != nil {
		return nil, fmt.Errorf("load model %q: %w", identifier, err)
	}
	logger.FromContext(ctx).Info("Remote model loaded", "model", identifier, "base_url", l.client.BaseURL)
	return &Engine{client: l.client, model: identifier}, nil
}

type Engine struct {
	client *resty.Client
	model  string
}

type extractBody struct {
	Model             string         `json:"model"`
	Text              string         `json:"text"`
	Schema            *engine.Schema `json:"schema,omitempty"`
	EntityTypes       []string       `json:"entity_types,omitempty"`
	Threshold         float64        `json:"threshold"`
	IncludeConfidence bool           `json:"include_confidence"`
	IncludeSpans      bool           `json:"include_spans"`
}

func (e *Engine) Extract(ctx context.Context, call engine.Call) (engine.RawResult, error) {
	body := extractBody{
		Model:             e.model,
		Text:              call.Text,
		Threshold:         call.Threshold,
		IncludeConfidence: call.IncludeConfidence,
		IncludeSpans:      call.IncludeSpans,
	}
	if call.Convention == engine.ConventionSchema {
		schema := call.Schema
		body.Schema = &schema
	} else {
		body.EntityTypes = call.EntityTypes
	}

	var result engine.RawResult
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/extract")
	if err != nil {
		return engine.RawResult{}, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if err := handleResponse(resp); err != nil {
		return engine.RawResult{}, err
	}
	return result, nil
}

func handleResponse(resp *resty.Response) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil || apiErr.Detail.Message == "" {
		return fmt.Errorf("engine error: %s (status %d)", resp.String(), resp.StatusCode())
	}
	if apiErr.Detail.Code == codeCallShape {
		return fmt.Errorf("%w: %s", engine.ErrCallShape, apiErr.Detail.Message)
	}
	return apiErr
}

// APIError is the engine server's error body.
type APIError struct {
	Detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	if e.Detail.Code == "" {
		return "engine error: " + e.Detail.Message
	}
	return fmt.Sprintf("engine error %s: %s", e.Detail.Code, e.Detail.Message)
}
