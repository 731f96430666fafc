// Package backend is the typed HTTP client for the prediction service API.
//
// The console only needs three endpoints: predict, health and records.
// Every call returns either a result or an *Error; nothing panics or leaks a
// raw decode error to the caller.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"predict-console/internal/util"
)

// Endpoint paths relative to the API prefix.
const (
	PathPredict = "/predict"
	PathHealth  = "/health"
	PathRecords = "/records"

	// FileField is the multipart field name the backend reads uploads from.
	FileField = "file"
)

// PredictionResult is the success body of POST /predict.
type PredictionResult struct {
	// Prediction is display text. Non-string JSON values are kept as compact JSON.
	Prediction string
}

// HealthStatus is the success body of GET /health.
type HealthStatus struct {
	ModelLoaded bool   `json:"model_loaded"`
	ModelFile   string `json:"model_file"`
}

// RecordList is the success body of GET /records.
type RecordList struct {
	RecordIDs []string `json:"record_ids"`
}

// Upload is a file chosen for prediction.
type Upload struct {
	Filename string
	Content  []byte
}

// Client calls the prediction API under BaseURL + Prefix.
type Client struct {
	BaseURL *url.URL
	Prefix  string
	HTTP    *http.Client
}

// NewClient constructs a client. timeout <= 0 means requests never time out
// on their own; callers bound them with a context instead.
func NewClient(base, prefix string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", base)
	}
	c := &Client{
		BaseURL: u,
		Prefix:  strings.TrimSuffix(prefix, "/"),
		HTTP:    &http.Client{},
	}
	if timeout > 0 {
		c.HTTP.Timeout = timeout
	}
	return c, nil
}

// PredictFile uploads a file as multipart form data.
func (c *Client) PredictFile(ctx context.Context, up Upload) (PredictionResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(FileField, up.Filename)
	if err != nil {
		return PredictionResult{}, transportError(err)
	}
	if _, err := fw.Write(up.Content); err != nil {
		return PredictionResult{}, transportError(err)
	}
	if err := mw.Close(); err != nil {
		return PredictionResult{}, transportError(err)
	}
	return c.predict(ctx, body, mw.FormDataContentType())
}

// PredictRecord asks for a prediction on a dataset row.
func (c *Client) PredictRecord(ctx context.Context, recordID string) (PredictionResult, error) {
	b, err := json.Marshal(map[string]string{"record_id": recordID})
	if err != nil {
		return PredictionResult{}, transportError(err)
	}
	return c.predict(ctx, bytes.NewReader(b), "application/json")
}

func (c *Client) predict(ctx context.Context, body io.Reader, contentType string) (PredictionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(PathPredict), body)
	if err != nil {
		return PredictionResult{}, transportError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return PredictionResult{}, transportError(err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return PredictionResult{}, ParseBackendError(resp, "Prediction failed.")
	}

	m, err := c.decodeBody(resp)
	if err != nil {
		return PredictionResult{}, err
	}
	return PredictionResult{Prediction: util.DisplayText(m["prediction"])}, nil
}

// Health reports whether the backend has a model loaded. model_loaded is
// read by truthiness, so 1 or "yes" count as loaded.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.get(ctx, PathHealth)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return HealthStatus{}, ParseBackendError(resp, "Could not check model status.")
	}
	m, err := c.decodeBody(resp)
	if err != nil {
		return HealthStatus{}, err
	}
	return HealthStatus{
		ModelLoaded: util.Truthy(m["model_loaded"]),
		ModelFile:   util.DisplayText(m["model_file"]),
	}, nil
}

// errNoRecordIDs is wrapped in a decode error when record_ids is absent or
// not a list.
var errNoRecordIDs = errors.New("response has no record_ids list")

// Records lists the selectable record identifiers in backend order.
//
// A non-2xx answer is reported as "HTTP <code> <status text>: <body>".
// An empty list is a valid answer; a missing record_ids key is a failure.
func (c *Client) Records(ctx context.Context) (RecordList, error) {
	resp, err := c.get(ctx, PathRecords)
	if err != nil {
		return RecordList{}, err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		e := ParseBackendError(resp, "")
		e.Message = fmt.Sprintf("HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
		return RecordList{}, e
	}
	m, err := c.decodeBody(resp)
	if err != nil {
		return RecordList{}, err
	}
	ids, isList := m["record_ids"].([]any)
	if !isList {
		return RecordList{}, decodeError(resp, errNoRecordIDs)
	}
	out := RecordList{RecordIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.RecordIDs = append(out.RecordIDs, util.DisplayText(id))
	}
	return out, nil
}

// decodeBody reads a successful response as a JSON object.
func (c *Client) decodeBody(resp *http.Response) (map[string]any, error) {
	raw, err := readLimit(resp.Body, maxErrorBody*8)
	if err != nil {
		return nil, transportError(err)
	}
	m, err := util.DecodeJSONMap(raw)
	if err != nil {
		return nil, decodeError(resp, err)
	}
	return m, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

func (c *Client) endpoint(path string) string {
	u := c.BaseURL.ResolveReference(&url.URL{Path: c.Prefix + path})
	return u.String()
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
