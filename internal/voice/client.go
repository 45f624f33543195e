package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"station-tracker/internal/transit"
)

// ErrRecognitionFailed wraps transport errors and non-2xx responses from
// the voice-route recognition service.
var ErrRecognitionFailed = errors.New("voice route recognition failed")

// Client uploads recorded audio to the route-recognition service. The
// service answers with either a single confirmed route or an array of
// candidates for the caller to disambiguate; both shapes decode to a
// candidate slice here.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RecognizeRoute uploads one recording (WAV or M4A, by filename extension)
// as the multipart field "audio" and returns the candidate routes.
func (c *Client) RecognizeRoute(ctx context.Context, filename string, audio io.Reader) ([]transit.Route, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("audio", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voice/route", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRecognitionFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	return decodeCandidates(raw)
}

// decodeCandidates accepts both response shapes: a JSON array of routes or
// a single route object.
func decodeCandidates(raw []byte) ([]transit.Route, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var routes []transit.Route
		if err := json.Unmarshal(raw, &routes); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrRecognitionFailed, err)
		}
		return routes, nil
	}
	var route transit.Route
	if err := json.Unmarshal(raw, &route); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRecognitionFailed, err)
	}
	return []transit.Route{route}, nil
}
