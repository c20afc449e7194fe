package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

const (
	jsonSourceName   = "json"
	DefaultJSONURL   = "https://meowfacts.herokuapp.com/?count=1"
	jsonFetchTimeout = 30 * time.Second
	jsonMaxBodyBytes = 1 << 20
)

// JSONSource fetches texts from an endpoint answering {"data": ["...", ...]}.
type JSONSource struct {
	rawURL string
	count  int
	client *http.Client
}

// NewJSON creates a JSON source for rawURL. A positive count overrides the
// "count" query parameter; timeout <= 0 uses the default. The URL is checked on
// every Fetch so that a bad endpoint surfaces as an invalid request failure.
func NewJSON(rawURL string, count int, timeout time.Duration) *JSONSource {
	if timeout <= 0 {
		timeout = jsonFetchTimeout
	}
	return &JSONSource{
		rawURL: rawURL,
		count:  count,
		client: &http.Client{Timeout: timeout},
	}
}

func (js *JSONSource) Name() string {
	return jsonSourceName
}

// textPayload mirrors the response body. Data and its elements are pointers
// so that a missing or null value is told apart from an empty one.
type textPayload struct {
	Data *[]*string `json:"data"`
}

// strictJSON rejects strings that are not valid UTF-8.
var strictJSON = sonic.Config{ValidateString: true}.Froze()

func (js *JSONSource) Fetch(ctx context.Context) ([]string, error) {
	endpoint, err := js.endpoint()
	if err != nil {
		return nil, fail(jsonSourceName, KindInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(jsonSourceName, KindInvalidRequest, fmt.Errorf("create request: %w", err))
	}

	resp, err := js.client.Do(req)
	if err != nil {
		return nil, fail(jsonSourceName, KindTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, jsonMaxBodyBytes))
	if err != nil {
		return nil, fail(jsonSourceName, KindTransport, fmt.Errorf("read body: %w", err))
	}

	texts, err := decodeTexts(body)
	if err != nil {
		return nil, fail(jsonSourceName, KindDecode, fmt.Errorf("HTTP %d: %w", resp.StatusCode, err))
	}
	return texts, nil
}

func (js *JSONSource) endpoint() (string, error) {
	u, err := url.Parse(js.rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q: scheme must be http or https", js.rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q: missing host", js.rawURL)
	}
	if js.count > 0 {
		q := u.Query()
		q.Set("count", strconv.Itoa(js.count))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeTexts parses {"data": [string, ...]}; unknown fields are ignored.
func decodeTexts(body []byte) ([]string, error) {
	var payload textPayload
	if err := strictJSON.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if payload.Data == nil {
		return nil, errors.New("decode body: missing \"data\" field")
	}
	texts := make([]string, 0, len(*payload.Data))
	for i, text := range *payload.Data {
		if text == nil {
			return nil, fmt.Errorf("decode body: data[%d] is null", i)
		}
		texts = append(texts, *text)
	}
	return texts, nil
}
