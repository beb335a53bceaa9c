package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// channelClient is the shared rate-limited HTTP client behind every
// marketplace adapter. Each channel configures its own base URL, key header
// and rate limit through env vars prefixed with the channel name, e.g.
// AMAZON_API_BASE_URL, AMAZON_RATE_LIMIT_PER_MIN.
type channelClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func newChannelClient(envPrefix, defaultBaseURL, apiKey string) (*channelClient, error) {
	baseURL := strings.TrimSpace(os.Getenv(envPrefix + "_API_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv(envPrefix + "_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New(strings.ToLower(envPrefix) + " api key is empty")
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv(envPrefix + "_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &channelClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type channelListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	Orders     []json.RawMessage `json:"orders"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (r channelListResponse) records() []json.RawMessage {
	if len(r.Data) > 0 {
		return r.Data
	}
	if len(r.Items) > 0 {
		return r.Items
	}
	return r.Orders
}

func (c *channelClient) getList(ctx context.Context, path string, params url.Values) (channelListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return channelListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return channelListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return channelListResponse{}, fmt.Errorf("channel api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed channelListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return channelListResponse{}, err
	}
	return parsed, nil
}

func (c *channelClient) postJSON(ctx context.Context, path string, payload interface{}) error {
	<-c.limiter
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("channel api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
