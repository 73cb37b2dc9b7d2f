package weather

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yegors/metarboard/internal/atis"
	"github.com/yegors/metarboard/pkg/logger"
)

// maxFeedBytes bounds how much of a feed response is read
const maxFeedBytes = 16 << 20

// Client handles HTTP requests to the METAR and ATIS feeds
type Client struct {
	config    Config
	metarHTTP *http.Client
	atisHTTP  *http.Client
	logger    *logger.Logger
}

// NewClient creates a new feed client
func NewClient(config Config, logger *logger.Logger) *Client {
	return &Client{
		config:    config,
		metarHTTP: &http.Client{Timeout: config.METARRequestTimeout},
		atisHTTP:  &http.Client{Timeout: config.ATISRequestTimeout},
		logger:    logger.Named("weather-client"),
	}
}

// FetchMETARs fetches the latest report for every identifier in one request.
// Lines for identifiers outside icaos are dropped; identifiers without a
// line are simply absent from the result.
func (c *Client) FetchMETARs(ctx context.Context, icaos []string) (map[string]string, error) {
	out := make(map[string]string, len(icaos))
	if len(icaos) == 0 {
		return out, nil
	}

	url := fmt.Sprintf("%s/%s?format=text", strings.TrimRight(c.config.METARBaseURL, "/"), strings.Join(icaos, ","))
	body, err := c.get(ctx, c.metarHTTP, url)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]struct{}, len(icaos))
	for _, icao := range icaos {
		tracked[icao] = struct{}{}
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		icao := strings.Fields(line)[0]
		if _, ok := tracked[icao]; ok {
			out[icao] = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading METAR response: %w", err)
	}

	c.logger.Debug("METAR fetch completed",
		logger.Int("requested", len(icaos)),
		logger.Int("received", len(out)))

	return out, nil
}

// FetchATIS fetches and decodes the bulk ATIS feed
func (c *Client) FetchATIS(ctx context.Context) ([]atis.Record, error) {
	body, err := c.get(ctx, c.atisHTTP, c.config.ATISURL)
	if err != nil {
		return nil, err
	}

	records, err := atis.DecodeFeed(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("ATIS fetch completed", logger.Int("records", len(records)))
	return records, nil
}

// get performs a single GET. There is no retry: the next scheduled slot
// is the retry.
func (c *Client) get(ctx context.Context, httpClient *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}
