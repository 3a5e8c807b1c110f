package weather

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	Unavailable = "weather unavailable"
	MissingKey  = "weather API key missing"
)

// maxBody caps how much of a reply is read from either service.
const maxBody = 1 << 20

type Config struct {
	GeoURL      string
	BaseURL     string
	APIKey      string
	DefaultCity string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client resolves the user's city from their public IP and looks up
// current conditions for it. Neither call ever fails into the caller.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}
}

// ResolveCity returns the city of the current public IP, or the default
// city on any failure.
func (c *Client) ResolveCity(ctx context.Context) string {
	body, err := c.get(ctx, c.cfg.GeoURL)
	if err != nil {
		log.Warn("Geolocation failed", "err", err)
		return c.cfg.DefaultCity
	}

	city := strings.TrimSpace(gjson.GetBytes(body, "city").String())
	if city == "" {
		return c.cfg.DefaultCity
	}
	return city
}

// Lookup returns "<condition>, <temp>°C" for city, or a sentinel string.
func (c *Client) Lookup(ctx context.Context, city string) string {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return MissingKey
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/weather?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		log.Warn("Weather fetch failed", "city", city, "err", err)
		return Unavailable
	}

	return parseConditions(body)
}

func parseConditions(body []byte) string {
	res := gjson.ParseBytes(body)
	if res.Get("cod").Int() != 200 {
		log.Warn("Weather API error", "message", res.Get("message").String())
		return Unavailable
	}

	desc := strings.ToLower(res.Get("weather.0.main").String())
	temp := res.Get("main.temp")
	if desc == "" || !temp.Exists() {
		return Unavailable
	}

	return fmt.Sprintf("%s, %d°C", desc, int(math.Round(temp.Float())))
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json (status %d)", resp.StatusCode)
	}
	return body, nil
}
