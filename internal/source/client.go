// Package source fetches finished rounds from the upstream lottery records
// endpoint. The endpoint serves the site's own frontend, so requests carry
// browser-like headers; callers treat any failure as "use local fallback".
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wingobot/internal/game"
	logx "wingobot/pkg/logx"
)

const (
	defaultBaseURL = "https://wapi.m2.app"
	recordsPath    = "/api/game/recordsAsFast"

	defaultGameID1Min  = 3
	defaultGameID30Sec = 4

	defaultReferer = "https://47lottery.online/"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	GameID1Min  int
	GameID30Sec int
	Referer     string
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.GameID1Min == 0 {
		cfg.GameID1Min = defaultGameID1Min
	}
	if cfg.GameID30Sec == 0 {
		cfg.GameID30Sec = defaultGameID30Sec
	}
	if strings.TrimSpace(cfg.Referer) == "" {
		cfg.Referer = defaultReferer
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// recordsResponse is the upstream wire shape. Only the fields we map are
// declared; the endpoint sends more.
type recordsResponse struct {
	Success bool     `json:"success"`
	Data    []record `json:"data"`
}

type record struct {
	IssueNumber json.Number `json:"issueNumber"`
	ColorType   int         `json:"colorType"`
	SizeType    int         `json:"sizeType"`
	CreatedTime int64       `json:"createdTime"` // unix millis
}

// Recent fetches up to count finished rounds for the category, newest first.
// Records with neither a color nor a size type are skipped.
func (c *Client) Recent(ctx context.Context, cat game.Category, count int) ([]game.Outcome, error) {
	if count <= 0 {
		count = 10
	}

	q := url.Values{}
	q.Set("id", strconv.Itoa(c.gameID(cat)))
	q.Set("count", strconv.Itoa(count))
	q.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+recordsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.cfg.Referer)
	req.Header.Set("Origin", strings.TrimRight(c.cfg.Referer, "/"))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message; don't slurp arbitrary bodies.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("records: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var rr recordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("records: decode: %w", err)
	}
	if !rr.Success {
		return nil, fmt.Errorf("records: upstream success=false")
	}

	out := make([]game.Outcome, 0, len(rr.Data))
	for _, r := range rr.Data {
		o, ok := mapRecord(cat, r)
		if !ok {
			if !c.log.IsZero() {
				c.log.Debug("skipping unmapped record", logx.String("issue", r.IssueNumber.String()))
			}
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// NextPeriod returns latest period + 1 from the remote feed, or the fallback
// base when the feed returns nothing.
func (c *Client) NextPeriod(ctx context.Context, cat game.Category) (int64, error) {
	const remoteBase = 1000

	recs, err := c.Recent(ctx, cat, 1)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return remoteBase, nil
	}
	return recs[0].Period + 1, nil
}

func (c *Client) gameID(cat game.Category) int {
	if cat == game.Cat30Sec {
		return c.cfg.GameID30Sec
	}
	return c.cfg.GameID1Min
}

// mapRecord translates one upstream record into an Outcome.
//
// colorType: 1=RED, 2=GREEN. sizeType: 1=BIG, 2=SMALL.
// The headline result is the color, overridden by the size when present.
func mapRecord(cat game.Category, r record) (game.Outcome, bool) {
	var color, size, result game.Label
	switch r.ColorType {
	case 1:
		color = game.Red
	case 2:
		color = game.Green
	}
	switch r.SizeType {
	case 1:
		size = game.Big
	case 2:
		size = game.Small
	}
	result = color
	if size != "" {
		result = size
	}
	if result == "" {
		return game.Outcome{}, false
	}

	period, err := r.IssueNumber.Int64()
	if err != nil || period <= 0 {
		return game.Outcome{}, false
	}

	var at time.Time
	if r.CreatedTime > 0 {
		at = time.UnixMilli(r.CreatedTime)
	}
	return game.Outcome{
		Period:   period,
		Category: cat,
		Result:   result,
		Color:    color,
		Size:     size,
		At:       at,
	}, true
}
