// Package hupu fetches NBA schedules from the hupu mobile site. The schedule
// page embeds its data as a __NEXT_DATA__ JSON blob, so no HTML parsing is
// needed beyond locating the script tag.
package hupu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"courtcast/internal/event"
	logx "courtcast/pkg/logx"
)

const (
	defaultBaseURL = "https://m.hupu.com/nba/schedule"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxBody caps schedule page reads; the page is well under this.
	maxBody = 8 << 20
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RatePerMin caps outbound requests; 0 means 30/min.
	RatePerMin int
}

type Client struct {
	base string
	hc   *http.Client
	lim  *rate.Limiter
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = 30
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: timeout},
		lim:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 2),
		log:  log,
	}
}

// ---- embedded page data ----

type nextData struct {
	Props struct {
		PageProps struct {
			GameList []gameDay `json:"gameList"`
		} `json:"pageProps"`
	} `json:"props"`
}

type gameDay struct {
	Day       string      `json:"day"`
	MatchList []matchItem `json:"matchList"`
}

type matchItem struct {
	MatchID              string `json:"matchId"`
	HomeTeamName         string `json:"homeTeamName"`
	AwayTeamName         string `json:"awayTeamName"`
	HomeScore            string `json:"homeScore"`
	AwayScore            string `json:"awayScore"`
	CompetitionStageDesc string `json:"competitionStageDesc"`
	MatchStatus          string `json:"matchStatus"`
	RatingDesc           string `json:"ratingDesc"`
}

func (c *Client) ListEvents(ctx context.Context, date time.Time) ([]event.Event, error) {
	data, err := c.fetchSchedule(ctx)
	if err != nil {
		return nil, err
	}

	day := date.Format("20060102")
	var out []event.Event
	for _, gd := range data.Props.PageProps.GameList {
		if gd.Day != day {
			continue
		}
		for _, m := range gd.MatchList {
			ev, err := toEvent(m)
			if err != nil {
				c.log.Warn("skipping unparsable game", logx.String("match_id", m.MatchID), logx.Err(err))
				continue
			}
			out = append(out, ev)
		}
	}
	c.log.Debug("fetched schedule", logx.String("day", day), logx.Int("games", len(out)))
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context, key string) (event.StatusInfo, error) {
	data, err := c.fetchSchedule(ctx)
	if err != nil {
		return event.StatusInfo{}, err
	}

	for _, gd := range data.Props.PageProps.GameList {
		for _, m := range gd.MatchList {
			if m.MatchID != key {
				continue
			}
			st, err := event.NormalizeStatus(m.MatchStatus)
			if err != nil {
				return event.StatusInfo{}, fmt.Errorf("%w: game %s: %v", event.ErrUnavailable, key, err)
			}
			return event.StatusInfo{Status: st, RatingCount: ParseRatingCount(m.RatingDesc)}, nil
		}
	}
	return event.StatusInfo{}, fmt.Errorf("%w: game %s not on schedule page", event.ErrUnavailable, key)
}

func (c *Client) fetchSchedule(ctx context.Context) (*nextData, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", event.ErrUnavailable, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrUnavailable, err)
	}

	blob, err := extractNextData(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrUnavailable, err)
	}

	var data nextData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("%w: decode page data: %v", event.ErrUnavailable, err)
	}
	return &data, nil
}

func toEvent(m matchItem) (event.Event, error) {
	if strings.TrimSpace(m.MatchID) == "" {
		return event.Event{}, errors.New("missing matchId")
	}
	st, err := event.NormalizeStatus(m.MatchStatus)
	if err != nil {
		return event.Event{}, err
	}
	return event.Event{
		Key:         m.MatchID,
		HomeTeam:    m.HomeTeamName,
		AwayTeam:    m.AwayTeamName,
		HomeScore:   m.HomeScore,
		AwayScore:   m.AwayScore,
		StageDesc:   m.CompetitionStageDesc,
		StatusLabel: m.MatchStatus,
		Status:      st,
		RatingCount: ParseRatingCount(m.RatingDesc),
	}, nil
}

// extractNextData pulls the JSON payload out of the __NEXT_DATA__ script tag.
func extractNextData(html string) (string, error) {
	const marker = `id="__NEXT_DATA__"`
	i := strings.Index(html, marker)
	if i < 0 {
		return "", errors.New("__NEXT_DATA__ script not found")
	}
	rest := html[i:]
	open := strings.Index(rest, ">")
	if open < 0 {
		return "", errors.New("malformed __NEXT_DATA__ script tag")
	}
	rest = rest[open+1:]
	end := strings.Index(rest, "</script>")
	if end < 0 {
		return "", errors.New("unterminated __NEXT_DATA__ script tag")
	}
	blob := strings.TrimSpace(rest[:end])
	if blob == "" {
		return "", errors.New("empty __NEXT_DATA__ payload")
	}
	return blob, nil
}

// ParseRatingCount converts rating labels like "4.4万评分" or "1234评分" to a
// count. Unparsable input yields 0, matching the page's "no ratings yet" case.
func ParseRatingCount(text string) int {
	s := strings.TrimSpace(strings.ReplaceAll(text, "评分", ""))
	if s == "" {
		return 0
	}
	if strings.Contains(s, "万") {
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, "万", "")), 64)
		if err != nil {
			return 0
		}
		return int(n * 10000)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(n)
}
