package rates

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

// DefaultNBSBaseURL is the National Bank of Serbia exchange-rate web app.
const DefaultNBSBaseURL = "https://webappcenter.nbs.rs"

// middle-rate list type of the NBS web app
const nbsListTypeMiddle = "3"

var nbsDownloadLink = regexp.MustCompile(`/ExchangeRateWebApp/ExchangeRate/Download\?ExchangeRateListID=[0-9a-f\-]{36}&[^"'<>\s]*?Format=xml`)

// NBSClient fetches middle rates published by the National Bank of Serbia.
type NBSClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group

	// bounds one shared list fetch, which outlives its first caller
	fetchTimeout time.Duration
}

type NBSConfig struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond bounds outgoing requests; zero disables throttling.
	RequestsPerSecond float64
}

func NewNBSClient(cfg NBSConfig) *NBSClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultNBSBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &NBSClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,

		// an index page and the XML list
		fetchTimeout: 2 * timeout,
	}
}

type nbsItem struct {
	Currency   string `xml:"Currency"`
	Unit       string `xml:"Unit"`
	MiddleRate string `xml:"Middle_Rate"`
}

type nbsList struct {
	Items []nbsItem `xml:"item"`
}

// Rate implements Source.
func (c *NBSClient) Rate(ctx context.Context, date time.Time, currency string) (float64, error) {
	key := core.FormatDate(date)
	// The fetch is shared by every caller asking for the same date, so it
	// runs detached and each caller waits on its own context.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetchList(fetchCtx, date)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return 0, res.Err
	}
	for _, item := range res.Val.([]nbsItem) {
		if item.Currency != currency {
			continue
		}
		unit, err := parseNBSNumber(item.Unit)
		if err != nil || unit == 0 {
			return 0, fmt.Errorf("invalid NBS unit %q for %s", item.Unit, currency)
		}
		middle, err := parseNBSNumber(item.MiddleRate)
		if err != nil {
			return 0, fmt.Errorf("invalid NBS middle rate %q for %s", item.MiddleRate, currency)
		}
		return middle / unit, nil
	}
	return 0, fmt.Errorf("NBS list for %s has no rate for %s", key, currency)
}

func (c *NBSClient) fetchList(ctx context.Context, date time.Time) ([]nbsItem, error) {
	q := url.Values{}
	q.Set("isSearchExecuted", "true")
	q.Set("Date", date.Format("02.01.2006"))
	q.Set("ExchangeRateListTypeID", nbsListTypeMiddle)
	indexURL := c.baseURL + "/ExchangeRateWebApp/ExchangeRate/IndexByDate?" + q.Encode()

	page, err := c.get(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch NBS index: %w", err)
	}
	link := nbsDownloadLink.Find(page)
	if link == nil {
		return nil, fmt.Errorf("NBS XML link not found for %s", core.FormatDate(date))
	}

	body, err := c.get(ctx, c.baseURL+html.UnescapeString(string(link)))
	if err != nil {
		return nil, fmt.Errorf("fetch NBS XML: %w", err)
	}
	var list nbsList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode NBS XML: %w", err)
	}

	slog.DebugContext(ctx, "Fetched NBS exchange rate list",
		log.FieldComponent, log.ComponentRates,
		log.FieldDate, core.FormatDate(date),
		"items", len(list.Items))

	return list.Items, nil
}

func (c *NBSClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseNBSNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}
