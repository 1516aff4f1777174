package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dobkap/internal/core"
)

// DefaultBanxicoBaseURL is the Banco de México SIE API.
const DefaultBanxicoBaseURL = "https://www.banxico.org.mx/SieAPIRest/service/v1"

// FIX rate series, MXN per USD
const banxicoUSDMXNSeries = "SF43718"

// BanxicoClient reads the official USD/MXN rate from Banco de México.
type BanxicoClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewBanxicoClient returns nil when token is empty; callers register the
// client as a secondary source only when it is non-nil.
func NewBanxicoClient(baseURL, token string, timeout time.Duration) *BanxicoClient {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultBanxicoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BanxicoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *BanxicoClient) Currency() string { return "MXN" }

type banxicoResponse struct {
	Bmx struct {
		Series []struct {
			Datos []struct {
				Fecha string `json:"fecha"`
				Dato  string `json:"dato"`
			} `json:"datos"`
		} `json:"series"`
	} `json:"bmx"`
}

// USDCross implements CrossSource.
func (c *BanxicoClient) USDCross(ctx context.Context, date time.Time) (float64, error) {
	day := core.FormatDate(date)
	u := fmt.Sprintf("%s/series/%s/datos/%s/%s", c.baseURL, banxicoUSDMXNSeries, day, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Bmx-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch banxico rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("banxico returned status %d", resp.StatusCode)
	}

	var body banxicoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode banxico response: %w", err)
	}
	if len(body.Bmx.Series) == 0 || len(body.Bmx.Series[0].Datos) != 1 {
		return 0, fmt.Errorf("banxico has no single observation for %s", day)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(body.Bmx.Series[0].Datos[0].Dato), 64)
	if err != nil {
		return 0, fmt.Errorf("parse banxico rate: %w", err)
	}
	return v, nil
}
