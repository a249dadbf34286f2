// Package retail speaks the retailer's storefront catalogue API: the
// taxonomy tree, paged category listings and the product batch lookup.
// All calls go through a shared rate limiter and an HTTP client that
// carries the storefront session cookies.
package retail

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/policy/ratelimit"
)

const defaultUserAgent = "shelfbase-catalog-harvester/1.0"

// DefaultAttributes is the projection requested from the batch lookup
// endpoint. Narrowing the set keeps reply payloads small.
var DefaultAttributes = []string{
	"productId",
	"retailerProductId",
	"name",
	"price",
	"unitPrice",
	"brand",
	"size",
	"categoryPath",
	"alcohol",
}

// Config carries the knobs for a storefront client.
type Config struct {
	Market     Market
	UserAgent  string
	Timeout    time.Duration
	Attributes []string
}

// Client is a session-holding HTTP client for one storefront.
type Client struct {
	http       *resty.Client
	market     Market
	limiter    *ratelimit.Limiter
	attributes []string
	logger     *zap.Logger
}

// NewClient builds a client for the given market. The limiter may be
// nil, in which case requests are not paced.
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.Market.BaseURL == "" {
		return nil, fmt.Errorf("market %q has no base url", cfg.Market.Code)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attributes := cfg.Attributes
	if len(attributes) == 0 {
		attributes = DefaultAttributes
	}

	base, err := url.Parse(cfg.Market.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", cfg.Market.BaseURL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	httpClient := resty.New().
		SetBaseURL(cfg.Market.BaseURL).
		SetCookieJar(jar).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	return &Client{
		http:       httpClient,
		market:     cfg.Market,
		limiter:    limiter,
		attributes: attributes,
		logger:     logger.Named("retail").With(zap.String("market", cfg.Market.Code)),
	}, nil
}

// apiPath joins a catalogue API endpoint under the market's locale.
func (c *Client) apiPath(suffix string) string {
	return fmt.Sprintf("/groceries/%s/api/catalogue/%s", c.market.Locale, suffix)
}

var csrfTokenPattern = regexp.MustCompile(`"csrf"\s*:\s*\{\s*"token"\s*:\s*"([^"]+)"`)

// Bootstrap loads the storefront landing page to pick up session
// cookies and scrapes the CSRF token the API expects on mutating
// requests. The storefront works without it for plain GETs, so a
// missing token is logged rather than fatal.
func (c *Client) Bootstrap(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/groceries/%s", c.market.Locale))
	if err != nil {
		return fmt.Errorf("loading storefront: %w", err)
	}
	defer resp.RawBody().Close()
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Endpoint: "storefront"}
	}

	doc, err := goquery.NewDocumentFromReader(resp.RawBody())
	if err != nil {
		return fmt.Errorf("parsing storefront page: %w", err)
	}
	token := ""
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := csrfTokenPattern.FindStringSubmatch(s.Text()); m != nil {
			token = m[1]
			return false
		}
		return true
	})
	if token == "" {
		c.logger.Warn("storefront page carried no csrf token")
		return nil
	}
	c.http.SetHeader("x-csrf-token", token)
	c.logger.Debug("session bootstrapped")
	return nil
}
