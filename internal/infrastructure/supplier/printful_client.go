package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storefront/backend/internal/domain/sync"
)

// maxResponseSize is the maximum allowed response size from the API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// providerName is the provider row name for this source
const providerName = "printful"

// retryAfterPattern extracts the wait hint from the API's throttle message
// ("Too many requests. Try again after 5 seconds").
var retryAfterPattern = regexp.MustCompile(`after (\d+) seconds`)

// PrintfulClient implements the catalog source port against the Printful
// API. All requests share one client-side token bucket; product detail
// fetches additionally run under a bounded worker pool.
type PrintfulClient struct {
	config     *PrintfulConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *zap.Logger
}

var _ sync.CatalogSource = (*PrintfulClient)(nil)

// NewPrintfulClient creates a new Printful client with the given configuration
func NewPrintfulClient(config *PrintfulConfig, logger *zap.Logger) (*PrintfulClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &PrintfulClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		retry: RetryPolicy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
		},
		logger: logger.Named("printful"),
	}, nil
}

// ProviderName returns the provider row name for this source
func (c *PrintfulClient) ProviderName() string {
	return providerName
}

// categoriesResult mirrors the /categories response payload
type categoriesResult struct {
	Categories []json.RawMessage `json:"categories"`
}

// FetchCategories returns the full category listing for a locale. The API
// reports categories as one unpaginated set.
func (c *PrintfulClient) FetchCategories(ctx context.Context, locale string) (*sync.RawPage, error) {
	var result categoriesResult
	if err := c.get(ctx, "/categories", nil, locale, &result); err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}

	page := &sync.RawPage{Kind: sync.RecordKindCategory, Records: []sync.RawRecord{}}
	for _, raw := range result.Categories {
		page.Records = append(page.Records, sync.RawRecord{Kind: sync.RecordKindCategory, Data: raw})
	}
	c.logger.Debug("Fetched categories",
		zap.String("locale", locale),
		zap.Int("count", len(page.Records)))
	return page, nil
}

// FetchProducts streams enriched product pages for a locale. Listing pages
// are walked sequentially; the per-product detail calls of each page run
// on a bounded worker pool. The channel closes after the last page or the
// first page-level error.
func (c *PrintfulClient) FetchProducts(ctx context.Context, locale string) <-chan sync.PageResult {
	out := make(chan sync.PageResult)

	go func() {
		defer close(out)

		offset, pageNum := 0, 0
		for {
			listing, err := c.fetchProductListing(ctx, locale, offset)
			if err != nil {
				out <- sync.PageResult{Err: fmt.Errorf("fetching product page at offset %d: %w", offset, err)}
				return
			}
			if len(listing) == 0 {
				return
			}

			records, err := c.enrichProducts(ctx, locale, listing)
			if err != nil {
				out <- sync.PageResult{Err: err}
				return
			}

			select {
			case out <- sync.PageResult{Page: &sync.RawPage{
				Kind:    sync.RecordKindProduct,
				Number:  pageNum,
				Records: records,
			}}:
			case <-ctx.Done():
				out <- sync.PageResult{Err: ctx.Err()}
				return
			}
			pageNum++

			// A short page is the last page.
			if len(listing) < c.config.PageSize {
				return
			}
			offset += c.config.PageSize
		}
	}()

	return out
}

// listedProduct is the subset of a listing item the client needs; the
// full payload comes from the detail endpoint.
type listedProduct struct {
	id  int64
	raw json.RawMessage
}

func (c *PrintfulClient) fetchProductListing(ctx context.Context, locale string, offset int) ([]listedProduct, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(c.config.PageSize))

	var result []json.RawMessage
	if err := c.get(ctx, "/products", query, locale, &result); err != nil {
		return nil, err
	}

	listing := make([]listedProduct, 0, len(result))
	for _, raw := range result {
		var probe struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == 0 {
			// Leave the malformed record in the page; the normalizer
			// counts and skips it.
			listing = append(listing, listedProduct{raw: raw})
			continue
		}
		listing = append(listing, listedProduct{id: probe.ID, raw: raw})
	}
	return listing, nil
}

// productDetailResult mirrors the /products/{id} response payload
type productDetailResult struct {
	Product  json.RawMessage   `json:"product"`
	Variants []json.RawMessage `json:"variants"`
}

// enrichProducts fetches the detail payload for every listed product and
// folds the variants into the product record. Details are fetched
// concurrently, bounded by the configured worker count; record order in
// the page is preserved.
func (c *PrintfulClient) enrichProducts(ctx context.Context, locale string, listing []listedProduct) ([]sync.RawRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		data json.RawMessage
		skip bool
	}
	slots := make([]slot, len(listing))

	jobs := make(chan int)
	var wg gosync.WaitGroup
	var mu gosync.Mutex
	var fatal error

	setFatal := func(err error) {
		mu.Lock()
		if fatal == nil {
			fatal = err
			cancel()
		}
		mu.Unlock()
	}

	for w := 0; w < c.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := listing[i]
				if item.id == 0 {
					slots[i] = slot{data: item.raw}
					continue
				}
				enriched, err := c.fetchProductDetail(ctx, locale, item)
				if err != nil {
					if sync.IsRunFatal(err) || ctx.Err() != nil {
						setFatal(err)
						return
					}
					// A single broken product does not abort the page.
					c.logger.Warn("Skipping product detail",
						zap.Int64("product_id", item.id),
						zap.Error(err))
					slots[i] = slot{skip: true}
					continue
				}
				slots[i] = slot{data: enriched}
			}
		}()
	}

feed:
	for i := range listing {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return nil, fmt.Errorf("fetching product details: %w", fatal)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]sync.RawRecord, 0, len(slots))
	for _, s := range slots {
		if s.skip || s.data == nil {
			continue
		}
		records = append(records, sync.RawRecord{Kind: sync.RecordKindProduct, Data: s.data})
	}
	return records, nil
}

// fetchProductDetail pulls one product's detail payload and merges its
// variants into the product object.
func (c *PrintfulClient) fetchProductDetail(ctx context.Context, locale string, item listedProduct) (json.RawMessage, error) {
	var detail productDetailResult
	path := fmt.Sprintf("/products/%d", item.id)
	if err := c.get(ctx, path, nil, locale, &detail); err != nil {
		return nil, err
	}

	base := detail.Product
	if base == nil {
		base = item.raw
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("%w: product %d detail: %v", sync.ErrMalformedRecord, item.id, err)
	}
	variants, err := json.Marshal(detail.Variants)
	if err != nil {
		return nil, err
	}
	merged["variants"] = variants
	return json.Marshal(merged)
}

// envelope is the common response wrapper of the API
type envelope struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

// get performs one authenticated GET under the rate limiter and retry
// policy, decoding the response envelope's result into out.
func (c *PrintfulClient) get(ctx context.Context, path string, query url.Values, locale string, out any) error {
	return c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		reqURL := c.config.APIBaseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("Accept", "application/json")
		if locale != "" {
			req.Header.Set("X-PF-Language", locale)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return transient(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return transient(err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s %s: status %d", sync.ErrAuth, http.MethodGet, path, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			return transientAfter(
				fmt.Errorf("printful: throttled on %s", path),
				parseRetryAfter(resp, body),
			)
		case resp.StatusCode >= 500:
			return transient(fmt.Errorf("printful: %s returned status %d", path, resp.StatusCode))
		default:
			return fmt.Errorf("printful: %s returned status %d: %s", path, resp.StatusCode, string(body))
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("%w: %s: %v", sync.ErrMalformedPage, path, err)
		}
		if env.Result == nil {
			return fmt.Errorf("%w: %s: response has no result", sync.ErrMalformedPage, path)
		}
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%w: %s: %v", sync.ErrMalformedPage, path, err)
		}
		return nil
	})
}

// parseRetryAfter extracts the server's requested delay from the
// Retry-After header or the throttle message body. Zero means no hint.
func parseRetryAfter(resp *http.Response, body []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if m := retryAfterPattern.FindSubmatch(body); m != nil {
		if secs, err := strconv.Atoi(string(m[1])); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
