package nse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"oiflow/logger"
	"oiflow/models"
)

// authRetryPolicy bounds the reactive cookie refresh on auth rejections:
// at most maxAttempts data requests per cycle, retrying only when the origin
// answers with one of the listed statuses, forcing a cookie refresh before
// the retry.
type authRetryPolicy struct {
	maxAttempts int
	retryOn     []int
}

var defaultAuthRetry = authRetryPolicy{
	maxAttempts: 2,
	retryOn:     []int{http.StatusUnauthorized, http.StatusForbidden},
}

func (p authRetryPolicy) shouldRetry(status int) bool {
	for _, s := range p.retryOn {
		if s == status {
			return true
		}
	}
	return false
}

// fetchOptionChain fetches the raw option-chain document using the current
// cookies. Cookies older than the configured TTL are refreshed proactively;
// a 401/403 answer triggers exactly one reactive refresh and one retry. All
// failures are returned for logging, never propagated as panics, and yield a
// nil payload so the caller treats the cycle as "no data".
func (r *Nse_OI_Reader) fetchOptionChain() ([]byte, error) {
	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{"operation": "fetch_option_chain"})

	srcCfg := r.config.Source.Nse

	// Proactive refresh when cookies are missing or past their TTL. A failed
	// refresh is not fatal here: the request below proceeds with whatever
	// cookies exist and the reactive path gets another chance.
	if r.session.Empty() || r.session.Age() > srcCfg.CookieTTL {
		log.WithFields(logger.Fields{"cookie_age": r.session.Age().String()}).Info("cookies missing or expired, refreshing")
		if err := r.refreshCookies(); err != nil {
			log.WithError(err).Warn("cookie refresh failed, proceeding with stale cookies")
		}
	}

	policy := defaultAuthRetry
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		resp, err = r.doDataRequest()
		if err != nil {
			return nil, fmt.Errorf("data request: %w", err)
		}

		if !policy.shouldRetry(resp.StatusCode) || attempt == policy.maxAttempts {
			break
		}

		// Auth rejection: the cookie was rejected or expired early. Refresh
		// once and retry once; a second rejection falls through below.
		drainAndClose(resp)
		log.WithFields(logger.Fields{"status": resp.StatusCode, "attempt": attempt}).Warn("origin rejected cookies, refreshing and retrying")
		if refreshErr := r.refreshCookies(); refreshErr != nil {
			log.WithError(refreshErr).Warn("reactive cookie refresh failed")
		}
	}

	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	// Validate the document decodes as the expected structure before handing
	// it downstream; the extractor tolerates missing fields but not garbage.
	var payload models.OptionChainPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode option chain: %w", err)
	}

	return body, nil
}

// doDataRequest issues one rate-limited GET against the JSON API with the
// browser header set, the landing-page referer and the stored cookies.
func (r *Nse_OI_Reader) doDataRequest() (*http.Response, error) {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	srcCfg := r.config.Source.Nse

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, srcCfg.APIEndpoint(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", srcCfg.Referer)

	cookies, _ := r.session.Cookies()
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	start := time.Now()
	resp, err := r.apiClient.Do(req)
	if err != nil {
		return nil, err
	}

	logger.LogPerformanceEntry(
		r.log.WithComponent("nse_reader"),
		"nse_reader", "api_request", time.Since(start),
		logger.Fields{"symbol": srcCfg.Symbol, "status": resp.StatusCode},
	)

	return resp, nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
