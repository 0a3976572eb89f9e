package nse

import (
	"fmt"
	"io"
	"net/http"

	"oiflow/logger"
)

// refreshCookies performs the scripted handshake against the origin's
// human-facing pages so its protection layer issues session cookies, then
// captures whatever cookies the jar accumulated into the session store.
//
// The origin ties cookie validity to having visited the pages in order;
// skipping a step risks an incomplete cookie set. On any failure the session
// store is left untouched so stale cookies, if any, remain available for the
// next cycle to retry with.
func (r *Nse_OI_Reader) refreshCookies() error {
	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{"operation": "refresh_cookies"})

	logger.IncrementCookieRefresh()

	srcCfg := r.config.Source.Nse
	for _, page := range srcCfg.HandshakePages {
		if err := r.visitPage(srcCfg.BaseURL + page); err != nil {
			return fmt.Errorf("handshake page %s: %w", page, err)
		}
	}

	cookies := make(map[string]string)
	for _, c := range r.pageClient.Jar.Cookies(r.baseURL) {
		cookies[c.Name] = c.Value
	}

	if len(cookies) == 0 {
		return fmt.Errorf("handshake completed but origin set no cookies")
	}

	r.session.SetCookies(cookies)

	log.WithFields(logger.Fields{"cookies": len(cookies)}).Info("refreshed origin cookies")
	return nil
}

// visitPage issues one rate-limited GET against a human-facing page and
// discards the body. Set-Cookie responses are captured by the client's jar.
func (r *Nse_OI_Reader) visitPage(pageURL string) error {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.pageClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
