package nse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "oiflow/config"
	oichannel "oiflow/internal/channel/oi"
	"oiflow/logger"
	"oiflow/models"
)

// Nse_OI_Reader polls the NSE option-chain API on a fixed interval and feeds
// raw documents to the totals extractor. It owns the scraping session: the
// HTTP clients, cookie jar and session store are mutated only from the poll
// goroutine and are never shared with the serving path.
type Nse_OI_Reader struct {
	config     *appconfig.Config
	pageClient *http.Client
	apiClient  *http.Client
	session    *sessionStore
	channels   *oichannel.Channels
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	limiter    *rate.Limiter
	baseURL    *url.URL
}

// Nse_OI_NewReader creates a reader for the configured origin. The handshake
// client carries a cookie jar to capture Set-Cookie responses; the API client
// shares the same transport but attaches cookies explicitly from the session
// store, so the store stays the single source of truth for the data path.
func Nse_OI_NewReader(cfg *appconfig.Config, ch *oichannel.Channels) (*Nse_OI_Reader, error) {
	log := logger.GetLogger()

	srcCfg := cfg.Source.Nse

	baseURL, err := url.Parse(srcCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &browserTransport{
		base: &http.Transport{
			MaxIdleConns:        srcCfg.ConnectionPool.MaxIdleConns,
			MaxIdleConnsPerHost: srcCfg.ConnectionPool.MaxIdleConns,
			MaxConnsPerHost:     srcCfg.ConnectionPool.MaxConnsPerHost,
			IdleConnTimeout:     srcCfg.ConnectionPool.IdleConnTimeout,
		},
		userAgent: srcCfg.UserAgent,
	}

	rl := cfg.Poller.RateLimit
	rps := rl.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := rl.BurstSize
	if burst <= 0 {
		burst = 1
	}

	reader := &Nse_OI_Reader{
		config:     cfg,
		pageClient: &http.Client{Transport: transport, Jar: jar, Timeout: cfg.Poller.Timeout},
		apiClient:  &http.Client{Transport: transport, Timeout: cfg.Poller.Timeout},
		session:    newSessionStore(),
		channels:   ch,
		wg:         &sync.WaitGroup{},
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		baseURL:    baseURL,
	}

	log.WithComponent("nse_reader").WithFields(logger.Fields{
		"base_url": srcCfg.BaseURL,
		"symbol":   srcCfg.Symbol,
		"interval": cfg.Poller.Interval.String(),
		"timeout":  cfg.Poller.Timeout.String(),
	}).Info("nse reader initialized")

	return reader, nil
}

// Nse_OI_Start launches the poll worker. Cookies are warmed once before the
// first cycle; a failed warm-up is logged and left to the fetch path to retry.
func (r *Nse_OI_Reader) Nse_OI_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{"operation": "Nse_OI_Start"})
	log.Info("starting nse reader")

	if r.session.Empty() {
		if err := r.refreshCookies(); err != nil {
			log.WithError(err).Warn("initial cookie handshake failed, first fetch will retry")
		}
	}

	r.wg.Add(1)
	go r.fetchWorker()

	log.Info("nse reader started successfully")
	return nil
}

// Nse_OI_Stop signals the poll worker to stop and waits for completion.
func (r *Nse_OI_Reader) Nse_OI_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("nse_reader").Info("stopping nse reader")
	r.wg.Wait()
	r.log.WithComponent("nse_reader").Info("nse reader stopped")
}

// SessionAge exposes the current cookie age for the status endpoint.
func (r *Nse_OI_Reader) SessionAge() time.Duration {
	return r.session.Age()
}

// fetchWorker drives the fetch-parse-store cycle forever. A cycle failure of
// any kind is logged and the worker sleeps until the next tick; only context
// cancellation stops the loop.
func (r *Nse_OI_Reader) fetchWorker() {
	defer r.wg.Done()

	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{
		"symbol": r.config.Source.Nse.Symbol,
		"worker": "option_chain_fetcher",
	})

	log.Info("starting option-chain worker")

	interval := r.config.Poller.Interval

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			r.runCycle()
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": interval.Milliseconds(),
				}).Warn("fetch took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

// runCycle executes one fetch cycle, recovering any panic so a single bad
// cycle can never take the loop down.
func (r *Nse_OI_Reader) runCycle() {
	log := r.log.WithComponent("nse_reader").WithFields(logger.Fields{"operation": "run_cycle"})

	defer func() {
		if rec := recover(); rec != nil {
			logger.IncrementFetchFailure()
			log.WithFields(logger.Fields{"panic": fmt.Sprint(rec)}).Error("recovered panic in fetch cycle")
		}
	}()

	body, err := r.fetchOptionChain()
	if err != nil {
		logger.IncrementFetchFailure()
		log.WithError(err).Warn("no data this cycle, keeping last snapshot")
		return
	}

	rawData := models.RawOIMessage{
		Source:    "nse",
		Symbol:    r.config.Source.Nse.Symbol,
		CycleID:   uuid.NewString(),
		Data:      body,
		Timestamp: time.Now().UTC(),
	}

	if r.channels.SendRaw(r.ctx, rawData) {
		logger.IncrementFetchSuccess()
		log.WithFields(logger.Fields{"cycle_id": rawData.CycleID, "bytes": len(body)}).Info("option-chain data sent to raw channel")
	} else if r.ctx.Err() != nil {
		return
	} else {
		log.Warn("raw channel is full, dropping data")
	}
}
