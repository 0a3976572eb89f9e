package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"oiflow/cache"
	appconfig "oiflow/config"
	"oiflow/logger"
	"oiflow/models"
)

// Extractor consumes raw option-chain documents, extracts the CE/PE total
// open interest and replaces the snapshot cache. It is the only writer of
// the cache.
type Extractor struct {
	config  *appconfig.Config
	rawChan <-chan models.RawOIMessage
	store   *cache.SnapshotStore
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	messagesProcessed int64
	errorsCount       int64
}

func NewExtractor(cfg *appconfig.Config, rawChan <-chan models.RawOIMessage, store *cache.SnapshotStore) *Extractor {
	return &Extractor{
		config:  cfg,
		rawChan: rawChan,
		store:   store,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (e *Extractor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("extractor already running")
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	log := e.log.WithComponent("oi_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting totals extractor")

	e.wg.Add(1)
	go e.worker()

	go e.metricsReporter(ctx)

	log.Info("totals extractor started successfully")
	return nil
}

func (e *Extractor) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("oi_processor").Info("stopping totals extractor")
	e.wg.Wait()
	e.log.WithComponent("oi_processor").Info("totals extractor stopped")
}

func (e *Extractor) worker() {
	defer e.wg.Done()

	log := e.log.WithComponent("oi_processor").WithFields(logger.Fields{"worker": "totals_extractor"})

	log.Info("starting extractor worker")

	for {
		select {
		case <-e.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-e.rawChan:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}
			e.processMessage(rawMsg)
		}
	}
}

func (e *Extractor) processMessage(rawMsg models.RawOIMessage) {
	log := e.log.WithComponent("oi_processor").WithFields(logger.Fields{
		"symbol":   rawMsg.Symbol,
		"cycle_id": rawMsg.CycleID,
	})

	totals, err := ExtractTotals(rawMsg.Data)
	if err != nil {
		atomic.AddInt64(&e.errorsCount, 1)
		log.WithError(err).Warn("failed to extract totals, skipping cycle")
		return
	}

	e.store.Set(totals)
	atomic.AddInt64(&e.messagesProcessed, 1)

	log.WithFields(logger.Fields{
		"ce_total_oi": totals.CE.TotalOI,
		"pe_total_oi": totals.PE.TotalOI,
	}).Info("updated snapshot cache")
}

// ExtractTotals reads the call-side and put-side total open interest from the
// filtered aggregates of an option-chain document. The origin publishes no
// schema contract, so a missing side or field yields zero for that side
// rather than an error; only undecodable JSON fails.
func ExtractTotals(data []byte) (models.OITotals, error) {
	var payload models.OptionChainPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.OITotals{}, fmt.Errorf("decode option chain: %w", err)
	}

	return models.OITotals{
		CE: models.SideTotal{TotalOI: clampOI(payload.Filtered.CE.TotOI)},
		PE: models.SideTotal{TotalOI: clampOI(payload.Filtered.PE.TotOI)},
	}, nil
}

// clampOI converts the origin's numeric total to a non-negative integer.
func clampOI(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v))
}

func (e *Extractor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(e.config.Processor.ReportInterval)
	defer ticker.Stop()

	log := e.log.WithComponent("oi_processor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.WithFields(logger.Fields{
				"messages_processed": atomic.LoadInt64(&e.messagesProcessed),
				"errors":             atomic.LoadInt64(&e.errorsCount),
			}).Debug("extractor metrics")
		}
	}
}
