package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsPoller    int64
	errorsProcessor int64
	warnsPoller     int64
	warnsProcessor  int64
	fetchSuccesses  int64
	fetchFailures   int64
	cookieRefreshes int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "poller") {
		atomic.AddInt64(&warnsPoller, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&warnsProcessor, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") || strings.Contains(component, "poller") {
		atomic.AddInt64(&errorsPoller, 1)
	} else if strings.Contains(component, "processor") {
		atomic.AddInt64(&errorsProcessor, 1)
	}
}

// IncrementFetchSuccess records one successful fetch cycle. Channel message
// and byte counters are owned by the channel send path, not the cycle counter.
func IncrementFetchSuccess() {
	atomic.AddInt64(&fetchSuccesses, 1)
}

// IncrementFetchFailure records one failed fetch cycle.
func IncrementFetchFailure() {
	atomic.AddInt64(&fetchFailures, 1)
}

// IncrementCookieRefresh records one cookie handshake attempt against the origin.
func IncrementCookieRefresh() {
	atomic.AddInt64(&cookieRefreshes, 1)
}

// RecordChannelMessage tracks message and byte counters for a named channel.
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memUsed := uint64(0)
	if memStats != nil {
		memUsed = memStats.Used
	}

	fields := Fields{
		"errors_poller":    atomic.LoadInt64(&errorsPoller),
		"errors_processor": atomic.LoadInt64(&errorsProcessor),
		"warns_poller":     atomic.LoadInt64(&warnsPoller),
		"warns_processor":  atomic.LoadInt64(&warnsProcessor),
		"fetch_successes":  atomic.LoadInt64(&fetchSuccesses),
		"fetch_failures":   atomic.LoadInt64(&fetchFailures),
		"cookie_refreshes": atomic.LoadInt64(&cookieRefreshes),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memUsed) / 1024 / 1024,
		"channels":         channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memUsed) / 1024 / 1024)},
		{MetricName: aws.String("FetchSuccesses"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchSuccesses)))},
		{MetricName: aws.String("FetchFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchFailures)))},
		{MetricName: aws.String("CookieRefreshes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&cookieRefreshes)))},
		{MetricName: aws.String("ErrorsPoller"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsPoller)))},
		{MetricName: aws.String("ErrorsProcessor"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsProcessor)))},
	}

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}

// PollerCounters exposes the cycle counters for the status endpoint.
func PollerCounters() (successes, failures, refreshes int64) {
	return atomic.LoadInt64(&fetchSuccesses),
		atomic.LoadInt64(&fetchFailures),
		atomic.LoadInt64(&cookieRefreshes)
}
