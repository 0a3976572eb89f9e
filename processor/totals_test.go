package processor

import (
	"context"
	"testing"
	"time"

	"oiflow/cache"
	appconfig "oiflow/config"
	"oiflow/models"
)

func TestExtractTotals(t *testing.T) {
	data := []byte(`{"filtered": {"CE": {"totOI": 120}, "PE": {"totOI": 95}}}`)
	totals, err := ExtractTotals(data)
	if err != nil {
		t.Fatalf("ExtractTotals failed: %v", err)
	}
	if totals.CE.TotalOI != 120 {
		t.Errorf("unexpected CE total: %d", totals.CE.TotalOI)
	}
	if totals.PE.TotalOI != 95 {
		t.Errorf("unexpected PE total: %d", totals.PE.TotalOI)
	}
}

func TestExtractTotalsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty document", `{}`},
		{"missing filtered", `{"records": {"underlyingValue": 19500}}`},
		{"missing PE side", `{"filtered": {"CE": {"totOI": 42}}}`},
		{"missing totOI field", `{"filtered": {"CE": {"totVol": 10}, "PE": {"totVol": 20}}}`},
	}
	for _, c := range cases {
		totals, err := ExtractTotals([]byte(c.data))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if totals.CE.TotalOI < 0 || totals.PE.TotalOI < 0 {
			t.Errorf("%s: negative totals: %+v", c.name, totals)
		}
	}

	totals, err := ExtractTotals([]byte(`{"filtered": {"CE": {"totOI": 42}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.CE.TotalOI != 42 || totals.PE.TotalOI != 0 {
		t.Errorf("missing side must yield zero: %+v", totals)
	}
}

func TestExtractTotalsClampsNegative(t *testing.T) {
	totals, err := ExtractTotals([]byte(`{"filtered": {"CE": {"totOI": -5}, "PE": {"totOI": 9.6}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.CE.TotalOI != 0 {
		t.Errorf("negative total must clamp to zero, got %d", totals.CE.TotalOI)
	}
	if totals.PE.TotalOI != 10 {
		t.Errorf("fractional total must round, got %d", totals.PE.TotalOI)
	}
}

func TestExtractTotalsInvalidJSON(t *testing.T) {
	if _, err := ExtractTotals([]byte(`not json`)); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
}

func TestExtractorUpdatesCache(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Processor.ReportInterval = time.Minute
	raw := make(chan models.RawOIMessage, 1)
	store := cache.NewSnapshotStore()

	ex := NewExtractor(cfg, raw, store)
	ctx, cancel := context.WithCancel(context.Background())

	if err := ex.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		cancel()
		ex.Stop()
	}()

	raw <- models.RawOIMessage{
		Source:    "nse",
		Symbol:    "NIFTY",
		CycleID:   "test-cycle",
		Data:      []byte(`{"filtered": {"CE": {"totOI": 120}, "PE": {"totOI": 95}}}`),
		Timestamp: time.Now(),
	}

	deadline := time.After(2 * time.Second)
	for {
		snap := store.Get()
		if snap.Ready() {
			if snap.Totals.CE.TotalOI != 120 || snap.Totals.PE.TotalOI != 95 {
				t.Fatalf("unexpected totals: %+v", snap.Totals)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("cache was not updated in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A malformed document must not disturb the last good snapshot.
	raw <- models.RawOIMessage{Data: []byte(`garbage`), CycleID: "bad-cycle"}
	time.Sleep(50 * time.Millisecond)
	snap := store.Get()
	if snap.Totals.CE.TotalOI != 120 || snap.Totals.PE.TotalOI != 95 {
		t.Fatalf("snapshot disturbed by malformed payload: %+v", snap.Totals)
	}
}
