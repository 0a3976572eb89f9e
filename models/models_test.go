package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotReady(t *testing.T) {
	var snap Snapshot
	if snap.Ready() {
		t.Fatal("zero snapshot must not be ready")
	}
	snap.Timestamp = time.Now()
	if !snap.Ready() {
		t.Fatal("stamped snapshot must be ready")
	}
}

func TestOITotalsWireShape(t *testing.T) {
	totals := OITotals{CE: SideTotal{TotalOI: 120}, PE: SideTotal{TotalOI: 95}}
	data, err := json.Marshal(totals)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"CE":{"totalOI":120},"PE":{"totalOI":95}}`
	if string(data) != want {
		t.Fatalf("unexpected wire shape: %s", data)
	}
}

func TestOptionChainPayloadToleratesPartialDocuments(t *testing.T) {
	var payload OptionChainPayload
	if err := json.Unmarshal([]byte(`{"records": {"underlyingValue": 19850.5}}`), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Filtered.CE.TotOI != 0 || payload.Filtered.PE.TotOI != 0 {
		t.Fatalf("absent aggregates must decode to zero: %+v", payload.Filtered)
	}
	if payload.Records.UnderlyingValue != 19850.5 {
		t.Fatalf("unexpected underlying: %f", payload.Records.UnderlyingValue)
	}
}
