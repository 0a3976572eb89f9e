package models

import (
	"time"
)

// RawOIMessage represents one raw option-chain document fetched from the origin.
type RawOIMessage struct {
	Source    string
	Symbol    string
	CycleID   string
	Data      []byte
	Timestamp time.Time
}

// SideTotal carries the aggregate open interest for one option side.
type SideTotal struct {
	TotalOI int64 `json:"totalOI"`
}

// OITotals is the externally visible shape served by the read endpoint:
// aggregate open interest for the call (CE) and put (PE) sides.
type OITotals struct {
	CE SideTotal `json:"CE"`
	PE SideTotal `json:"PE"`
}

// Snapshot pairs the last successfully extracted totals with the wall-clock
// time of that extraction. A zero Timestamp means no fetch has succeeded yet.
type Snapshot struct {
	Totals    OITotals  `json:"totals"`
	Timestamp time.Time `json:"timestamp"`
}

// Ready reports whether at least one fetch cycle has completed.
func (s Snapshot) Ready() bool {
	return !s.Timestamp.IsZero()
}

// OptionChainPayload mirrors the slice of the NSE option-chain document we
// consume. The origin publishes no schema contract, so every field is
// optional; absent fields decode to their zero value.
type OptionChainPayload struct {
	Records  OptionChainRecords  `json:"records"`
	Filtered OptionChainFiltered `json:"filtered"`
}

// OptionChainRecords holds the unfiltered aggregates plus the underlying value.
type OptionChainRecords struct {
	ExpiryDates     []string      `json:"expiryDates"`
	UnderlyingValue float64       `json:"underlyingValue"`
	TimeStamp       string        `json:"timestamp"`
	CE              SideAggregate `json:"CE"`
	PE              SideAggregate `json:"PE"`
}

// OptionChainFiltered holds the aggregates for the near expiries, which is
// what the extractor reads.
type OptionChainFiltered struct {
	CE SideAggregate `json:"CE"`
	PE SideAggregate `json:"PE"`
}

// SideAggregate is the per-side aggregate block as published by the origin.
type SideAggregate struct {
	TotOI  float64 `json:"totOI"`
	TotVol float64 `json:"totVol"`
}
