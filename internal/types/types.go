package types

import (
	"fmt"
	"math"
	"sync"
)

// SessionIdentity is the (host, port, clientId) tuple a broker session is opened with.
type SessionIdentity struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int64  `json:"client_id"`
}

func (id SessionIdentity) String() string {
	return fmt.Sprintf("%s:%d/%d", id.Host, id.Port, id.ClientID)
}

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

type Contract struct {
	Symbol   string
	Exchange string
	Currency string
	ConID    int64
}

// Bar is one daily bar. Date is ISO formatted (2006-01-02).
type Bar struct {
	Date                   string
	Open, High, Low, Close float64
	Volume                 float64
}

type BarQuery struct {
	Duration   string // e.g. "1 Y"
	BarSize    string // e.g. "1 day"
	WhatToShow string
	UseRTH     bool
}

// DailyYearRTH is the historical query used for SMA computation.
var DailyYearRTH = BarQuery{Duration: "1 Y", BarSize: "1 day", WhatToShow: "TRADES", UseRTH: true}

// Quote holds the last price delivered for a snapshot request. The broker's
// event goroutine writes it while the requesting goroutine reads it.
type Quote struct {
	mu    sync.RWMutex
	price float64
	set   bool
}

func NewQuote() *Quote { return &Quote{} }

func (q *Quote) Set(price float64) {
	q.mu.Lock()
	q.price = price
	q.set = true
	q.mu.Unlock()
}

// MarketPrice returns the last price and whether a usable one arrived.
// Zero and NaN count as missing.
func (q *Quote) MarketPrice() (float64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.set || q.price == 0 || math.IsNaN(q.price) {
		return 0, false
	}
	return q.price, true
}

type EventKind int

const (
	EventDisconnected EventKind = iota
	EventError
)

// ErrorEvent is an asynchronous broker error. ReqID is -1 when the error is
// not tied to a request.
type ErrorEvent struct {
	ReqID   int64
	Code    int64
	Message string
	Symbol  string
}

func (e ErrorEvent) Error() string {
	return fmt.Sprintf("broker error %d (reqId %d): %s", e.Code, e.ReqID, e.Message)
}

type SessionEvent struct {
	Kind   EventKind
	Err    *ErrorEvent
	Reason string
}

type SmaSnapshot struct {
	Symbol      string
	LastPrice   float64
	HasPrice    bool
	SMA         map[int]float64
	LastBarDate string
}

type SmaRecord struct {
	Ticker    string   `json:"ticker"`
	SMA50     *float64 `json:"SMA50"`
	SMA100    *float64 `json:"SMA100"`
	SMA200    *float64 `json:"SMA200"`
	CacheDate string   `json:"cache_date"`
}

type ScanRow struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	SMA50  float64 `json:"SMA50"`
	SMA100 float64 `json:"SMA100"`
	SMA200 float64 `json:"SMA200"`
}

type ScanResult struct {
	RunID            string    `json:"run_id"`
	Matches          []ScanRow `json:"matches"`
	MissingFromCache []string  `json:"missing_from_cache"`
	NoData           []string  `json:"no_data,omitempty"`
	CacheDate        string    `json:"cache_date"`
	ExpectedDate     string    `json:"expected_date"`
	Stale            bool      `json:"stale"`
}

type LiveMetric struct {
	Symbol   string          `json:"symbol"`
	Price    float64         `json:"current_price"`
	HasPrice bool            `json:"has_price"`
	SMA      map[int]float64 `json:"sma"`
	Trend    map[int]string  `json:"trend,omitempty"`
}
