package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Geolocation is an optional capture position. It serializes as a
// [latitude, longitude] pair in both JSON and CBOR.
type Geolocation struct {
	_         struct{} `cbor:",toarray"`
	Latitude  float64
	Longitude float64
}

// NewGeolocation returns a pointer suitable for the optional fields below.
func NewGeolocation(lat, lon float64) *Geolocation {
	return &Geolocation{Latitude: lat, Longitude: lon}
}

func (g Geolocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{g.Latitude, g.Longitude})
}

func (g *Geolocation) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("geolocation: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("geolocation: want [latitude, longitude], got %d values", len(pair))
	}
	g.Latitude, g.Longitude = pair[0], pair[1]
	return nil
}

func (g Geolocation) String() string {
	return fmt.Sprintf("%.6f,%.6f", g.Latitude, g.Longitude)
}

// Submission is a record in flight: fingerprint and capture metadata,
// nothing assigned by a backend yet.
type Submission struct {
	Fingerprint string       `json:"fingerprint"`
	CapturedAt  time.Time    `json:"captured_at"`
	SubmitterID string       `json:"submitter_id"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
}

// Record is the stored unit: a fingerprint, its capture metadata and the
// identifiers the backend assigned on acceptance.
type Record struct {
	Fingerprint   string       `json:"fingerprint"`
	CapturedAt    time.Time    `json:"captured_at"`
	SubmitterID   string       `json:"submitter_id"`
	Geolocation   *Geolocation `json:"geolocation,omitempty"`
	TransactionID *string      `json:"transaction_id,omitempty"`
	BlockNumber   *int64       `json:"block_number,omitempty"`
	NetworkTag    string       `json:"network_tag"`
}

// Accept returns the stored form of s. Transaction id and block number are
// always set together.
func (s Submission) Accept(txID string, block int64, network string) *Record {
	rec := &Record{
		Fingerprint:   s.Fingerprint,
		CapturedAt:    s.CapturedAt,
		SubmitterID:   s.SubmitterID,
		TransactionID: &txID,
		BlockNumber:   &block,
		NetworkTag:    network,
	}
	if s.Geolocation != nil {
		geo := *s.Geolocation
		rec.Geolocation = &geo
	}
	return rec
}

// Accepted reports whether the backend assigned both identifiers.
func (r *Record) Accepted() bool {
	return r.TransactionID != nil && r.BlockNumber != nil
}

// TxID returns the transaction id or "" before acceptance.
func (r *Record) TxID() string {
	if r.TransactionID == nil {
		return ""
	}
	return *r.TransactionID
}

// Clone returns a deep copy so callers cannot mutate a stored record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Geolocation != nil {
		geo := *r.Geolocation
		c.Geolocation = &geo
	}
	if r.TransactionID != nil {
		tx := *r.TransactionID
		c.TransactionID = &tx
	}
	if r.BlockNumber != nil {
		b := *r.BlockNumber
		c.BlockNumber = &b
	}
	return &c
}

// Stats is the diagnostic view a backend may expose. It is not part of the
// portable backend contract.
type Stats struct {
	TotalRecords      int    `json:"total_records"`
	TotalTransactions int64  `json:"total_transactions"`
	CurrentBlock      int64  `json:"current_block"`
	NetworkTag        string `json:"network_tag"`
}
