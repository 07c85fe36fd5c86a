package models

import "time"

// ReportResult is one measured probe inside a report payload.
// LatencyMs arrives as a float because browsers send fractional
// performance.now() deltas; it is rounded and range-checked at ingest.
type ReportResult struct {
	ServerRegion string  `json:"serverRegion"`
	LatencyMs    float64 `json:"latencyMs"`
}

// ReportRequest is the POST /report payload. Everything except
// results is optional; geo fields may instead come from edge headers.
type ReportRequest struct {
	Game            string         `json:"game,omitempty"`
	Country         string         `json:"country,omitempty"`
	City            string         `json:"city,omitempty"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	PlayerRegion    string         `json:"playerRegion,omitempty"`
	TzOffsetMinutes *float64       `json:"tzOffsetMinutes,omitempty"`
	LocalHour       *float64       `json:"localHour,omitempty"`
	Results         []ReportResult `json:"results"`
}

// ReportResponse is returned by POST /report.
type ReportResponse struct {
	OK       bool   `json:"ok"`
	Inserted int    `json:"inserted,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PingSample is one append-only stored measurement. Rows are created
// only by the ingestion path and never updated or deleted by it.
type PingSample struct {
	BatchID         string
	Game            string
	ServerRegion    string
	LatencyMs       int
	PlayerRegion    *string
	PlayerCountry   *string
	PlayerCity      *string
	PlayerLatitude  *float64
	PlayerLongitude *float64
	PlayerTzOffset  *int
	PlayerLocalHour *int
	IPHash          *string
	CreatedAt       time.Time
}

// HeatmapRow is one per-region aggregate, identical in shape for the
// live and legacy paths so consumers are agnostic to the source.
type HeatmapRow struct {
	Region        string `json:"region"`
	AvgPing       *int   `json:"avg_ping"`
	Samples       int64  `json:"samples"`
	BestHourLocal *int   `json:"best_hour_local"`
}

// HeatmapResponse is returned by GET /heatmap.
type HeatmapResponse struct {
	OK      bool         `json:"ok"`
	Games   []string     `json:"games"`
	Regions []string     `json:"regions"`
	Data    []HeatmapRow `json:"data"`
	Game    string       `json:"game,omitempty"`
	Source  string       `json:"source,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}
