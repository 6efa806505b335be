package models

import (
	"time"

	"github.com/opstracker/opstracker-backend-go/internal/stats"
)

// GpsRecord is one telemetry sample as stored in gps_data.
//
// Nullable columns are pointers so a missing value is written as NULL
// rather than a zero. JSON keys match the column names.
type GpsRecord struct {
	UID           *string    `json:"uid" db:"uid" csv:"uid"`
	Timestamp     *time.Time `json:"dt" db:"dt" csv:"dt"`
	Latitude      *float64   `json:"latitude" db:"latitude" csv:"latitude"`
	Longitude     *float64   `json:"longitude" db:"longitude" csv:"longitude"`
	Speed         *float64   `json:"speed" db:"speed" csv:"speed"`
	Radius        *float64   `json:"radius" db:"radius" csv:"radius"`
	RSSI          *float64   `json:"rssi" db:"rssi" csv:"rssi"`
	ActualForever bool       `json:"actualForever" db:"actualforever" csv:"actualForever"`
	UserName      string     `json:"userName" db:"username" csv:"userName"`
	NetworkType   int        `json:"NetworkType" db:"networktype" csv:"NetworkType"`
}

// HasPosition reports whether both coordinates are present.
func (r *GpsRecord) HasPosition() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// TrackSummary is the chronological track of a single device.
type TrackSummary struct {
	UID            string         `json:"uid"`
	PointCount     int            `json:"pointCount"`
	DistanceMeters float64        `json:"distanceMeters"`
	First          *time.Time     `json:"first,omitempty"`
	Last           *time.Time     `json:"last,omitempty"`
	Speed          *stats.Summary `json:"speed,omitempty"`
	RSSI           *stats.Summary `json:"rssi,omitempty"`
	Points         []GpsRecord    `json:"points"`
}
