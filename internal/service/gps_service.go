package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/opstracker/opstracker-backend-go/internal/models"
	"github.com/opstracker/opstracker-backend-go/internal/repository"
	"github.com/opstracker/opstracker-backend-go/internal/spatial"
	"github.com/opstracker/opstracker-backend-go/internal/stats"
)

// MaxLatestLimit caps the number of rows returned by Latest
const MaxLatestLimit = 1000

// ErrTrackNotFound is returned when a device has no stored rows
var ErrTrackNotFound = errors.New("track not found")

// GpsService handles business logic for stored telemetry
type GpsService struct {
	gpsRepo *repository.GpsRepository
	topN    int
}

// NewGpsService creates a new gps service returning topN rows by default
func NewGpsService(gpsRepo *repository.GpsRepository, topN int) *GpsService {
	return &GpsService{
		gpsRepo: gpsRepo,
		topN:    topN,
	}
}

// Latest retrieves the most recent rows, newest first.
// A limit below 1 selects the configured default.
func (s *GpsService) Latest(ctx context.Context, limit int) ([]models.GpsRecord, error) {
	if limit < 1 {
		limit = s.topN
	}
	if limit > MaxLatestLimit {
		limit = MaxLatestLimit
	}

	records, err := s.gpsRepo.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest gps data: %w", err)
	}
	return records, nil
}

// Track builds the chronological track of one device
func (s *GpsService) Track(ctx context.Context, uid string) (*models.TrackSummary, error) {
	points, err := s.gpsRepo.Track(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrTrackNotFound
	}

	summary := &models.TrackSummary{
		UID:        uid,
		PointCount: len(points),
		Points:     points,
	}

	// Rows without a usable position do not contribute to the distance
	path := make([]s2.LatLng, 0, len(points))
	speeds := make([]*float64, len(points))
	rssi := make([]*float64, len(points))
	for i := range points {
		p := &points[i]
		speeds[i], rssi[i] = p.Speed, p.RSSI
		if p.Timestamp != nil {
			if summary.First == nil {
				summary.First = p.Timestamp
			}
			summary.Last = p.Timestamp
		}
		if p.HasPosition() && spatial.ValidCoordinate(*p.Latitude, *p.Longitude) {
			path = append(path, s2.LatLngFromDegrees(*p.Latitude, *p.Longitude))
		}
	}
	summary.DistanceMeters = spatial.PathLength(path)
	summary.Speed = stats.Summarize(speeds)
	summary.RSSI = stats.Summarize(rssi)

	return summary, nil
}

// Export streams every stored row to fn in chronological order
func (s *GpsService) Export(ctx context.Context, fn func(models.GpsRecord) error) error {
	return s.gpsRepo.Export(ctx, fn)
}
