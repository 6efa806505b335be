package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/opstracker/opstracker-backend-go/internal/models"
	"github.com/opstracker/opstracker-backend-go/internal/upstream"
)

// ErrAlertNotFound is returned when no loaded alert has the requested id
var ErrAlertNotFound = errors.New("alert not found")

// ErrUpstreamDisabled is returned by upstream operations when no upstream is configured
var ErrUpstreamDisabled = errors.New("upstream alarm service is not configured")

// AlarmQueryParams are forwarded to the upstream alarm listing unchanged
var AlarmQueryParams = []string{"Filters", "Sorts", "Page", "PageSize", "search"}

// AlertService serves the static alert document and, when configured,
// alarms from the upstream platform
type AlertService struct {
	alerts   []models.Alert
	upstream *upstream.Client
}

// NewAlertService creates an alert service over already parsed alerts.
// client may be nil.
func NewAlertService(alerts []models.Alert, client *upstream.Client) *AlertService {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return &AlertService{
		alerts:   alerts,
		upstream: client,
	}
}

// LoadAlerts reads and parses the alert document at path
func LoadAlerts(path string) ([]models.Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert document: %w", err)
	}
	alerts, err := models.ParseAlerts(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert document %s: %w", path, err)
	}
	return alerts, nil
}

// List returns every loaded alert in document order
func (s *AlertService) List() []models.Alert {
	return s.alerts
}

// Get returns the first alert whose id equals id
func (s *AlertService) Get(id string) (models.Alert, error) {
	for _, a := range s.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Alert{}, ErrAlertNotFound
}

// UpstreamEnabled reports whether the upstream routes are available
func (s *AlertService) UpstreamEnabled() bool {
	return s.upstream != nil
}

// HasToken reports whether an upstream sign-in has succeeded
func (s *AlertService) HasToken() bool {
	return s.upstream != nil && s.upstream.Token() != ""
}

// Authenticate signs in to the upstream platform
func (s *AlertService) Authenticate(ctx context.Context, username, password string) (string, error) {
	if s.upstream == nil {
		return "", ErrUpstreamDisabled
	}
	return s.upstream.Authenticate(ctx, username, password)
}

// Alarms fetches upstream alarms and appends the static alerts. An upstream
// array is concatenated; any other document becomes the first element.
func (s *AlertService) Alarms(ctx context.Context, query url.Values) ([]json.RawMessage, error) {
	if s.upstream == nil {
		return nil, ErrUpstreamDisabled
	}

	forwarded := url.Values{}
	for _, key := range AlarmQueryParams {
		if v, ok := query[key]; ok {
			forwarded[key] = v
		}
	}

	body, err := s.upstream.Alarms(ctx, forwarded)
	if err != nil {
		return nil, err
	}

	combined := []json.RawMessage{}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &combined); err != nil {
			return nil, fmt.Errorf("failed to decode alarms: %w", err)
		}
	} else {
		combined = append(combined, body)
	}
	for _, a := range s.alerts {
		combined = append(combined, a.Raw)
	}
	return combined, nil
}

// Self returns the user name of the signed-in upstream account
func (s *AlertService) Self(ctx context.Context) (string, error) {
	if s.upstream == nil {
		return "", ErrUpstreamDisabled
	}
	return s.upstream.Self(ctx)
}
