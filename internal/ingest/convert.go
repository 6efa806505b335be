package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/opstracker/opstracker-backend-go/internal/models"
	"github.com/opstracker/opstracker-backend-go/internal/spatial"
)

var (
	errNotFinite     = errors.New("value is not a finite number")
	errMissing       = errors.New("required field is missing")
	errNotFlag       = errors.New("flag must be 0 or 1")
	errBadCoordinate = errors.New("coordinate out of range")
	errBadTimestamp  = errors.New("unrecognized date-time format")
)

// DateOrder selects how an ambiguous numeric date such as 7/4/2025 is read.
type DateOrder string

const (
	DayFirst   DateOrder = "dmy"
	MonthFirst DateOrder = "mdy"
)

// isoLayouts are unambiguous and always tried first. A fractional second
// after the seconds field is accepted by every layout.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// Single-digit elements also accept two digits, so 7/4/2025 and 07/04/2025
// both match.
var dayFirstLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 3:04:05 PM",
	"2/1/2006",
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
}

var monthFirstLayouts = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006",
}

// timeLayouts returns the layouts to try for order. The other order is kept
// as a fallback so a date that is only valid one way, like 04/17/2025,
// still parses.
func timeLayouts(order DateOrder) []string {
	preferred, fallback := dayFirstLayouts, monthFirstLayouts
	if order == MonthFirst {
		preferred, fallback = monthFirstLayouts, dayFirstLayouts
	}
	layouts := make([]string, 0, len(isoLayouts)+len(preferred)+len(fallback))
	layouts = append(layouts, isoLayouts...)
	layouts = append(layouts, preferred...)
	return append(layouts, fallback...)
}

// normalizeDecimal turns a comma decimal separator into a period.
func normalizeDecimal(raw string) string {
	return strings.ReplaceAll(raw, ",", ".")
}

// parseFloat returns nil for an empty value.
func parseFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(normalizeDecimal(raw), 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errNotFinite
	}
	return &f, nil
}

// parseRSSI is parseFloat with the literal NULL, in any case, also meaning absent.
func parseRSSI(raw string) (*float64, error) {
	if strings.EqualFold(raw, "NULL") {
		return nil, nil
	}
	return parseFloat(raw)
}

// parseInt falls back to def when raw is empty.
func parseInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// parseFlag accepts an integer or true/false in any case.
func parseFlag(raw string) (int, error) {
	switch strings.ToLower(raw) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return parseInt(raw, 0)
}

func parseTimestamp(raw string, loc *time.Location, layouts []string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errBadTimestamp
}

// converter turns one CSV record into a GpsRecord.
type converter struct {
	loc     *time.Location
	layouts []string
	strict  bool
}

func newConverter(loc *time.Location, order DateOrder, strict bool) converter {
	return converter{loc: loc, layouts: timeLayouts(order), strict: strict}
}

func (c *converter) convert(row int, idx *headerIndex, record []string) (*models.GpsRecord, error) {
	value := func(f Field) string { return idx.lookup(f, record) }
	fail := func(f Field, raw string, err error) error {
		return &ConversionError{Row: row, Field: f.String(), Value: raw, Err: err}
	}

	if c.strict {
		for _, f := range []Field{FieldUID, FieldTimestamp, FieldActualForever, FieldNetworkType} {
			if value(f) == "" {
				return nil, fail(f, "", errMissing)
			}
		}
	}

	rec := &models.GpsRecord{UserName: value(FieldUserName)}
	if uid := value(FieldUID); uid != "" {
		rec.UID = &uid
	}

	var err error
	raw := value(FieldTimestamp)
	if rec.Timestamp, err = parseTimestamp(raw, c.loc, c.layouts); err != nil {
		return nil, fail(FieldTimestamp, raw, err)
	}

	floats := []struct {
		field Field
		dst   **float64
	}{
		{FieldLatitude, &rec.Latitude},
		{FieldLongitude, &rec.Longitude},
		{FieldSpeed, &rec.Speed},
		{FieldRadius, &rec.Radius},
	}
	for _, f := range floats {
		raw := value(f.field)
		if *f.dst, err = parseFloat(raw); err != nil {
			return nil, fail(f.field, raw, err)
		}
	}

	raw = value(FieldRSSI)
	if rec.RSSI, err = parseRSSI(raw); err != nil {
		return nil, fail(FieldRSSI, raw, err)
	}

	raw = value(FieldActualForever)
	flag, err := parseFlag(raw)
	if err != nil {
		return nil, fail(FieldActualForever, raw, err)
	}
	if c.strict && flag != 0 && flag != 1 {
		return nil, fail(FieldActualForever, raw, errNotFlag)
	}
	rec.ActualForever = flag != 0

	raw = value(FieldNetworkType)
	if rec.NetworkType, err = parseInt(raw, 0); err != nil {
		return nil, fail(FieldNetworkType, raw, err)
	}

	if c.strict && rec.HasPosition() && !spatial.ValidCoordinate(*rec.Latitude, *rec.Longitude) {
		return nil, fail(FieldLatitude, value(FieldLatitude)+" "+value(FieldLongitude), errBadCoordinate)
	}

	return rec, nil
}
