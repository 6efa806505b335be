package ingest

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHeader = []string{"uid", "dt", "latitude", "longitude", "speed", "radius", "rssi", "actualForever", "userName", "NetworkType"}

func convertRow(t *testing.T, c converter, header []string, values ...string) (*ConversionError, error) {
	t.Helper()
	_, err := c.convert(7, newHeaderIndex(header), values)
	var convErr *ConversionError
	if err != nil {
		require.ErrorAs(t, err, &convErr)
	}
	return convErr, err
}

func TestParseFloatCommaDecimal(t *testing.T) {
	for _, v := range []float64{45.123, -0.5, 10, 36.6858631, 1e-3} {
		period := strconv.FormatFloat(v, 'f', -1, 64)
		comma := strings.Replace(period, ".", ",", 1)

		got, err := parseFloat(comma)
		require.NoError(t, err)
		want, err := parseFloat(period)
		require.NoError(t, err)
		assert.Equal(t, *want, *got, comma)
	}

	got, err := parseFloat("45,123")
	require.NoError(t, err)
	assert.Equal(t, 45.123, *got)
}

func TestParseFloatRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"abc", "1,2,3", "NaN", "Inf", "12a"} {
		_, err := parseFloat(raw)
		assert.Error(t, err, raw)
	}

	got, err := parseFloat("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseRSSINullSentinel(t *testing.T) {
	for _, raw := range []string{"NULL", "null", "Null", ""} {
		got, err := parseRSSI(raw)
		require.NoError(t, err)
		assert.Nil(t, got, raw)
	}

	got, err := parseRSSI("-71,5")
	require.NoError(t, err)
	assert.Equal(t, -71.5, *got)
}

func TestParseTimestampLayouts(t *testing.T) {
	dayFirst := timeLayouts(DayFirst)
	want := time.Date(2025, 4, 17, 13, 27, 48, 0, time.UTC)
	for _, raw := range []string{
		"2025-04-17 13:27:48",
		"2025-04-17T13:27:48",
		"2025-04-17T13:27:48Z",
		"2025-04-17T15:27:48+02:00",
		"2025-04-17 14:27:48 +01:00",
		"2025-04-17 14:27:48+01:00",
		"17/04/2025 13:27:48",
		"17.04.2025 13:27:48",
		"17/4/2025 13:27:48",
		"17/4/2025 1:27:48 PM",
		// Only valid month first, so the fallback order applies.
		"04/17/2025 13:27:48",
		"4/17/2025 1:27:48 PM",
	} {
		got, err := parseTimestamp(raw, time.UTC, dayFirst)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(*got), "%s parsed as %v", raw, got)
	}

	got, err := parseTimestamp("2025-04-17 13:27:48.250", time.UTC, dayFirst)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	got, err = parseTimestamp("2025-04-17 13:27:48.123 +01:00", time.UTC, dayFirst)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 4, 17, 12, 27, 48, 123e6, time.UTC).Equal(*got), got)

	_, err = parseTimestamp("yesterday", time.UTC, dayFirst)
	assert.ErrorIs(t, err, errBadTimestamp)
}

func TestParseTimestampDateOrder(t *testing.T) {
	got, err := parseTimestamp("7/4/2025 13:27:48", time.UTC, timeLayouts(DayFirst))
	require.NoError(t, err)
	assert.Equal(t, time.April, got.Month())
	assert.Equal(t, 7, got.Day())

	got, err = parseTimestamp("7/4/2025 13:27:48", time.UTC, timeLayouts(MonthFirst))
	require.NoError(t, err)
	assert.Equal(t, time.July, got.Month())
	assert.Equal(t, 4, got.Day())

	got, err = parseTimestamp("07/04/2025", time.UTC, timeLayouts(MonthFirst))
	require.NoError(t, err)
	assert.Equal(t, time.July, got.Month())

	// Day-first values still load under month-first when unambiguous.
	got, err = parseTimestamp("17/04/2025 13:27:48", time.UTC, timeLayouts(MonthFirst))
	require.NoError(t, err)
	assert.Equal(t, 17, got.Day())
}

func TestConvertFlagAcceptsBooleans(t *testing.T) {
	c := newConverter(time.UTC, DayFirst, true)
	header := []string{"uid", "dt", "actualForever", "NetworkType"}

	for raw, want := range map[string]bool{"true": true, "FALSE": false, "True": true, "0": false, "1": true} {
		rec, err := c.convert(1, newHeaderIndex(header), []string{"dev", "2025-04-17 13:27:48", raw, "4"})
		require.NoError(t, err, raw)
		assert.Equal(t, want, rec.ActualForever, raw)
	}
}

func TestConvertFullRow(t *testing.T) {
	c := newConverter(time.UTC, DayFirst, false)
	rec, err := c.convert(1, newHeaderIndex(fullHeader), []string{
		"dev-1", "2025-04-17 13:27:48", "36,6858631", "10,1600274", "12,5", "30", "NULL", "1", "s_mhamdia", "4",
	})
	require.NoError(t, err)

	assert.Equal(t, "dev-1", *rec.UID)
	assert.Equal(t, 36.6858631, *rec.Latitude)
	assert.Equal(t, 10.1600274, *rec.Longitude)
	assert.Equal(t, 12.5, *rec.Speed)
	assert.Equal(t, 30.0, *rec.Radius)
	assert.Nil(t, rec.RSSI)
	assert.True(t, rec.ActualForever)
	assert.Equal(t, "s_mhamdia", rec.UserName)
	assert.Equal(t, 4, rec.NetworkType)
}

func TestConvertDefaults(t *testing.T) {
	c := newConverter(time.UTC, DayFirst, false)
	rec, err := c.convert(1, newHeaderIndex([]string{"UID", "latitude"}), []string{"dev-2", ""})
	require.NoError(t, err)

	assert.Equal(t, "dev-2", *rec.UID)
	assert.Nil(t, rec.Timestamp)
	assert.Nil(t, rec.Latitude)
	assert.Nil(t, rec.Speed)
	assert.False(t, rec.ActualForever)
	assert.Empty(t, rec.UserName)
	assert.Zero(t, rec.NetworkType)
}

func TestConvertReportsOffendingField(t *testing.T) {
	c := newConverter(time.UTC, DayFirst, false)

	convErr, err := convertRow(t, c, fullHeader, "dev-1", "", "north", "10", "", "", "", "", "", "")
	require.Error(t, err)
	assert.Equal(t, 7, convErr.Row)
	assert.Equal(t, "latitude", convErr.Field)
	assert.Equal(t, "north", convErr.Value)

	convErr, err = convertRow(t, c, fullHeader, "dev-1", "", "", "", "", "", "", "yes", "", "")
	require.Error(t, err)
	assert.Equal(t, "actualForever", convErr.Field)

	convErr, err = convertRow(t, c, fullHeader, "dev-1", "", "", "", "", "", "weak", "", "", "")
	require.Error(t, err)
	assert.Equal(t, "rssi", convErr.Field)
	assert.Contains(t, err.Error(), `row 7, field rssi, value "weak"`)
}

func TestConvertStrict(t *testing.T) {
	c := newConverter(time.UTC, DayFirst, true)

	convErr, err := convertRow(t, c, fullHeader, "", "2025-04-17 13:27:48", "1", "1", "", "", "", "0", "", "0")
	require.Error(t, err)
	assert.Equal(t, "uid", convErr.Field)
	assert.ErrorIs(t, err, errMissing)

	convErr, err = convertRow(t, c, fullHeader, "dev", "2025-04-17 13:27:48", "1", "1", "", "", "", "2", "", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotFlag)

	convErr, err = convertRow(t, c, fullHeader, "dev", "2025-04-17 13:27:48", "95", "1", "", "", "", "1", "", "0")
	require.Error(t, err)
	assert.Equal(t, "latitude", convErr.Field)
	assert.ErrorIs(t, err, errBadCoordinate)

	_, err = convertRow(t, c, fullHeader, "dev", "2025-04-17 13:27:48", "45", "10", "", "", "", "1", "", "0")
	assert.NoError(t, err)
}
