package ingest

import "strings"

// Field identifies a logical column of a GPS record.
type Field int

const (
	FieldUID Field = iota
	FieldTimestamp
	FieldLatitude
	FieldLongitude
	FieldSpeed
	FieldRadius
	FieldRSSI
	FieldActualForever
	FieldUserName
	FieldNetworkType

	fieldCount
)

// FieldSpec lists the header spellings accepted for a field, highest precedence first.
type FieldSpec struct {
	Field    Field
	Name     string
	Variants []string
}

// FieldSpecs is the variant table used to resolve every logical field.
var FieldSpecs = [fieldCount]FieldSpec{
	{FieldUID, "uid", []string{"uid", "UID", "Uid"}},
	{FieldTimestamp, "dt", []string{"dt", "DT", "DateTime"}},
	{FieldLatitude, "latitude", []string{"latitude", "Latitude"}},
	{FieldLongitude, "longitude", []string{"longitude", "Longitude"}},
	{FieldSpeed, "speed", []string{"speed", "Speed"}},
	{FieldRadius, "radius", []string{"radius", "Radius"}},
	{FieldRSSI, "rssi", []string{"rssi", "RSSI"}},
	{FieldActualForever, "actualForever", []string{"actualForever", "ActualForever"}},
	{FieldUserName, "userName", []string{"userName", "UserName"}},
	{FieldNetworkType, "NetworkType", []string{"NetworkType", "Networktype"}},
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return FieldSpecs[f].Name
}

// headerIndex maps every field to the column positions that may carry it,
// in precedence order: exact spellings in variant order, then
// case-insensitive matches in variant order.
type headerIndex struct {
	names   []string
	columns [fieldCount][]int
	unknown []string
}

func newHeaderIndex(header []string) *headerIndex {
	idx := &headerIndex{names: make([]string, len(header))}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		idx.names[i] = strings.TrimSpace(h)
	}

	claimed := make([]bool, len(idx.names))
	for _, spec := range FieldSpecs {
		seen := make(map[int]bool)
		add := func(col int) {
			if !seen[col] {
				seen[col] = true
				idx.columns[spec.Field] = append(idx.columns[spec.Field], col)
			}
		}
		for _, variant := range spec.Variants {
			for col, name := range idx.names {
				if name == variant {
					add(col)
				}
			}
		}
		for _, variant := range spec.Variants {
			for col, name := range idx.names {
				if strings.EqualFold(name, variant) {
					add(col)
				}
			}
		}
		for col := range seen {
			claimed[col] = true
		}
	}

	for col, name := range idx.names {
		if !claimed[col] {
			idx.unknown = append(idx.unknown, name)
		}
	}
	return idx
}

// lookup returns the first non-empty value for f, or "" when the field is
// absent from the header or empty in every candidate column.
func (idx *headerIndex) lookup(f Field, record []string) string {
	for _, col := range idx.columns[f] {
		if col >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[col]); v != "" {
			return v
		}
	}
	return ""
}

// has reports whether any header column maps to f.
func (idx *headerIndex) has(f Field) bool {
	return len(idx.columns[f]) > 0
}
