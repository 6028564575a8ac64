// Package record turns raw sheet rows into canonical records and back.
//
// Sheets written by different tools over time disagree on header spelling
// ("User ID" vs "user_id", "Full Name" vs "name"). A Schema lists, for each
// canonical key, the headers it may appear under. Normalize reads a raw row
// through the schema; a Layout maps canonical keys onto the header row of a
// concrete sheet so appends and cell updates land in the right column.
package record

import "strings"

// Field is one canonical key and the headers it is read from, in priority
// order. The first alias is the header written for new tables.
type Field struct {
	Key     string
	Aliases []string
}

// Schema describes one entity's columns in append order.
type Schema struct {
	Name   string
	Fields []Field
}

// Record is a canonical record: every schema key is present.
type Record map[string]string

// Keys returns the canonical keys in column order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Header returns the canonical header row written to an empty table.
func (s Schema) Header() []string {
	h := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		h[i] = f.Aliases[0]
	}
	return h
}

// Normalize maps raw onto the schema's canonical keys. For each key the
// aliases are probed in order and the first one present in raw wins, even
// when its value is empty. Keys with no present alias read as "".
func Normalize(s Schema, raw map[string]string) Record {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		rec[f.Key] = ""
		for _, alias := range f.Aliases {
			if v, ok := raw[alias]; ok {
				rec[f.Key] = strings.TrimSpace(v)
				break
			}
		}
	}
	return rec
}

// Layout is a schema bound to the header row of an existing table.
type Layout struct {
	header []string
	cols   map[string]int
}

// NewLayout binds s to header. An empty header means the table is new and
// will receive s.Header() first.
func NewLayout(s Schema, header []string) Layout {
	if len(header) == 0 {
		header = s.Header()
	}
	at := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := at[h]; !dup && h != "" {
			at[h] = i + 1
		}
	}

	cols := make(map[string]int, len(s.Fields))
	for _, f := range s.Fields {
		for _, alias := range f.Aliases {
			if col, ok := at[alias]; ok {
				cols[f.Key] = col
				break
			}
		}
	}
	return Layout{header: header, cols: cols}
}

// Header is the header row the layout was built from.
func (l Layout) Header() []string { return l.header }

// ColumnOf returns the 1-based column holding key.
func (l Layout) ColumnOf(key string) (int, bool) {
	col, ok := l.cols[key]
	return col, ok
}

// Row renders rec as a row matching the header. Columns the schema does not
// know stay empty; canonical keys with no column are dropped.
func (l Layout) Row(rec Record) []string {
	row := make([]string, len(l.header))
	for key, col := range l.cols {
		row[col-1] = rec[key]
	}
	return row
}
