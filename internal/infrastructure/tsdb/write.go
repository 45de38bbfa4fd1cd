package tsdb

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormatLine encodes one point as InfluxDB line protocol.
//
// Format: measurement,tag1=val1 field1=val1,field2=val2 timestamp_ns
//
// Tags and fields are sorted by key so identical input produces identical
// output. Floats are written without an exponent.
func FormatLine(measurement string, tags map[string]string, fields map[string]float64, t time.Time) string {
	var b strings.Builder

	b.WriteString(escapeMeasurement(measurement))

	for _, k := range sortedKeys(tags) {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	b.WriteByte(' ')
	for i, k := range sortedKeys(fields) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(fields[k], 'f', -1, 64))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(t.UnixNano(), 10))

	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeTag escapes commas, equals signs and spaces, and strips newlines
// so a value cannot start a new line.
func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

// escapeMeasurement escapes commas and spaces and strips newlines.
func escapeMeasurement(s string) string {
	return measurementEscaper.Replace(s)
}

var (
	tagEscaper = strings.NewReplacer(
		"\n", "", "\r", "",
		" ", `\ `, ",", `\,`, "=", `\=`,
	)
	measurementEscaper = strings.NewReplacer(
		"\n", "", "\r", "",
		" ", `\ `, ",", `\,`,
	)
)
