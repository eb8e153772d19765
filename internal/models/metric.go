package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is the display sentinel for any missing or non-finite value.
const NotAvailable = "N/A"

// Metric is a numeric market field that is either a finite value or unavailable.
// The zero value is unavailable.
type Metric struct {
	v  float64
	ok bool
}

// MetricOf wraps v, normalizing NaN and infinities to unavailable.
func MetricOf(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Metric{}
	}
	return Metric{v: v, ok: true}
}

// MetricFrom converts an optional provider value.
func MetricFrom(v *float64) Metric {
	if v == nil {
		return Metric{}
	}
	return MetricOf(*v)
}

// ParseMetric parses a decimal string; anything unparsable is unavailable.
func ParseMetric(s string) Metric {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Metric{}
	}
	return MetricOf(f)
}

func Unavailable() Metric { return Metric{} }

func (m Metric) Value() (float64, bool) { return m.v, m.ok }

func (m Metric) Available() bool { return m.ok }

// Format renders the value with thousands separators and at most places
// fraction digits, trailing zeros trimmed.
func (m Metric) Format(places int32) string {
	if !m.ok {
		return NotAvailable
	}
	s := decimal.NewFromFloat(m.v).Round(places).String()
	return groupThousands(s)
}

// Percent renders the value with exactly places fraction digits and a % suffix.
func (m Metric) Percent(places int) string {
	if !m.ok {
		return NotAvailable
	}
	return fmt.Sprintf("%.*f%%", places, m.v)
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.ok {
		return json.Marshal(NotAvailable)
	}
	return []byte(strconv.FormatFloat(m.v, 'f', -1, 64)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Metric{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseMetric(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("metric: %w", err)
	}
	*m = MetricOf(f)
	return nil
}
