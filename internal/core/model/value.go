package model

import (
	"strconv"
	"strings"
	"time"
)

// FieldValue is the tagged variant every oracle-supplied value is coerced
// into at the boundary. The deterministic core never sees an untyped value.
type ValueKind string

const (
	KindMissing ValueKind = "missing"
	KindText    ValueKind = "text"
	KindNumber  ValueKind = "number"
	KindDate    ValueKind = "date"
	KindBool    ValueKind = "bool"
)

type FieldValue struct {
	Kind   ValueKind  `json:"kind"`
	Text   string     `json:"text,omitempty"`
	Number float64    `json:"number,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
	Bool   bool       `json:"bool,omitempty"`
}

func Missing() FieldValue              { return FieldValue{Kind: KindMissing} }
func TextValue(s string) FieldValue    { return FieldValue{Kind: KindText, Text: s} }
func NumberValue(f float64) FieldValue { return FieldValue{Kind: KindNumber, Number: f} }
func BoolValue(b bool) FieldValue      { return FieldValue{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) FieldValue { return FieldValue{Kind: KindDate, Date: &t} }

func (v FieldValue) IsMissing() bool { return v.Kind == KindMissing || v.Kind == "" }

func (v FieldValue) AsNumber() (float64, bool) {
	if v.Kind == KindNumber {
		return v.Number, true
	}
	return 0, false
}

func (v FieldValue) AsText() (string, bool) {
	if v.Kind == KindText {
		return v.Text, true
	}
	return "", false
}

func (v FieldValue) AsDate() (time.Time, bool) {
	if v.Kind == KindDate && v.Date != nil {
		return *v.Date, true
	}
	return time.Time{}, false
}

func (v FieldValue) AsBool() (bool, bool) {
	if v.Kind == KindBool {
		return v.Bool, true
	}
	return false, false
}

// String renders the value for audit output and evidence bundles.
func (v FieldValue) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindDate:
		if v.Date != nil {
			return v.Date.Format("2006-01-02")
		}
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Coerce converts a loosely-shaped oracle value into a FieldValue. Numbers
// arrive as float64 or numeric strings, dates as RFC3339 or YYYY-MM-DD
// strings. Anything unrecognized becomes Missing, never a guess.
func Coerce(raw interface{}) FieldValue {
	switch t := raw.(type) {
	case nil:
		return Missing()
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case string:
		return coerceString(t)
	case FieldValue:
		return t
	default:
		return Missing()
	}
}

func coerceString(s string) FieldValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return DateValue(ts.UTC())
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return DateValue(ts.UTC())
	}
	// Currency-ish strings ("$21,759.75") are common in extracted fields.
	cleaned := strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return NumberValue(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return BoolValue(b)
	}
	return TextValue(s)
}
