package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoerceScalars(t *testing.T) {
	assert.Equal(t, KindMissing, Coerce(nil).Kind)
	assert.Equal(t, NumberValue(42), Coerce(42.0))
	assert.Equal(t, BoolValue(true), Coerce(true))

	v := Coerce("hello world")
	assert.Equal(t, KindText, v.Kind)
	assert.Equal(t, "hello world", v.Text)
}

func TestCoerceNumericStrings(t *testing.T) {
	v := Coerce("$21,759.75")
	n, ok := v.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 21759.75, n)

	v = Coerce("43.5")
	n, ok = v.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 43.5, n)
}

func TestCoerceDates(t *testing.T) {
	v := Coerce("2023-06-15")
	d, ok := v.AsDate()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), d)

	v = Coerce("2023-06-15T10:30:00Z")
	_, ok = v.AsDate()
	assert.True(t, ok)

	// Ambiguous formats coerce to Missing rather than a guess.
	assert.Equal(t, KindText, Coerce("06/15/2023").Kind)
}

func TestCoerceEmptyAndWhitespace(t *testing.T) {
	assert.True(t, Coerce("").IsMissing())
	assert.True(t, Coerce("   ").IsMissing())
}

func TestFieldValueString(t *testing.T) {
	assert.Equal(t, "21759.75", NumberValue(21759.75).String())
	assert.Equal(t, "2023-06-15", DateValue(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "", Missing().String())
}
