package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapFields(t *testing.T) {
	mappings := []FieldMapping{
		{Source: "ACCT_NUM", Target: "account_number", Transform: "string"},
		{Source: "ACREAGE", Target: "acreage", Transform: "float"},
		{Source: "LIFECYCLE", Target: "status", Transform: "status_code"},
		{Source: "MISSING", Target: "owner_name", Transform: "string"},
	}
	constants := map[string]any{"county": "harris"}

	attrs := map[string]any{
		"ACCT_NUM":  " 0660640130020 ",
		"ACREAGE":   "1.25",
		"LIFECYCLE": "ACT",
		"EXTRA":     "ignored",
	}

	out := MapFields(attrs, mappings, constants)

	assert.Equal(t, "0660640130020", out["account_number"])
	assert.Equal(t, 1.25, out["acreage"])
	assert.Equal(t, "active", out["status"])
	assert.Equal(t, "harris", out["county"])

	// Missing sources still produce the target key, explicitly nil.
	v, present := out["owner_name"]
	assert.True(t, present)
	assert.Nil(t, v)

	// Unmapped source attributes never leak through.
	assert.NotContains(t, out, "EXTRA")
}

func TestMapFields_ConstantsWin(t *testing.T) {
	mappings := []FieldMapping{{Source: "SRC", Target: "category", Transform: "string"}}
	constants := map[string]any{"category": "utilities"}

	out := MapFields(map[string]any{"SRC": "something else"}, mappings, constants)

	assert.Equal(t, "utilities", out["category"])
}

func TestMapFields_UnknownTransformIsIdentity(t *testing.T) {
	mappings := []FieldMapping{{Source: "V", Target: "v", Transform: "no_such_transform"}}

	out := MapFields(map[string]any{"V": 42}, mappings, nil)

	assert.Equal(t, 42, out["v"])
}

func TestTransformNumeric(t *testing.T) {
	assert.Equal(t, 12.5, transformFloat("12.5"))
	assert.Equal(t, 12.5, transformFloat(12.5))
	assert.Nil(t, transformFloat("not a number"))
	assert.Nil(t, transformFloat(nil))

	assert.Equal(t, int64(12), transformInt(12.9))
	assert.Nil(t, transformInt("x"))
}

func TestTransformYear(t *testing.T) {
	assert.Equal(t, int64(1987), transformYear(1987))
	assert.Equal(t, int64(1987), transformYear("1987"))
	assert.Equal(t, int64(1987), transformYear("1987-06-01"))
	assert.Equal(t, int64(1987), transformYear("06/01/1987"))
	assert.Nil(t, transformYear("17"))
	assert.Nil(t, transformYear(""))
	assert.Nil(t, transformYear(nil))
}

func TestTransformStatusCode(t *testing.T) {
	assert.Equal(t, "active", transformStatusCode("In Service"))
	assert.Equal(t, "abandoned", transformStatusCode("ABN"))
	assert.Equal(t, "proposed", transformStatusCode("p"))
	assert.Equal(t, "retired", transformStatusCode("REMOVED"))
	// Present but uninterpretable keeps the unknown sentinel, not nil.
	assert.Equal(t, UnknownSentinel, transformStatusCode("ZZZ"))
	assert.Nil(t, transformStatusCode(""))
}

func TestTransformFloodZone(t *testing.T) {
	assert.Equal(t, "100yr", transformFloodZone("AE"))
	assert.Equal(t, "100yr", transformFloodZone("A13"))
	assert.Equal(t, "coastal_100yr", transformFloodZone("VE"))
	assert.Equal(t, "500yr_or_minimal", transformFloodZone("X"))
	assert.Equal(t, "500yr_or_minimal", transformFloodZone("0.2 PCT ANNUAL CHANCE"))
	assert.Equal(t, "undetermined", transformFloodZone("D"))
	assert.Equal(t, UnknownSentinel, transformFloodZone("Q9"))
	assert.Nil(t, transformFloodZone(nil))
}

func TestTransformWetlandType(t *testing.T) {
	assert.Equal(t, "palustrine", transformWetlandType("PEM1A"))
	assert.Equal(t, "estuarine", transformWetlandType("E2SS"))
	assert.Equal(t, UnknownSentinel, transformWetlandType("X1"))
	assert.Nil(t, transformWetlandType(""))
}
