package fact

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrs_MarshalJSON_SortedKeys(t *testing.T) {
	a := Attrs{
		"who":          Int(42),
		"details":      String("a <b> & c"),
		"contributors": Ints([]int64{3, 1, 2}),
		"merged":       Bool(true),
	}

	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"contributors":[3,1,2],"details":"a <b> & c","merged":true,"who":42}`, string(data))
}

func TestAttrs_MarshalJSON_NFC(t *testing.T) {
	// "e" followed by a combining acute accent normalizes to a single rune.
	a := Attrs{"body": String("cafe\u0301")}

	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{\"body\":\"caf\u00e9\"}", string(data))
}

func TestAttrs_UnmarshalJSON(t *testing.T) {
	var a Attrs
	require.NoError(t, json.Unmarshal([]byte(`{"n":7,"s":"x","b":false,"arr":[1,"two"]}`), &a))

	assert.Equal(t, Int(7), a["n"])
	assert.Equal(t, String("x"), a["s"])
	assert.Equal(t, Bool(false), a["b"])
	assert.Equal(t, Array{Int(1), String("two")}, a["arr"])
}

func TestAttrs_UnmarshalJSON_RejectsFloats(t *testing.T) {
	var a Attrs
	err := json.Unmarshal([]byte(`{"ratio":0.5}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestAttrs_UnmarshalJSON_RejectsNull(t *testing.T) {
	var a Attrs
	err := json.Unmarshal([]byte(`{"who":null}`), &a)
	require.Error(t, err)
}

func TestMarshalValue_Nil(t *testing.T) {
	_, err := MarshalValue(nil)
	require.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny([]any{1, "a", true})
	require.NoError(t, err)
	assert.Equal(t, Array{Int(1), String("a"), Bool(true)}, v)

	_, err = FromAny(1.5)
	assert.Error(t, err)

	_, err = FromAny(map[string]any{"k": 1})
	assert.Error(t, err)
}

func TestFact_Accessors(t *testing.T) {
	when := time.Date(2024, 8, 5, 0, 52, 8, 0, time.UTC)
	f := New(KindReleasePublished, 820463873)
	f.Set("who", Int(8086956)).
		Set("tag", String("0.0.1")).
		Set("contributors", Ints([]int64{526301, 526302})).
		Set("when", Time(when))

	assert.Equal(t, int64(8086956), f.Int("who"))
	assert.Equal(t, "0.0.1", f.String("tag"))
	assert.Equal(t, []int64{526301, 526302}, f.Ints("contributors"))
	assert.True(t, f.Time("when").Equal(when))
	assert.True(t, f.Has("tag"))
	assert.False(t, f.Has("prev"))

	// Type mismatches return zero values rather than panicking.
	assert.Equal(t, int64(0), f.Int("tag"))
	assert.Equal(t, "", f.String("who"))
	assert.Nil(t, f.Ints("tag"))
	assert.True(t, f.Time("missing").IsZero())
}

func TestTime_UTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2024, 7, 31, 15, 45, 9, 0, loc)
	assert.Equal(t, String("2024-07-31T12:45:09Z"), Time(ts))
}

func TestAttrs_CloneAndMerge(t *testing.T) {
	a := Attrs{"x": Int(1)}
	b := a.Clone()
	b.Merge(Attrs{"y": Int(2), "x": Int(3)})

	assert.Equal(t, Attrs{"x": Int(1)}, a)
	assert.Equal(t, Attrs{"x": Int(3), "y": Int(2)}, b)
}

func TestTime_FixedWidthSortsLexically(t *testing.T) {
	early := Time(time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC))
	late := Time(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Equal(t, String("2024-01-01T00:00:00Z"), early)
	assert.Less(t, string(early), string(late))
}
