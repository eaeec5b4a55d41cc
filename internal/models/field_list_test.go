package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldList_MarshalKeepsOrder(t *testing.T) {
	var l FieldList
	l.Set("message", "hello")
	l.Set("email", "jane@example.com")
	l.Set("name", "Jane")

	b, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hello","email":"jane@example.com","name":"Jane"}`, string(b))
}

func TestFieldList_UnmarshalObject(t *testing.T) {
	var l FieldList
	err := l.UnmarshalJSON([]byte(`{"name":"Jane","age":30,"subscribed":true,"tags":["a","b"],"note":null}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age", "subscribed", "tags", "note"}, l.Keys())
	assert.Equal(t, "Jane", l.Get("name"))
	assert.Equal(t, "30", l.Get("age"))
	assert.Equal(t, "true", l.Get("subscribed"))
	assert.Equal(t, `["a","b"]`, l.Get("tags"))
	assert.Equal(t, "", l.Get("note"))
	assert.True(t, l.Has("note"))
}

func TestFieldList_UnmarshalPairArray(t *testing.T) {
	var l FieldList
	err := l.UnmarshalJSON([]byte(`[{"k":"b","v":"2"},{"k":"a","v":"1"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, l.Keys())
	assert.Equal(t, "2", l.Get("b"))
}

func TestFieldList_ScanTolerantInputs(t *testing.T) {
	var l FieldList
	require.NoError(t, l.Scan(`[{"k":"x","v":"1"}]`))
	assert.Equal(t, "1", l.Get("x"))

	require.NoError(t, l.Scan([]byte(`{"y":"2"}`)))
	assert.Equal(t, "2", l.Get("y"))

	require.NoError(t, l.Scan(nil))
	assert.Len(t, l, 0)

	require.NoError(t, l.Scan("null"))
	assert.Len(t, l, 0)

	assert.Error(t, l.Scan(42))
}

func TestFieldList_ValueRoundTrip(t *testing.T) {
	var l FieldList
	l.Set("a", "1")
	l.Set("b", "2")

	v, err := l.Value()
	require.NoError(t, err)

	var back FieldList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, l, back)

	var nilList FieldList
	v, err = nilList.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestFieldList_SetReplacesInPlace(t *testing.T) {
	var l FieldList
	l.Set("a", "1")
	l.Set("b", "2")
	l.Set("a", "3")

	assert.Equal(t, []string{"a", "b"}, l.Keys())
	assert.Equal(t, "3", l.Get("a"))
}

func TestFieldList_GetMissing(t *testing.T) {
	var l FieldList
	l.Set("a", "1")
	assert.Equal(t, "", l.Get("nope"))
	assert.False(t, l.Has("nope"))
}
