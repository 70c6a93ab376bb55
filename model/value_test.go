package model

import (
	"testing"

	"github.com/siherrmann/persona/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedList []interface{}
type namedMap map[string]interface{}

func TestParseValue(t *testing.T) {
	t.Run("Scalars are normalized", func(t *testing.T) {
		v, err := ParseValue(8)
		require.NoError(t, err)
		assert.Equal(t, KindScalar, v.Kind)
		assert.Equal(t, int64(8), v.Scalar)
		assert.Equal(t, "8", v.String())

		v, err = ParseValue(2.5)
		require.NoError(t, err)
		assert.Equal(t, "2.5", v.String())

		v, err = ParseValue(true)
		require.NoError(t, err)
		assert.Equal(t, "true", v.String())
	})

	t.Run("Lists of any slice type are comma-joined", func(t *testing.T) {
		v, err := ParseValue([]string{"Python", "Docker"})
		require.NoError(t, err)
		assert.Equal(t, KindList, v.Kind)
		assert.Equal(t, "Python, Docker", v.String())

		v, err = ParseValue(namedList{"Go", 3})
		require.NoError(t, err, "Expected driver specific list types to parse")
		assert.Equal(t, "Go, 3", v.String())
	})

	t.Run("Nested maps render as sorted key value pairs", func(t *testing.T) {
		v, err := ParseValue(namedMap{"country": "FR", "city": "Paris", "zips": []interface{}{"75001", "75002"}})
		require.NoError(t, err)
		assert.Equal(t, KindMap, v.Kind)
		assert.Equal(t, "city: Paris, country: FR, zips: 75001, 75002", v.String())
	})

	t.Run("Too deep nesting is a validation error", func(t *testing.T) {
		_, err := ParseValue(map[string]interface{}{"a": map[string]interface{}{"b": 1}})
		assert.ErrorIs(t, err, helper.ErrValidation)

		_, err = ParseValue([]interface{}{map[string]interface{}{"a": 1}})
		assert.ErrorIs(t, err, helper.ErrValidation)

		_, err = ParseValue(make(chan int))
		assert.ErrorIs(t, err, helper.ErrValidation)
	})
}

func TestValueIsEmpty(t *testing.T) {
	t.Run("Empty values", func(t *testing.T) {
		for _, raw := range []interface{}{nil, "", "   ", []interface{}{}, map[string]interface{}{}} {
			v, err := ParseValue(raw)
			require.NoError(t, err)
			assert.True(t, v.IsEmpty(), "Expected %#v to be empty", raw)
		}
	})

	t.Run("Zero numbers and false are kept", func(t *testing.T) {
		for _, raw := range []interface{}{0, false, "x"} {
			v, err := ParseValue(raw)
			require.NoError(t, err)
			assert.False(t, v.IsEmpty(), "Expected %#v to be populated", raw)
		}
	})
}

func TestParseAttributes(t *testing.T) {
	t.Run("Valid structured data", func(t *testing.T) {
		attrs, err := ParseAttributes(map[string]interface{}{"title": "Engineer", "skills": []string{"Go"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"skills", "title"}, attrs.Keys())
	})

	t.Run("Invalid attribute names the key", func(t *testing.T) {
		_, err := ParseAttributes(map[string]interface{}{"positions": []interface{}{map[string]interface{}{"company": "X"}}})
		require.Error(t, err)
		assert.ErrorIs(t, err, helper.ErrValidation)
		assert.Contains(t, err.Error(), `attribute "positions"`)
	})
}
