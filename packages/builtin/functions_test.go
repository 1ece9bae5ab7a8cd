package builtin

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry()

	t.Run("uuid", func(t *testing.T) {
		v, err := r.Call("uuid()")
		require.NoError(t, err)
		_, perr := uuid.Parse(v.(string))
		assert.NoError(t, perr)
	})

	t.Run("quoted args", func(t *testing.T) {
		v, err := r.Call("base64('user:pass')")
		require.NoError(t, err)
		assert.Equal(t, "dXNlcjpwYXNz", v)
	})

	t.Run("random_int range", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v, err := r.Call("random_int(3, 5)")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v.(int), 3)
			assert.LessOrEqual(t, v.(int), 5)
		}
	})

	t.Run("bad int argument", func(t *testing.T) {
		_, err := r.Call("random_string(abc)")
		assert.Error(t, err)
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := r.Call("nope()")
		assert.True(t, errors.Is(err, ErrUnknownFunction))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := r.Call("uuid")
		assert.Error(t, err)
	})
}

func TestRegistry_RegisterValue(t *testing.T) {
	r := NewRegistry()
	r.RegisterValue("host", "http://api.test")

	v, err := r.Call("host()")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", v)
	assert.True(t, r.Has("host"))
	assert.Contains(t, r.Names(), "host")
}

func TestEnvFunction(t *testing.T) {
	t.Setenv("CASERUN_TEST_VALUE", "abc")
	r := NewRegistry()

	v, err := r.Call("env(CASERUN_TEST_VALUE)")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	v, err = r.Call("env(CASERUN_TEST_MISSING, fallback)")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	_, err = r.Call("env(CASERUN_TEST_MISSING)")
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d,e"}, parseArgs(`a, 'b c', "d,e"`))
	assert.Nil(t, parseArgs(""))
}
