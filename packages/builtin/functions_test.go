package builtin

import (
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UUID(t *testing.T) {
	r := NewRegistry()
	v, err := r.Call("uuid()")
	require.NoError(t, err)

	_, err = uuid.Parse(v.(string))
	assert.NoError(t, err)
}

func TestRegistry_Random(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 20; i++ {
		v, err := r.Call("random(5, 7)")
		require.NoError(t, err)
		n := v.(int)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 7)
	}

	_, err := r.Call("random(a, 7)")
	assert.Error(t, err)

	_, err = r.Call("random(9, 7)")
	assert.Error(t, err)
}

func TestRegistry_RandomData(t *testing.T) {
	r := NewRegistry()

	v, err := r.Call("randomString(12)")
	require.NoError(t, err)
	assert.Len(t, v.(string), 12)

	v, err = r.Call("randomEmail()")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{8}@[a-z]{6}\.com$`), v)
}

func TestRegistry_Encoding(t *testing.T) {
	r := NewRegistry()
	tests := map[string]string{
		`base64("user:pass")`:          "dXNlcjpwYXNz",
		`base64Decode("dXNlcjpwYXNz")`: "user:pass",
		`urlEncode("a b&c")`:           "a+b%26c",
		`sha256("abc")`:                "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}

	for expr, expected := range tests {
		v, err := r.Call(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, expected, v, expr)
	}
}

func TestRegistry_Env(t *testing.T) {
	t.Setenv("APICONTRACT_TEST_TOKEN", "secret")
	r := NewRegistry()

	v, err := r.Call("env(APICONTRACT_TEST_TOKEN)")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)

	v, err = r.Call(`env(APICONTRACT_TEST_UNSET, "fallback")`)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call("teleport()")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFunction))

	_, err = r.Call("not a call")
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("answer", func(_ []string) (any, error) { return 42, nil })

	v, err := r.Call("answer()")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Contains(t, r.Names(), "answer")
}

func TestIsCall(t *testing.T) {
	assert.True(t, IsCall("uuid()"))
	assert.True(t, IsCall(" random(1, 2) "))
	assert.False(t, IsCall("create-user.id"))
	assert.False(t, IsCall("$HOME"))
}
