package ddp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Object(t *testing.T) {
	var p Params
	require.NoError(t, json.Unmarshal([]byte(`[{"a":1}, null, "x", [1]]`), &p))

	obj, err := p.Object(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, obj)

	obj, err = p.Object(1)
	require.NoError(t, err)
	assert.Empty(t, obj)

	obj, err = p.Object(9)
	require.NoError(t, err)
	assert.Empty(t, obj)

	_, err = p.Object(2)
	assert.ErrorIs(t, err, ErrMatchFailed)
	_, err = p.Object(3)
	assert.ErrorIs(t, err, ErrMatchFailed)
}

func TestParams_NullFromSubMessage(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"msg":"sub","id":"s1","name":"orders","params":[{"a":1},null]}`))
	require.NoError(t, err)
	p := Params(msg.Params)
	require.Equal(t, 2, p.Len())

	obj, err := p.Object(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, obj)

	obj, err = p.Object(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, obj)
}
