package ddp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	err := NewError(4001, "Invalid filters")
	assert.ErrorIs(t, err, NewError(4001, "Invalid filters"))
	assert.NotErrorIs(t, err, NewError(4002, "Invalid filters"))
	assert.Equal(t, "Invalid filters [4001]", err.Error())
	assert.Equal(t, ErrInternal, clientError(assert.AnError))
}
