package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitmcp/conduit/pkg/protocol"
)

func TestInvalidArgumentTypeCarriesData(t *testing.T) {
	err := InvalidArgumentType("add", "a", "Int", "nope")

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, protocol.InvalidParams, e.Code())
	assert.Equal(t, CategoryBusiness, e.Category())

	data, ok := e.Data().(ArgumentErrorData)
	require.True(t, ok)
	assert.Equal(t, "add", data.Tool)
	assert.Equal(t, "a", data.Parameter)
	assert.Equal(t, "Int", data.Expected)
	assert.Equal(t, "nope", data.Actual)
}

func TestAsThroughWrapping(t *testing.T) {
	inner := UnknownTool("frobnicate")
	wrapped := fmt.Errorf("dispatch: %w", inner)

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, protocol.InvalidParams, e.Code())
	assert.Contains(t, e.Message(), "frobnicate")
}

func TestAsRejectsPlainErrors(t *testing.T) {
	_, ok := As(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestCategories(t *testing.T) {
	assert.True(t, IsCategory(MethodNotFoundError("x"), CategoryProtocol))
	assert.True(t, IsCategory(UnknownTool("x"), CategoryBusiness))
	assert.True(t, IsCategory(Internal(stderrors.New("boom")), CategoryInternal))
	assert.False(t, IsCategory(UnknownTool("x"), CategoryProtocol))
}

func TestCodes(t *testing.T) {
	assert.True(t, IsCode(MethodNotFoundError("x"), protocol.MethodNotFound))
	assert.True(t, IsCode(ResourceNotFoundError("calc://x"), protocol.ResourceNotFound))
	assert.True(t, IsCode(SessionNotFoundError("s"), protocol.SessionNotFound))
	assert.True(t, IsCode(ParseErrorf("bad byte"), protocol.ParseError))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Internal(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "internal error", err.Message())
}
