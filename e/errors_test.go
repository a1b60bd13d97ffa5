package e

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestKindClassification(t *testing.T) {
	err := NK(KindFormat, "000401", "missing marker")

	require.True(t, errors.Is(err, KindFormat))
	require.False(t, errors.Is(err, KindIO))
	require.Equal(t, KindFormat, KindOf(err))
	require.Equal(t, "000401: missing marker", UserMessage(err))
}

func TestWKKeepsInnerKind(t *testing.T) {
	inner := WK(fs.ErrNotExist, KindIO, "000203", "dir not found")
	outer := WK(inner, KindExecution, "000108", "run failed")

	require.Equal(t, KindIO, KindOf(outer))
	require.True(t, errors.Is(outer, fs.ErrNotExist))
	require.Equal(t, "000108: run failed", UserMessage(outer))
}

func TestWrapAddsCodes(t *testing.T) {
	err := W(errors.New("boom"), "000101", "debug")
	err = W(err, "000102")

	require.True(t, ContainsError(err, "000101"))
	require.True(t, ContainsError(err, "000102"))
	require.True(t, ContainsError(err, "boom"))
	require.Equal(t, KindUnknown, KindOf(err))
	require.Equal(t, "000101: "+MsgUnknownInternalServerError, UserMessage(err))
}

func TestCause(t *testing.T) {
	orig := errors.New("orig")
	require.Equal(t, orig, Cause(W(orig, "000101")))
	require.Nil(t, Cause(N("000101", "new")))
	require.Equal(t, orig, Cause(orig))
}

func TestUserMessagePlainError(t *testing.T) {
	require.Equal(t, "plain", UserMessage(errors.New("plain")))
}

func TestPQErrorCode(t *testing.T) {
	err := W(&pq.Error{Code: PQErr23505UniqueViolation}, "000309")

	require.True(t, IsPQError(err, PQErr23505UniqueViolation))
	require.Equal(t, PQErr23505UniqueViolation, PQErrorCode(err))
	require.False(t, IsPQError(errors.New("x"), PQErr23505UniqueViolation))
	require.Equal(t, "", PQErrorCode(nil))
}
