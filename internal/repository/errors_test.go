package repository

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOFailure_MatchesSentinelAndCause(t *testing.T) {
	err := IOFailure("save collection projects", os.ErrPermission)

	require.ErrorIs(t, err, ErrIOFailure)
	require.ErrorIs(t, err, os.ErrPermission)
	require.Contains(t, err.Error(), "save collection projects")

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "save collection projects", ioErr.Op)
}

func TestIOFailure_Nil(t *testing.T) {
	require.NoError(t, IOFailure("noop", nil))
}
