package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{At: time.Date(2025, time.June, 3, 7, 15, 0, 123, time.UTC), ID: "rec-42"}
	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.At.Equal(out.At))
	require.Equal(t, in.ID, out.ID)

	none, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = DecodeCursor("not-base64!!")
	require.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultPageSize, ClampLimit(0))
	require.Equal(t, MaxPageSize, ClampLimit(1000))
	require.Equal(t, 5, ClampLimit(5))
}
