package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/coachsync/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	original := &domain.Cursor{
		SharedAt: time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC),
		ID:       "9b0f2a6e-1c3d-4e5f-8a7b-0c1d2e3f4a5b",
	}

	token := EncodeCursor(original)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, original.SharedAt.Equal(decoded.SharedAt))
	require.Equal(t, original.ID, decoded.ID)
}

func TestEncodeCursorNil(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))
}

func TestDecodeCursorBlank(t *testing.T) {
	for _, token := range []string{"", "   "} {
		decoded, err := DecodeCursor(token)
		require.NoError(t, err)
		require.Nil(t, decoded)
	}
}

func TestDecodeCursorRejectsMalformedTokens(t *testing.T) {
	cases := map[string]string{
		"not base64":        "%%%",
		"missing separator": "bm8tc2VwYXJhdG9y", // "no-separator"
		"bad timestamp":     "bm90LWEtdGltZXxpZA==", // "not-a-time|id"
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCursor(token)
			require.Error(t, err)
		})
	}
}
