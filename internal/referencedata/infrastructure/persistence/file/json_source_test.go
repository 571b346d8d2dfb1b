package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
)

func TestJSONSourceFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "NSE.json")
	content := `[
		{"symbol": "ABC", "instrument_token": 1001, "exchange": "NSE"},
		{"symbol": "XYZ", "instrument_token": "2002"},
		"garbage",
		{"instrument_token": 3}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	src := NewJSONSource(path)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "ABC", records[0].Symbol)
	token, ok := domain.ParseToken(records[0].Token)
	require.True(t, ok)
	assert.Equal(t, int64(1001), token)

	token, ok = domain.ParseToken(records[1].Token)
	require.True(t, ok)
	assert.Equal(t, int64(2002), token)

	assert.Nil(t, records[2].Symbol)
	assert.Nil(t, records[3].Symbol)
}

func TestJSONSourceMissingFile(t *testing.T) {
	src := NewJSONSource(filepath.Join(t.TempDir(), "missing.json"))
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
}

func TestJSONSourceMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o600))
	_, err := NewJSONSource(path).Fetch(context.Background())
	require.Error(t, err)
}
