package barstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockwatch/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	bars := []market.Bar{
		{Time: day(4), Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000},
		{Time: day(5), Open: 10.5, High: 12, Low: 10, Close: 11.8, Volume: 1500},
		{Time: day(6), Open: 11.8, High: 11.8, Low: 11.8, Close: 11.8, Filled: true},
		{Time: day(7), Open: 11.8, High: 12.2, Low: 11, Close: 11.2, Volume: 900},
	}
	n, err := s.InsertBars(ctx, "sh600519", "1d", bars)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.LoadBars(ctx, "SH600519", "1d", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Time.Equal(day(4)))
	assert.Equal(t, 11.8, got[1].Close)
	assert.True(t, got[2].Time.Equal(day(7)))

	got, err = s.LoadBars(ctx, "SH600519", "1d", day(5), day(6))
	require.NoError(t, err)
	require.Len(t, got, 1)

	m, err := s.Manifest(ctx, "sh600519", "1d")
	require.NoError(t, err)
	assert.Equal(t, "SH600519", m.Symbol)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, day(4).UnixMilli(), m.MinTime)
	assert.Equal(t, day(7).UnixMilli(), m.MaxTime)
}

func TestUpsertOverwritesSameTimestamp(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.InsertBars(ctx, "A", "1d", []market.Bar{{Time: day(4), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}})
	require.NoError(t, err)
	_, err = s.InsertBars(ctx, "A", "1d", []market.Bar{{Time: day(4), Open: 2, High: 2, Low: 2, Close: 2, Volume: 2}})
	require.NoError(t, err)

	got, err := s.LoadBars(ctx, "A", "1d", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Close)
}

func TestTimeframesArePartitioned(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.InsertBars(ctx, "A", "1d", []market.Bar{{Time: day(4), Close: 1}})
	require.NoError(t, err)
	_, err = s.InsertBars(ctx, "A", "1w", []market.Bar{{Time: day(8), Close: 2}})
	require.NoError(t, err)

	list, err := s.ListManifests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1d", list[0].Timeframe)
	assert.Equal(t, "1w", list[1].Timeframe)

	_, err = s.LoadBars(ctx, "B", "1d", time.Time{}, time.Time{})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Manifest(ctx, "B", "1d")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}
