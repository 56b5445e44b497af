package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaguru/engine/internal/database"
	"github.com/pesaguru/engine/internal/domain"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    ":memory:",
		Profile: database.ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	store := NewHistoryStore(newTestDB(t), zerolog.Nop())
	require.NoError(t, store.InitSchema())
	return store
}

func TestHistoryStore_SaveAndLoad(t *testing.T) {
	store := newTestHistoryStore(t)

	now := time.Now().UTC()
	series := []domain.PricePoint{
		{Date: now.AddDate(0, 0, -3).Format("2006-01-02"), Close: 100},
		{Date: now.AddDate(0, 0, -2).Format("2006-01-02"), Close: 102},
		{Date: now.AddDate(0, 0, -1).Format("2006-01-02"), Close: 101},
	}
	require.NoError(t, store.SavePrices("NSE:SCOM", series))

	loaded, err := store.HistoricalPrices(context.Background(), "NSE:SCOM", 12, domain.FrequencyDaily)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, series[0].Date, loaded[0].Date)
	assert.Equal(t, 102.0, loaded[1].Close)
}

func TestHistoryStore_UpsertOverwrites(t *testing.T) {
	store := newTestHistoryStore(t)

	date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	require.NoError(t, store.SavePrices("NSE:EQTY", []domain.PricePoint{{Date: date, Close: 40}}))
	require.NoError(t, store.SavePrices("NSE:EQTY", []domain.PricePoint{{Date: date, Close: 41.5}}))

	loaded, err := store.HistoricalPrices(context.Background(), "NSE:EQTY", 12, domain.FrequencyDaily)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 41.5, loaded[0].Close)
}

func TestHistoryStore_UnknownAsset(t *testing.T) {
	store := newTestHistoryStore(t)

	_, err := store.HistoricalPrices(context.Background(), "NSE:NOPE", 12, domain.FrequencyDaily)
	require.Error(t, err)

	var fetchErr *domain.DataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "NSE:NOPE", fetchErr.Asset)
}

func TestHistoryStore_MonthlyDownsample(t *testing.T) {
	store := newTestHistoryStore(t)

	// Two observations in each of the last two full months; monthly frequency
	// keeps only the last observation per month.
	now := time.Now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var series []domain.PricePoint
	for monthsAgo := 2; monthsAgo >= 1; monthsAgo-- {
		base := firstOfMonth.AddDate(0, -monthsAgo, 0)
		series = append(series,
			domain.PricePoint{Date: base.Format("2006-01-02"), Close: 100 + float64(monthsAgo)},
			domain.PricePoint{Date: base.AddDate(0, 0, 1).Format("2006-01-02"), Close: 200 + float64(monthsAgo)},
		)
	}
	require.NoError(t, store.SavePrices("KEGB:91D", series))

	loaded, err := store.HistoricalPrices(context.Background(), "KEGB:91D", 6, domain.FrequencyMonthly)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for _, pt := range loaded {
		assert.GreaterOrEqual(t, pt.Close, 200.0, "monthly downsample keeps the last observation per month: %s", pt.Date)
	}
}

func TestHistoryStore_WindowCutoff(t *testing.T) {
	store := newTestHistoryStore(t)

	now := time.Now().UTC()
	series := []domain.PricePoint{
		{Date: now.AddDate(0, -24, 0).Format("2006-01-02"), Close: 90},
		{Date: now.AddDate(0, 0, -2).Format("2006-01-02"), Close: 100},
		{Date: now.AddDate(0, 0, -1).Format("2006-01-02"), Close: 101},
	}
	require.NoError(t, store.SavePrices("MMF:CIC", series))

	loaded, err := store.HistoricalPrices(context.Background(), "MMF:CIC", 12, domain.FrequencyDaily)
	require.NoError(t, err)
	require.Len(t, loaded, 2, "observations older than the lookback window are excluded")
}

func TestHistoryStore_IndexDelegation(t *testing.T) {
	store := newTestHistoryStore(t)

	now := time.Now().UTC()
	var series []domain.PricePoint
	for i := 5; i >= 1; i-- {
		series = append(series, domain.PricePoint{
			Date:  now.AddDate(0, 0, -i).Format("2006-01-02"),
			Close: 2000 + float64(i),
		})
	}
	require.NoError(t, store.SavePrices("NSE20", series))

	loaded, err := store.HistoricalIndex(context.Background(), "NSE20", 12, domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Len(t, loaded, 5)
}

func TestHistoryStore_LargeSeries(t *testing.T) {
	store := newTestHistoryStore(t)

	now := time.Now().UTC()
	series := make([]domain.PricePoint, 0, 500)
	for i := 500; i >= 1; i-- {
		series = append(series, domain.PricePoint{
			Date:  now.AddDate(0, 0, -i).Format("2006-01-02"),
			Close: 100 + float64(i%7),
		})
	}
	require.NoError(t, store.SavePrices("ETF:SPY", series))

	daily, err := store.HistoricalPrices(context.Background(), "ETF:SPY", 24, domain.FrequencyDaily)
	require.NoError(t, err)
	assert.Len(t, daily, 500)

	weekly, err := store.HistoricalPrices(context.Background(), "ETF:SPY", 24, domain.FrequencyWeekly)
	require.NoError(t, err)
	assert.Less(t, len(weekly), len(daily))
	assert.Greater(t, len(weekly), 50, fmt.Sprintf("roughly one point per week expected, got %d", len(weekly)))
}
