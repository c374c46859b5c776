package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stratbot/internal/domain"
)

func TestCandleCSVRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	candles := []*domain.Candle{
		{
			OpenTime:  start,
			CloseTime: start.Add(time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      3000.5,
			High:      3050,
			Low:       2990.25,
			Close:     3040,
			Volume:    123.456,
		},
		{
			OpenTime:  start.Add(time.Hour),
			CloseTime: start.Add(2 * time.Hour),
			Symbol:    "ETHUSDT",
			Interval:  "1h",
			Open:      3040,
			High:      3100,
			Low:       3035,
			Close:     3090,
			Volume:    98.7,
		},
	}

	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := WriteCandlesToCSV(candles, path); err != nil {
		t.Fatalf("WriteCandlesToCSV failed: %v", err)
	}

	loaded, err := ReadCandlesFromCSV(path)
	if err != nil {
		t.Fatalf("ReadCandlesFromCSV failed: %v", err)
	}
	if len(loaded) != len(candles) {
		t.Fatalf("expected %d candles, got %d", len(candles), len(loaded))
	}
	for i := range candles {
		if !loaded[i].OpenTime.Equal(candles[i].OpenTime) ||
			loaded[i].Symbol != candles[i].Symbol ||
			loaded[i].Close != candles[i].Close ||
			loaded[i].Volume != candles[i].Volume {
			t.Errorf("candle %d mismatch: want %+v, got %+v", i, candles[i], loaded[i])
		}
	}
}

func TestReadCandlesFromCSV_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "open_time,close_time,symbol,interval,open,high,low,close,volume\n" +
		"2024-03-01T12:00:00Z,2024-03-01T13:00:00Z,ETHUSDT,1h,3000,3050,2990,not-a-number,10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadCandlesFromCSV(path); err == nil {
		t.Error("expected parse error for malformed close field")
	}
}

func TestReadCandlesFromCSV_MissingFile(t *testing.T) {
	if _, err := ReadCandlesFromCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
