package telegram

import (
	"testing"

	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/BearBump/FareBox/internal/services/watcher"
	"github.com/stretchr/testify/require"
)

func offerWithPrice(price int64) *flights.Offer {
	return &flights.Offer{Price: price}
}

func TestParseTrackArgs(t *testing.T) {
	origin, destination, dates, limit, err := ParseTrackArgs("svo led 2026-12-01,2026-12-05 7000")
	require.NoError(t, err)
	require.Equal(t, "SVO", origin)
	require.Equal(t, "LED", destination)
	require.Equal(t, []string{"2026-12-01", "2026-12-05"}, dates)
	require.Equal(t, int64(7000), limit)

	_, _, dates, _, err = ParseTrackArgs("SVO LED 2026-12-01 5000")
	require.NoError(t, err)
	require.Equal(t, []string{"2026-12-01"}, dates)
}

func TestParseTrackArgs_Invalid(t *testing.T) {
	cases := []string{
		"",
		"SVO LED 2026-12-01",          // нет лимита
		"SVO LED 2026-12-01 abc",      // лимит не число
		"SVO LED 2026-12-01 -100",     // лимит не положительный
		"SVO LED 2026-12-01 0",        // нулевой лимит
		"SVOX LED 2026-12-01 5000",    // кривой код
		"SVO SVO 2026-12-01 5000",     // туда же
		"SVO LED , 5000",              // пустые даты
		"SVO LED 2026-12-01 5000 x2",  // лишний аргумент
	}
	for _, args := range cases {
		_, _, _, _, err := ParseTrackArgs(args)
		require.ErrorIs(t, err, ErrInvalidArguments, "args: %q", args)
	}
}

func TestStopCallbackRoundTrip(t *testing.T) {
	data := StopCallbackData(42)
	require.Equal(t, "stop_tr_42", data)

	id, err := ParseStopCallback(data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
}

func TestParseStopCallback_Invalid(t *testing.T) {
	for _, data := range []string{"", "stop_tr_", "stop_tr_abc", "stop_tr_0", "other_42"} {
		_, err := ParseStopCallback(data)
		require.ErrorIs(t, err, ErrInvalidArguments, "data: %q", data)
	}
}

func TestFormatCreateResult(t *testing.T) {
	res := watcher.CreateResult{
		Accepted: []watcher.PendingTracker{
			{TrackerID: 1, Date: "2026-12-01", InitialOffer: offerWithPrice(6200)},
		},
		Skipped: []watcher.SkippedDate{
			{Date: "2026-12-05", Reason: watcher.SkipReasonNoSlots},
		},
	}
	text := formatCreateResult("SVO", "LED", 7000, res)

	require.Contains(t, text, "Москва (Шереметьево) (SVO)")
	require.Contains(t, text, "лимит 7000")
	require.Contains(t, text, "2026-12-01, сейчас от 6200")
	require.Contains(t, text, "2026-12-05: "+watcher.SkipReasonNoSlots)
}

func TestFormatCreateResult_AllSkipped(t *testing.T) {
	res := watcher.CreateResult{
		Skipped: []watcher.SkippedDate{
			{Date: "2020-01-01", Reason: watcher.SkipReasonBadDate},
		},
	}
	text := formatCreateResult("SVO", "LED", 7000, res)

	require.Contains(t, text, "Не получилось создать трекеры")
	require.Contains(t, text, "2020-01-01: "+watcher.SkipReasonBadDate)
}
