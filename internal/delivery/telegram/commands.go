package telegram

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const HelpText = `Команды:
/start - регистрация
/help - эта справка
/track <откуда> <куда> <даты через запятую> <лимит цены>
/list - активные трекеры
/stop - остановить все трекеры

Коды аэропортов - IATA, даты - YYYY-MM-DD, лимит - в рублях.
Одновременно можно держать до 5 трекеров.
Пример:
/track SVO LED 2026-12-01,2026-12-05 7000`

const stopCallbackPrefix = "stop_tr_"

var ErrInvalidArguments = errors.New("invalid arguments")

func ParseTrackArgs(args string) (origin, destination string, dates []string, priceLimit int64, err error) {
	parts := strings.Fields(args)
	if len(parts) != 4 {
		return "", "", nil, 0, ErrInvalidArguments
	}

	origin = strings.ToUpper(strings.TrimSpace(parts[0]))
	destination = strings.ToUpper(strings.TrimSpace(parts[1]))
	if len(origin) != 3 || len(destination) != 3 || origin == destination {
		return "", "", nil, 0, ErrInvalidArguments
	}

	for _, d := range strings.Split(parts[2], ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return "", "", nil, 0, ErrInvalidArguments
	}

	priceLimit, perr := strconv.ParseInt(parts[3], 10, 64)
	if perr != nil || priceLimit <= 0 {
		return "", "", nil, 0, ErrInvalidArguments
	}

	return origin, destination, dates, priceLimit, nil
}

func StopCallbackData(trackerID uint64) string {
	return stopCallbackPrefix + strconv.FormatUint(trackerID, 10)
}

func ParseStopCallback(data string) (uint64, error) {
	if !strings.HasPrefix(data, stopCallbackPrefix) {
		return 0, ErrInvalidArguments
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(data, stopCallbackPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidArguments
	}
	return id, nil
}
