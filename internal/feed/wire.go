package feed

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/obagg/internal/book"
)

// Exchange payloads carry levels as ["price", "quantity"] string pairs.

// depthSnapshot is the Binance REST depth response, also the payload shape
// of the reduced partial-book stream.
type depthSnapshot struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// depthUpdate is one Binance sequenced delta event.
type depthUpdate struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID uint64     `json:"U"`
	LastUpdateID  uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// bitstampEnvelope wraps every message on the Bitstamp live order book
// channel.
type bitstampEnvelope struct {
	Event   string           `json:"event"`
	Channel string           `json:"channel"`
	Data    bitstampBookData `json:"data"`
}

type bitstampBookData struct {
	Timestamp      string     `json:"timestamp"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

func parseLevel(raw []string, exchange string) (book.Level, error) {
	if len(raw) != 2 {
		return book.Level{}, fmt.Errorf("level must be a [price, quantity] pair, got %d fields", len(raw))
	}
	price, err := decimal.NewFromString(raw[0])
	if err != nil {
		return book.Level{}, fmt.Errorf("parse level price %q: %w", raw[0], err)
	}
	amount, err := strconv.ParseFloat(raw[1], 64)
	if err != nil {
		return book.Level{}, fmt.Errorf("parse level quantity %q: %w", raw[1], err)
	}
	return book.Level{Price: price, Amount: amount, Exchange: exchange}, nil
}

func parseLevels(raw [][]string, exchange string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, r := range raw {
		l, err := parseLevel(r, exchange)
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, nil
}
