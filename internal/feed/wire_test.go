package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBinanceDepthUpdate(t *testing.T) {
	raw := `{
		"e":"depthUpdate","E":1661586147639,"s":"LTCBTC",
		"U":1753501212,"u":1753501215,
		"b":[["0.00259978","4.35000000"]],
		"a":[["0.00344831","7.50000000"]]
	}`
	var u depthUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	assert.Equal(t, "depthUpdate", u.Event)
	assert.Equal(t, uint64(1753501212), u.FirstUpdateID)
	assert.Equal(t, uint64(1753501215), u.LastUpdateID)
	require.Len(t, u.Bids, 1)
	assert.Equal(t, []string{"0.00259978", "4.35000000"}, u.Bids[0])
}

func TestDecodeBinanceDepthSnapshot(t *testing.T) {
	raw := `{
		"lastUpdateId":1661585367,
		"bids":[["0.00259978","4.35000000"]],
		"asks":[["0.00344831","7.50000000"]]
	}`
	var s depthSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, uint64(1661585367), s.LastUpdateID)
	require.Len(t, s.Asks, 1)
}

func TestDecodeBitstampEnvelope(t *testing.T) {
	raw := `{
		"data":{
			"timestamp":"1661585367",
			"microtimestamp":"1661585367425575",
			"bids":[["0.00259978","4.35000000"]],
			"asks":[["0.00344831","7.50000000"]]
		},
		"channel":"order_book_ltcbtc",
		"event":"data"
	}`
	var env bitstampEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "data", env.Event)
	assert.Equal(t, "order_book_ltcbtc", env.Channel)
	require.Len(t, env.Data.Bids, 1)

	fresh, err := bookFromLevels(env.Data.Bids, env.Data.Asks, "bitstamp")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Bids.Len())
	assert.Equal(t, 1, fresh.Asks.Len())
}
