package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")
	w, err := Open(path, 1<<20, 1)
	require.NoError(t, err)
	defer w.Close()

	buf := make([]byte, MaxPayloadSize(TypeTicker))
	n := EncodeTickerPayload(buf, TickerPayload{Symbol: "BTC-USDT", LastPrice: 50000, HasBid: true, BidPrice: 49999})
	require.NoError(t, w.Write(TypeTicker, buf[:n]))

	r, err := OpenReader(path, ReaderConfig{})
	require.NoError(t, err)
	defer r.Close()

	var got TickerPayload
	count, lagErr := r.Poll(func(h FrameHeader, payload []byte) error {
		assert.Equal(t, TypeTicker, h.TypeTag)
		got = DecodeTickerPayload(payload)
		return nil
	})
	require.NoError(t, lagErr)
	assert.Equal(t, 1, count)
	assert.Equal(t, "BTC-USDT", got.Symbol)
	assert.Equal(t, 50000.0, got.LastPrice)
	assert.True(t, got.HasBid)
	assert.Equal(t, 49999.0, got.BidPrice)
}

func TestFrameTooLargeRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")
	w, err := Open(path, 1<<20, 1)
	require.NoError(t, err)
	defer w.Close()

	oversized := make([]byte, MaxPayloadSize(TypeTicker)+1)
	err = w.Write(TypeTicker, oversized)
	require.Error(t, err)
}

func TestWriterWrapsAndReaderFollowsSentinel(t *testing.T) {
	// Small journal forces a wrap quickly: capacity small relative to frame size.
	path := filepath.Join(t.TempDir(), "wrap.journal")
	size := int64(PageHeaderSize + 512) // 512-byte data region
	w, err := Open(path, size, 1)
	require.NoError(t, err)
	defer w.Close()

	buf := make([]byte, MaxPayloadSize(TypeTrade))
	n := EncodeTradePayload(buf, TradePayload{Symbol: "BTC-USDT", TradeID: "1", Price: 100, Quantity: 1, Side: 1})
	frameSize := alignUp(FrameHeaderSize + n)

	written := 0
	for i := 0; i < 20; i++ {
		require.NoError(t, w.Write(TypeTrade, buf[:n]))
		written++
	}
	assert.Greater(t, int64(written*frameSize), size-PageHeaderSize, "test should have forced at least one wrap")

	r, err := OpenReader(path, ReaderConfig{})
	require.NoError(t, err)
	defer r.Close()

	count, lagErr := r.Poll(func(h FrameHeader, payload []byte) error { return nil })
	assert.Greater(t, count, 0)
	_ = lagErr // the reader attaches after the writer has lapped it, so it may report JournalLag; only progress is checked
}

func TestReaderDetectsLagAfterOverrun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lag.journal")
	size := int64(PageHeaderSize + 512)
	w, err := Open(path, size, 1)
	require.NoError(t, err)
	defer w.Close()

	buf := make([]byte, MaxPayloadSize(TypeTrade))
	n := EncodeTradePayload(buf, TradePayload{Symbol: "BTC-USDT", TradeID: "1", Price: 100, Quantity: 1, Side: 1})

	// First write establishes a baseline the reader will consume.
	require.NoError(t, w.Write(TypeTrade, buf[:n]))

	r, err := OpenReader(path, ReaderConfig{})
	require.NoError(t, err)
	defer r.Close()

	_, lagErr := r.Poll(func(h FrameHeader, payload []byte) error { return nil })
	require.NoError(t, lagErr)

	// Now let the writer lap the reader several times over without the
	// reader polling in between.
	for i := 0; i < 50; i++ {
		require.NoError(t, w.Write(TypeTrade, buf[:n]))
	}

	_, lagErr = r.Poll(func(h FrameHeader, payload []byte) error { return nil })
	assert.Error(t, lagErr, "reader should detect a sequence-number jump after being lapped")
}
