// Package binance implements the Binance adapter transport and
// normalization layer.
//
// Wire DTOs (WSDepthEvent/WSTradeEvent/WSKlineEvent/WSBookTickerEvent)
// mirror Binance's documented combined-stream payload shapes, preserving
// every field a downstream consumer needs for both the hot-path float64
// fields and the verbatim decimal strings.
package binance

// WSDepthEvent is Binance's diff-depth stream event.
type WSDepthEvent struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// WSTradeEvent is Binance's public trade stream event.
type WSTradeEvent struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	TradeID       int64  `json:"t"`
	Price         string `json:"p"`
	Quantity      string `json:"q"`
	BuyerOrderID  int64  `json:"b"`
	SellerOrderID int64  `json:"a"`
	TradeTime     int64  `json:"T"`
	IsBuyerMaker  bool   `json:"m"`
}

// WSKlineEvent is Binance's kline/candlestick stream event.
type WSKlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime        int64  `json:"t"`
		CloseTime        int64  `json:"T"`
		Interval         string `json:"i"`
		OpenPrice        string `json:"o"`
		ClosePrice       string `json:"c"`
		HighPrice        string `json:"h"`
		LowPrice         string `json:"l"`
		BaseAssetVolume  string `json:"v"`
		IsKlineClosed    bool   `json:"x"`
	} `json:"k"`
}

// WSBookTickerEvent is Binance's best bid/ask stream event.
type WSBookTickerEvent struct {
	UpdateID     int64  `json:"u"`
	Symbol       string `json:"s"`
	BestBidPrice string `json:"b"`
	BestBidQty   string `json:"B"`
	BestAskPrice string `json:"a"`
	BestAskQty   string `json:"A"`
}

// WSUserDataEvent is the envelope for Binance's user-data (private) stream;
// EventType discriminates between executionReport, outboundAccountPosition,
// and listenKeyExpired.
type WSUserDataEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
}

// WSExecutionReport is Binance's order-update event on the user-data stream.
type WSExecutionReport struct {
	WSUserDataEvent
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	Side              string `json:"S"`
	OrderType         string `json:"o"`
	OrderStatus       string `json:"X"`
	OrderID           int64  `json:"i"`
	Price             string `json:"p"`
	Quantity          string `json:"q"`
	LastFilledQty     string `json:"l"`
	CumulativeFilled  string `json:"z"`
	LastFilledPrice   string `json:"L"`
	TransactionTime   int64  `json:"T"`
}
