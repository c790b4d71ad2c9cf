package exchange

import "time"

const (
	// TimeframeScan 为主扫描周期。
	TimeframeScan = "2h"
	// TimeframeEarly 为早期扫描周期。
	TimeframeEarly = "1m"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range 返回K线的高低价区间。
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// Ticker 为单个交易对的行情快照。
// Binance 合约在 info 中附带主动买卖量，缺失时 BuyVolume/SellVolume 为 0。
type Ticker struct {
	Symbol      string
	Last        float64
	Bid         float64
	Ask         float64
	QuoteVolume float64
	BuyVolume   float64
	SellVolume  float64
	Timestamp   time.Time
}
