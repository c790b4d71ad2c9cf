package signal

import (
	"time"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
)

// Pressure 表示信号K线的主导方向。
type Pressure string

const (
	PressureBuyer  Pressure = "Buyer"
	PressureSeller Pressure = "Seller"
)

// Direction 表示交易计划方向。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Origin 标记信号来源的扫描周期。
type Origin string

const (
	OriginTwoHour   Origin = "2h"
	OriginOneMinute Origin = "1m"
)

// Grade 为突破质量的字母评级。
type Grade string

const (
	GradeNA         Grade = "N/A"
	GradeFTrap      Grade = "F (Trap)"
	GradeCNoisy     Grade = "C (Noisy)"
	GradeBWeak      Grade = "B (Weak)"
	GradeBPlusNoisy Grade = "B+ (Noisy)"
	GradeAHighVol   Grade = "A (High Volume)"
	GradeAPrime     Grade = "A (Prime)"
	GradeAPlus      Grade = "A+ (Explosive)"
	GradeEarly      Grade = "EP"
	GradeEarlyPlus  Grade = "EP+"
)

// Rank 返回评级的排序权重，数值越大质量越高。
func (g Grade) Rank() int {
	switch g {
	case GradeAPlus:
		return 7
	case GradeAPrime:
		return 6
	case GradeAHighVol:
		return 5
	case GradeBPlusNoisy:
		return 4
	case GradeBWeak:
		return 3
	case GradeCNoisy:
		return 2
	case GradeFTrap:
		return 1
	case GradeEarlyPlus:
		return 7
	case GradeEarly:
		return 5
	default:
		return 0
	}
}

// SymbolMetrics 为单个交易对一次分析的全部指标，创建后不再修改。
type SymbolMetrics struct {
	Symbol         string
	Price          float64
	SignalTime     time.Time
	Grade          Grade
	Analysis       string
	Confidence     float64
	PriceChangePct float64
	VolumeRatio    float64
	Contraction    bool
	Pressure       Pressure
	SignalCandle   exchange.Candle
	QuoteVolume24h float64
	HighVolume24h  bool
}

// Qualified 判断该指标是否构成一个可评级的突破。
func (m SymbolMetrics) Qualified() bool {
	return m.Grade != GradeNA
}

// WhaleSnapshot 为一次盘口鲸鱼检测的结果。
type WhaleSnapshot struct {
	Imbalance      float64
	BidImbalance   bool
	AskImbalance   bool
	BidWall        bool
	AskWall        bool
	SweepBuy       bool
	SweepSell      bool
	AggressiveBuy  bool
	AggressiveSell bool
	Score          int
}

// TradePlan 为基于信号K线推导出的入场计划。
type TradePlan struct {
	Direction    Direction
	EntryPrice   float64
	StopLoss     float64
	TakeProfit1  float64
	TakeProfit2  float64
	PositionSize float64
}

// Event 为一次扫描周期针对单个候选产出的终端信号。
type Event struct {
	Origin    Origin
	Metrics   SymbolMetrics
	Whale     *WhaleSnapshot
	Plan      TradePlan
	Score     float64
	CreatedAt time.Time
}

// Type 返回信号类型（Pump/Dump），由主导方向决定。
func (e Event) Type() string {
	if e.Metrics.Pressure == PressureBuyer {
		return "Pump"
	}
	return "Dump"
}
