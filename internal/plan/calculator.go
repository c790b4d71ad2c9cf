package plan

import (
	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

const (
	longEntryBuffer  = 1.001
	longStopBuffer   = 0.997
	shortEntryBuffer = 0.999
	shortStopBuffer  = 1.003
)

// Config 控制止盈倍数与资金占用。
type Config struct {
	RiskMultiple1   float64
	RiskMultiple2   float64
	Capital         float64
	CapitalFraction float64
}

// Calculate 由信号K线与方向推导入场/止损/止盈与仓位，纯函数。
// 风险距离不为正时仓位为0。
func Calculate(candle exchange.Candle, direction signal.Direction, cfg Config) signal.TradePlan {
	if cfg.RiskMultiple1 <= 0 {
		cfg.RiskMultiple1 = 3.0
	}
	if cfg.RiskMultiple2 <= 0 {
		cfg.RiskMultiple2 = 5.0
	}
	if cfg.CapitalFraction <= 0 {
		cfg.CapitalFraction = 0.1
	}

	p := signal.TradePlan{Direction: direction}

	switch direction {
	case signal.DirectionShort:
		p.EntryPrice = candle.Low * shortEntryBuffer
		p.StopLoss = candle.High * shortStopBuffer
		risk := p.StopLoss - p.EntryPrice
		if risk > 0 {
			p.TakeProfit1 = p.EntryPrice - risk*cfg.RiskMultiple1
			p.TakeProfit2 = p.EntryPrice - risk*cfg.RiskMultiple2
			if p.TakeProfit1 < 0 {
				p.TakeProfit1 = 0
			}
			if p.TakeProfit2 < 0 {
				p.TakeProfit2 = 0
			}
			p.PositionSize = positionSize(cfg, p.EntryPrice)
		}
	default:
		p.Direction = signal.DirectionLong
		p.EntryPrice = candle.High * longEntryBuffer
		p.StopLoss = candle.Low * longStopBuffer
		risk := p.EntryPrice - p.StopLoss
		if risk > 0 {
			p.TakeProfit1 = p.EntryPrice + risk*cfg.RiskMultiple1
			p.TakeProfit2 = p.EntryPrice + risk*cfg.RiskMultiple2
			p.PositionSize = positionSize(cfg, p.EntryPrice)
		}
	}

	return p
}

// DirectionFor 由主导方向映射交易方向，买方压力做多，卖方压力做空。
func DirectionFor(pressure signal.Pressure) signal.Direction {
	if pressure == signal.PressureBuyer {
		return signal.DirectionLong
	}
	return signal.DirectionShort
}

func positionSize(cfg Config, entry float64) float64 {
	if entry <= 0 {
		return 0
	}
	return cfg.Capital * cfg.CapitalFraction / entry
}
