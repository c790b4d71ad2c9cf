package plan

import (
	"math"
	"testing"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_Long(t *testing.T) {
	candle := exchange.Candle{High: 100, Low: 95}
	cfg := Config{RiskMultiple1: 3, RiskMultiple2: 5, Capital: 1000, CapitalFraction: 0.1}

	p := Calculate(candle, signal.DirectionLong, cfg)

	if !almostEqual(p.EntryPrice, 100.1) {
		t.Errorf("entry: got %f", p.EntryPrice)
	}
	if !almostEqual(p.StopLoss, 94.715) {
		t.Errorf("stop loss: got %f", p.StopLoss)
	}
	// risk = 5.385
	if !almostEqual(p.TakeProfit1, 116.255) {
		t.Errorf("tp1: got %f", p.TakeProfit1)
	}
	if !almostEqual(p.TakeProfit2, 127.025) {
		t.Errorf("tp2: got %f", p.TakeProfit2)
	}
	if !almostEqual(p.PositionSize, 100/100.1) {
		t.Errorf("position size: got %f", p.PositionSize)
	}
}

func TestCalculate_Short(t *testing.T) {
	candle := exchange.Candle{High: 100, Low: 95}
	cfg := Config{RiskMultiple1: 3, RiskMultiple2: 5, Capital: 1000, CapitalFraction: 0.1}

	p := Calculate(candle, signal.DirectionShort, cfg)

	if !almostEqual(p.EntryPrice, 94.905) {
		t.Errorf("entry: got %f", p.EntryPrice)
	}
	if !almostEqual(p.StopLoss, 100.3) {
		t.Errorf("stop loss: got %f", p.StopLoss)
	}
	// risk = 5.395
	if !almostEqual(p.TakeProfit1, 94.905-3*5.395) {
		t.Errorf("tp1: got %f", p.TakeProfit1)
	}
	if !almostEqual(p.TakeProfit2, 94.905-5*5.395) {
		t.Errorf("tp2: got %f", p.TakeProfit2)
	}
}

func TestCalculate_ShortClampsTakeProfit(t *testing.T) {
	// 风险距离远大于入场价时止盈不得为负。
	candle := exchange.Candle{High: 100, Low: 1}
	p := Calculate(candle, signal.DirectionShort, Config{Capital: 1000})

	if p.TakeProfit1 != 0 || p.TakeProfit2 != 0 {
		t.Errorf("expected clamped take profits, got %f / %f", p.TakeProfit1, p.TakeProfit2)
	}
	if p.PositionSize <= 0 {
		t.Errorf("expected position size despite clamp, got %f", p.PositionSize)
	}
}

func TestCalculate_ZeroRiskNoPosition(t *testing.T) {
	p := Calculate(exchange.Candle{}, signal.DirectionLong, Config{Capital: 1000, CapitalFraction: 0.1})

	if p.PositionSize != 0 {
		t.Errorf("expected zero position on zero risk, got %f", p.PositionSize)
	}
	if p.TakeProfit1 != 0 || p.TakeProfit2 != 0 {
		t.Errorf("expected no take profits on zero risk")
	}
}

func TestCalculate_Defaults(t *testing.T) {
	candle := exchange.Candle{High: 100, Low: 95}
	p := Calculate(candle, signal.DirectionLong, Config{Capital: 1000})

	// 默认倍数3/5，默认资金占比0.1。
	if !almostEqual(p.TakeProfit1, 116.255) {
		t.Errorf("default tp1: got %f", p.TakeProfit1)
	}
	if !almostEqual(p.PositionSize, 100/100.1) {
		t.Errorf("default position size: got %f", p.PositionSize)
	}
}

func TestDirectionFor(t *testing.T) {
	if DirectionFor(signal.PressureBuyer) != signal.DirectionLong {
		t.Errorf("buyer pressure must map to long")
	}
	if DirectionFor(signal.PressureSeller) != signal.DirectionShort {
		t.Errorf("seller pressure must map to short")
	}
}
