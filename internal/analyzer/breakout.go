package analyzer

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

const (
	// breakoutWindow 为2小时分析所需的最少K线数量。
	breakoutWindow = 22
	// baselineWindow 为波动基线的K线数量，取信号前第2至第11根。
	baselineWindow = 10
	// volumeWindow 为成交量均值窗口，不含信号K线本身。
	volumeWindow = 20
	// contractionRatio 为波动收缩判定系数，严格小于。
	contractionRatio = 0.5
)

// BreakoutConfig 控制2小时突破分析的可调阈值。
type BreakoutConfig struct {
	// MoveThresholdPct 为纳入评级的最小涨跌幅（百分比）。
	MoveThresholdPct float64
}

// Breakout 将单个交易对的2小时K线窗口转换为突破指标与评级。
type Breakout struct {
	cfg BreakoutConfig
}

// NewBreakout 创建2小时突破分析器。
func NewBreakout(cfg BreakoutConfig) *Breakout {
	if cfg.MoveThresholdPct <= 0 {
		cfg.MoveThresholdPct = 2.0
	}
	return &Breakout{cfg: cfg}
}

// Analyze 计算突破指标并给出评级。K线不足时返回错误，调用方按无信号处理。
func (b *Breakout) Analyze(symbol string, candles []exchange.Candle) (signal.SymbolMetrics, error) {
	if len(candles) < breakoutWindow {
		return signal.SymbolMetrics{}, fmt.Errorf("%w: %s 仅有 %d 根", exchange.ErrInsufficientHistory, symbol, len(candles))
	}

	series := NewSeries(candles)
	n := series.Len()

	// baselineRange 取信号K线之前10根的平均振幅，preSignalRange 为信号前一根。
	baselineRange := talib.Sma(series.Range, baselineWindow)[n-3]
	preSignalRange := series.Range[n-2]

	contraction := false
	if baselineRange > 0 {
		contraction = preSignalRange < baselineRange*contractionRatio
	}

	signalClose := series.Close[n-1]
	prevClose := series.Close[n-2]
	priceChangePct := 0.0
	if prevClose != 0 {
		priceChangePct = (signalClose - prevClose) / prevClose * 100
	}

	// 成交量均值窗口止于信号K线之前，信号本身不计入基数。
	avgVolume := talib.Sma(series.Volume, volumeWindow)[n-2]
	volumeRatio := SafeDivide(series.Volume[n-1], avgVolume)

	pressure := signal.PressureSeller
	if signalClose > series.Open[n-1] {
		pressure = signal.PressureBuyer
	}

	grade, analysis := b.grade(priceChangePct, volumeRatio, contraction, pressure)

	return signal.SymbolMetrics{
		Symbol:         symbol,
		Price:          signalClose,
		SignalTime:     series.Timestamps[n-1],
		Grade:          grade,
		Analysis:       analysis,
		Confidence:     confidenceScore(priceChangePct, volumeRatio),
		PriceChangePct: priceChangePct,
		VolumeRatio:    volumeRatio,
		Contraction:    contraction,
		Pressure:       pressure,
		SignalCandle:   candles[len(candles)-1],
	}, nil
}

func (b *Breakout) grade(priceChangePct, volumeRatio float64, contraction bool, pressure signal.Pressure) (signal.Grade, string) {
	isPump := priceChangePct > b.cfg.MoveThresholdPct && pressure == signal.PressureBuyer
	isDump := priceChangePct < -b.cfg.MoveThresholdPct && pressure == signal.PressureSeller

	if !isPump && !isDump {
		return signal.GradeNA, fmt.Sprintf("no significant move (<%.0f%%)", b.cfg.MoveThresholdPct)
	}

	switch {
	case volumeRatio < 1.5:
		return signal.GradeFTrap, "no real volume, likely fakeout"
	case volumeRatio < 2.0:
		if contraction {
			return signal.GradeBWeak, "weak breakout after contraction"
		}
		return signal.GradeCNoisy, "weak and noisy breakout"
	case volumeRatio < 3.5:
		if contraction {
			return signal.GradeAPrime, "prime breakout from contraction"
		}
		return signal.GradeBPlusNoisy, "noisy high-volume breakout"
	default:
		if contraction {
			return signal.GradeAPlus, "explosive breakout from contraction"
		}
		return signal.GradeAHighVol, "strong high-volume breakout"
	}
}

// confidenceScore 按价格与量能分档累加，范围[0,100]。
func confidenceScore(priceChangePct, volumeRatio float64) float64 {
	var priceScore, volumeScore float64

	move := math.Abs(priceChangePct)
	switch {
	case move > 6:
		priceScore = 50
	case move > 4:
		priceScore = 35
	case move > 2:
		priceScore = 20
	}

	switch {
	case volumeRatio > 5.0:
		volumeScore = 50
	case volumeRatio > 3.5:
		volumeScore = 35
	case volumeRatio > 2.0:
		volumeScore = 20
	}

	return priceScore + volumeScore
}
