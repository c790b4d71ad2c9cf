package analyzer

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

const (
	// earlyWindow 为1分钟早期检测所需的最少K线数量。
	earlyWindow = 40
	// earlySubWindow 为新旧振幅对比的子窗口大小。
	earlySubWindow = 20
	// compressionRatio 为波动压缩判定系数，严格小于。
	compressionRatio = 0.7
)

// EarlyConfig 控制1分钟早期扫描的阈值。
type EarlyConfig struct {
	MinPriceMovePct float64
	MinVolumeRatio  float64
	PlusVolumeRatio float64
}

// EarlyResult 为一次早期检测的产出，Score 用于批次内排序。
type EarlyResult struct {
	Metrics signal.SymbolMetrics
	Score   float64
}

// Early 在1分钟K线上做压缩+量能放大的快速检测。
type Early struct {
	cfg EarlyConfig
}

// NewEarly 创建1分钟早期扫描分析器。
func NewEarly(cfg EarlyConfig) *Early {
	if cfg.MinPriceMovePct <= 0 {
		cfg.MinPriceMovePct = 0.35
	}
	if cfg.MinVolumeRatio <= 0 {
		cfg.MinVolumeRatio = 2.0
	}
	if cfg.PlusVolumeRatio <= 0 {
		cfg.PlusVolumeRatio = 3.5
	}
	return &Early{cfg: cfg}
}

// Analyze 检测早期拉升/砸盘。未达阈值或窗口数据不可用时返回 ok=false。
func (e *Early) Analyze(symbol string, candles []exchange.Candle) (EarlyResult, bool) {
	if len(candles) < earlyWindow {
		return EarlyResult{}, false
	}

	series := NewSeries(candles)
	n := series.Len()

	rangeSma := talib.Sma(series.Range, earlySubWindow)
	// 旧窗口止于倒数第21根，新窗口止于倒数第2根，两段各20根。
	oldRangeAvg := rangeSma[n-earlySubWindow-1]
	recentRangeAvg := rangeSma[n-2]
	recentVolAvg := talib.Sma(series.Volume, earlySubWindow)[n-2]

	if oldRangeAvg <= 0 || recentVolAvg <= 0 {
		return EarlyResult{}, false
	}

	compressed := recentRangeAvg < oldRangeAvg*compressionRatio

	prevClose := series.Close[n-2]
	if prevClose == 0 {
		return EarlyResult{}, false
	}
	priceChangePct := (series.Close[n-1] - prevClose) / prevClose * 100
	volumeRatio := series.Volume[n-1] / recentVolAvg

	if math.Abs(priceChangePct) < e.cfg.MinPriceMovePct {
		return EarlyResult{}, false
	}
	if volumeRatio < e.cfg.MinVolumeRatio {
		return EarlyResult{}, false
	}

	pressure := signal.PressureSeller
	if series.Close[n-1] > series.Open[n-1] {
		pressure = signal.PressureBuyer
	}

	grade := signal.GradeEarly
	if volumeRatio >= e.cfg.PlusVolumeRatio {
		grade = signal.GradeEarlyPlus
	}

	metrics := signal.SymbolMetrics{
		Symbol:         symbol,
		Price:          series.Close[n-1],
		SignalTime:     series.Timestamps[n-1],
		Grade:          grade,
		Analysis:       "early move on compressed range",
		PriceChangePct: priceChangePct,
		VolumeRatio:    volumeRatio,
		Contraction:    compressed,
		Pressure:       pressure,
		SignalCandle:   candles[len(candles)-1],
	}

	return EarlyResult{
		Metrics: metrics,
		Score:   math.Abs(priceChangePct) * volumeRatio,
	}, true
}
