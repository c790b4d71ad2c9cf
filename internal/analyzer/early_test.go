package analyzer

import (
	"testing"
	"time"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

// makeEarlyWindow 构造40根1分钟K线：前段宽振幅、后段窄振幅，
// 最后一根的收盘与成交量可调。
func makeEarlyWindow(lastClose, lastVolume float64) []exchange.Candle {
	candles := make([]exchange.Candle, 0, 40)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 100,
		})
	}
	for i := 20; i < 39; i++ {
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 100.3, Low: 99.7, Close: 100,
			Volume: 100,
		})
	}

	candles = append(candles, exchange.Candle{
		Timestamp: base.Add(39 * time.Minute),
		Open:      100, High: lastClose, Low: 100, Close: lastClose,
		Volume: lastVolume,
	})

	return candles
}

func TestEarlyAnalyze_CompressedPump(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	result, ok := e.Analyze("SOL/USDT:USDT", makeEarlyWindow(100.5, 250))
	if !ok {
		t.Fatalf("expected early signal")
	}

	m := result.Metrics
	if !m.Contraction {
		t.Errorf("expected compression=true")
	}
	if m.Pressure != signal.PressureBuyer {
		t.Errorf("expected buyer pressure, got %q", m.Pressure)
	}
	if m.Grade != signal.GradeEarly {
		t.Errorf("expected grade %q, got %q", signal.GradeEarly, m.Grade)
	}
	// score = |0.5| × 2.5
	if diff := result.Score - 1.25; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("unexpected score %f", result.Score)
	}
}

func TestEarlyAnalyze_PlusGrade(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	result, ok := e.Analyze("SOL/USDT:USDT", makeEarlyWindow(100.5, 400))
	if !ok {
		t.Fatalf("expected early signal")
	}
	if result.Metrics.Grade != signal.GradeEarlyPlus {
		t.Errorf("expected grade %q at ratio 4.0, got %q", signal.GradeEarlyPlus, result.Metrics.Grade)
	}
}

func TestEarlyAnalyze_Thresholds(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	// 涨幅不足。
	if _, ok := e.Analyze("SOL/USDT:USDT", makeEarlyWindow(100.2, 250)); ok {
		t.Errorf("expected no signal below price threshold")
	}
	// 量能不足。
	if _, ok := e.Analyze("SOL/USDT:USDT", makeEarlyWindow(100.5, 150)); ok {
		t.Errorf("expected no signal below volume threshold")
	}
}

func TestEarlyAnalyze_Guards(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	// 窗口不足40根。
	if _, ok := e.Analyze("SOL/USDT:USDT", makeEarlyWindow(100.5, 250)[:39]); ok {
		t.Errorf("expected no signal on short window")
	}

	// 旧窗口振幅为0时直接放弃。
	flat := makeEarlyWindow(100.5, 250)
	for i := 0; i < 20; i++ {
		flat[i].High = 100
		flat[i].Low = 100
	}
	if _, ok := e.Analyze("SOL/USDT:USDT", flat); ok {
		t.Errorf("expected no signal with zero old range")
	}

	// 近期成交量均值为0时直接放弃。
	noVol := makeEarlyWindow(100.5, 250)
	for i := 19; i < 39; i++ {
		noVol[i].Volume = 0
	}
	if _, ok := e.Analyze("SOL/USDT:USDT", noVol); ok {
		t.Errorf("expected no signal with zero recent volume")
	}
}

func TestEarlyAnalyze_CompressionBoundary(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	// 新窗口均值恰为旧窗口的0.7倍：旧均值2.0，新窗口由旧窗口末根(2.0)、
	// 18根1.375与1根1.25组成，均值精确等于1.4，严格小于不成立。
	candles := makeEarlyWindow(100.5, 250)
	for i := 20; i < 38; i++ {
		candles[i].High = 100.6875
		candles[i].Low = 99.3125
	}
	candles[38].High = 100.625
	candles[38].Low = 99.375

	result, ok := e.Analyze("SOL/USDT:USDT", candles)
	if !ok {
		t.Fatalf("expected signal at compression boundary")
	}
	if result.Metrics.Contraction {
		t.Errorf("compression must be false at exactly 0.7x the old range")
	}
}

func TestEarlyAnalyze_NoCompressionStillSignals(t *testing.T) {
	e := NewEarly(EarlyConfig{})

	// 近期振幅放大时压缩不成立，但阈值达标仍产出信号，压缩标志为假。
	wide := makeEarlyWindow(100.5, 250)
	for i := 20; i < 39; i++ {
		wide[i].High = 101
		wide[i].Low = 99
	}

	result, ok := e.Analyze("SOL/USDT:USDT", wide)
	if !ok {
		t.Fatalf("expected signal regardless of compression")
	}
	if result.Metrics.Contraction {
		t.Errorf("expected compression=false on widened recent range")
	}
}
