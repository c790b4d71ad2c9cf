package analyzer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

// makeBreakoutWindow 构造22根K线：前21根统一振幅与成交量，
// 倒数第2根振幅可调，最后一根为信号K线。
func makeBreakoutWindow(preSignalRange, signalClose, signalVolume float64) []exchange.Candle {
	candles := make([]exchange.Candle, 0, 22)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * 2 * time.Hour),
			Open:      100, High: 101.5, Low: 98.5, Close: 100,
			Volume: 100,
		})
	}

	half := preSignalRange / 2
	candles = append(candles, exchange.Candle{
		Timestamp: base.Add(40 * time.Hour),
		Open:      100, High: 100 + half, Low: 100 - half, Close: 100,
		Volume: 100,
	})

	high := signalClose
	low := 100.0
	if signalClose < 100 {
		high = 100
		low = signalClose
	}
	candles = append(candles, exchange.Candle{
		Timestamp: base.Add(42 * time.Hour),
		Open:      100, High: high, Low: low, Close: signalClose,
		Volume: signalVolume,
	})

	return candles
}

func TestAnalyze_ContractionBoundary(t *testing.T) {
	b := NewBreakout(BreakoutConfig{})

	// baselineRange=3.0，preSignalRange=1.0 → 1.0 < 1.5 收缩成立。
	m, err := b.Analyze("BTC/USDT:USDT", makeBreakoutWindow(1.0, 102.5, 400))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !m.Contraction {
		t.Errorf("expected contraction=true for preSignalRange=1.0, baseline=3.0")
	}

	// 恰好等于 0.5×baseline 时为严格小于，不算收缩。
	m, err = b.Analyze("BTC/USDT:USDT", makeBreakoutWindow(1.5, 102.5, 400))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.Contraction {
		t.Errorf("expected contraction=false at exactly 0.5x baseline")
	}
}

func TestAnalyze_ZeroBaselineNeverContraction(t *testing.T) {
	b := NewBreakout(BreakoutConfig{})

	candles := makeBreakoutWindow(0, 102.5, 400)
	for i := 0; i < 20; i++ {
		candles[i].High = 100
		candles[i].Low = 100
	}

	m, err := b.Analyze("BTC/USDT:USDT", candles)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.Contraction {
		t.Errorf("expected contraction=false when baseline range is zero")
	}
}

func TestAnalyze_GradeScenarios(t *testing.T) {
	b := NewBreakout(BreakoutConfig{})

	// +2.5% 买方、量能比4.0、收缩 → A+ (Explosive)。
	m, err := b.Analyze("BTC/USDT:USDT", makeBreakoutWindow(1.0, 102.5, 400))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.Grade != signal.GradeAPlus {
		t.Errorf("expected grade %q, got %q", signal.GradeAPlus, m.Grade)
	}
	if m.Pressure != signal.PressureBuyer {
		t.Errorf("expected buyer pressure, got %q", m.Pressure)
	}
	if diff := math.Abs(m.VolumeRatio - 4.0); diff > 1e-9 {
		t.Errorf("expected volumeRatio=4.0, got %f", m.VolumeRatio)
	}

	// 相同条件但无收缩 → A (High Volume)。
	m, err = b.Analyze("BTC/USDT:USDT", makeBreakoutWindow(3.0, 102.5, 400))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.Grade != signal.GradeAHighVol {
		t.Errorf("expected grade %q, got %q", signal.GradeAHighVol, m.Grade)
	}
}

func TestGrade_Table(t *testing.T) {
	b := NewBreakout(BreakoutConfig{MoveThresholdPct: 2})

	cases := []struct {
		name        string
		volumeRatio float64
		contraction bool
		want        signal.Grade
	}{
		{"trap_contraction", 1.0, true, signal.GradeFTrap},
		{"trap_no_contraction", 1.49, false, signal.GradeFTrap},
		{"weak", 1.8, true, signal.GradeBWeak},
		{"noisy", 1.8, false, signal.GradeCNoisy},
		{"prime", 3.0, true, signal.GradeAPrime},
		{"bplus_noisy", 3.0, false, signal.GradeBPlusNoisy},
		{"explosive", 3.5, true, signal.GradeAPlus},
		{"high_volume", 5.0, false, signal.GradeAHighVol},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := b.grade(2.5, tc.volumeRatio, tc.contraction, signal.PressureBuyer)
			if got != tc.want {
				t.Errorf("grade(2.5, %f, %v) = %q, want %q", tc.volumeRatio, tc.contraction, got, tc.want)
			}
		})
	}
}

func TestGrade_RequiresDirectionMatch(t *testing.T) {
	b := NewBreakout(BreakoutConfig{MoveThresholdPct: 2})

	// 涨幅达标但压力在卖方，不评级。
	if got, _ := b.grade(2.5, 4.0, true, signal.PressureSeller); got != signal.GradeNA {
		t.Errorf("expected N/A for direction mismatch, got %q", got)
	}
	// 跌幅达标且压力在卖方，正常评级。
	if got, _ := b.grade(-2.5, 4.0, true, signal.PressureSeller); got != signal.GradeAPlus {
		t.Errorf("expected %q for dump with seller pressure, got %q", signal.GradeAPlus, got)
	}
	// 恰好2%不触发，需严格大于阈值。
	if got, _ := b.grade(2.0, 4.0, true, signal.PressureBuyer); got != signal.GradeNA {
		t.Errorf("expected N/A at exactly 2%%, got %q", got)
	}
}

func TestAnalyze_ZeroVolumeBaseline(t *testing.T) {
	b := NewBreakout(BreakoutConfig{})

	candles := makeBreakoutWindow(1.0, 102.5, 400)
	for i := 0; i < 21; i++ {
		candles[i].Volume = 0
	}

	m, err := b.Analyze("BTC/USDT:USDT", candles)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.VolumeRatio != 0 {
		t.Errorf("expected volumeRatio=0 with zero volume baseline, got %f", m.VolumeRatio)
	}
	if m.Grade != signal.GradeFTrap {
		t.Errorf("expected %q with zero volume ratio, got %q", signal.GradeFTrap, m.Grade)
	}
}

func TestAnalyze_InsufficientWindow(t *testing.T) {
	b := NewBreakout(BreakoutConfig{})

	_, err := b.Analyze("BTC/USDT:USDT", makeBreakoutWindow(1.0, 102.5, 400)[:21])
	if !errors.Is(err, exchange.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestConfidenceScore(t *testing.T) {
	cases := []struct {
		priceChange float64
		volumeRatio float64
		want        float64
	}{
		{1.0, 1.0, 0},
		{2.5, 2.5, 40},
		{4.5, 4.0, 70},
		{-6.5, 5.5, 100},
	}

	for _, tc := range cases {
		if got := confidenceScore(tc.priceChange, tc.volumeRatio); got != tc.want {
			t.Errorf("confidenceScore(%f, %f) = %f, want %f", tc.priceChange, tc.volumeRatio, got, tc.want)
		}
	}
}
