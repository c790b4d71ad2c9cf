package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrick1923/crypto-scanner/internal/analyzer"
	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/plan"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

// 早期信号没有成型的2小时信号K线，围绕最新价构造一个±0.1%的窄带K线
// 供入场计算使用。
const earlyBandRatio = 0.001

// EarlyConfig 控制一轮1分钟早期扫描的行为。
type EarlyConfig struct {
	TopSymbols     int
	CandleLimit    int
	MaxConcurrency int
	CycleTimeout   time.Duration
	Plan           plan.Config
}

// EarlyOrchestrator 在高成交额子集上驱动1分钟早期扫描。
type EarlyOrchestrator struct {
	cfg      EarlyConfig
	universe Universe
	market   MarketData
	early    *analyzer.Early
	logger   *zap.Logger

	runMu sync.Mutex
}

// NewEarlyOrchestrator 创建1分钟扫描编排器。
func NewEarlyOrchestrator(cfg EarlyConfig, universe Universe, market MarketData, early *analyzer.Early, logger *zap.Logger) *EarlyOrchestrator {
	if cfg.TopSymbols <= 0 {
		cfg.TopSymbols = 60
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 40
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 12
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EarlyOrchestrator{
		cfg:      cfg,
		universe: universe,
		market:   market,
		early:    early,
		logger:   logger,
	}
}

// Run 执行一轮早期扫描，仅保留压缩后放量的买方信号。
func (o *EarlyOrchestrator) Run(ctx context.Context) ([]signal.Event, error) {
	if !o.runMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer o.runMu.Unlock()

	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	symbols, err := o.universe.TopByVolume(ctx, o.cfg.TopSymbols)
	if err != nil {
		return nil, fmt.Errorf("获取高成交额符号集失败: %w", err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	o.logger.Info("开始1分钟早期扫描", zap.Int("symbols", len(symbols)))

	results := make([]*analyzer.EarlyResult, len(symbols))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.MaxConcurrency)

	for i, symbol := range symbols {
		group.Go(func() error {
			candles, err := o.market.FetchCandles(groupCtx, symbol, exchange.TimeframeEarly, o.cfg.CandleLimit)
			if err != nil {
				if !errors.Is(err, exchange.ErrInsufficientHistory) {
					o.logger.Debug("1分钟K线拉取失败，跳过该交易对",
						zap.String("symbol", symbol),
						zap.Error(err),
					)
				}
				return nil
			}

			if result, ok := o.early.Analyze(symbol, candles); ok {
				results[i] = &result
			}
			return nil
		})
	}

	_ = group.Wait()

	hits := make([]analyzer.EarlyResult, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		// 只保留压缩后的买方信号，与2小时评级体系中的高质量突破一致。
		if r.Metrics.Pressure != signal.PressureBuyer || !r.Metrics.Contraction {
			continue
		}
		hits = append(hits, *r)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Metrics.Symbol < hits[j].Metrics.Symbol
	})

	now := time.Now().UTC()
	events := make([]signal.Event, 0, len(hits))
	for _, hit := range hits {
		events = append(events, signal.Event{
			Origin:    signal.OriginOneMinute,
			Metrics:   hit.Metrics,
			Plan:      plan.Calculate(syntheticCandle(hit.Metrics), plan.DirectionFor(hit.Metrics.Pressure), o.cfg.Plan),
			Score:     hit.Score,
			CreatedAt: now,
		})
	}

	o.logger.Info("1分钟早期扫描结束", zap.Int("signals", len(events)))

	return events, nil
}

func syntheticCandle(m signal.SymbolMetrics) exchange.Candle {
	return exchange.Candle{
		Timestamp: m.SignalTime,
		Open:      m.Price * (1 - earlyBandRatio),
		High:      m.Price * (1 + earlyBandRatio),
		Low:       m.Price * (1 - earlyBandRatio),
		Close:     m.Price,
		Volume:    m.SignalCandle.Volume,
	}
}
