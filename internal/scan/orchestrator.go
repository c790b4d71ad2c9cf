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

// volumePercentile 为24小时成交额过滤分位，约取批次前四分之一。
const volumePercentile = 0.75

// ErrCycleInFlight 表示上一轮扫描尚未结束，本次触发被跳过。
var ErrCycleInFlight = errors.New("scan cycle already in flight")

// MarketData 为扫描所需的行情能力。
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error)
	FetchTickers(ctx context.Context, symbols []string) (map[string]exchange.Ticker, error)
}

// Universe 提供扫描符号集合。
type Universe interface {
	List(ctx context.Context) ([]string, error)
	TopByVolume(ctx context.Context, n int) ([]string, error)
}

// WhaleChecker 为候选信号做盘口鲸鱼确认。
type WhaleChecker interface {
	Check(ctx context.Context, symbol string) signal.WhaleSnapshot
}

// Config 控制一轮2小时扫描的行为。
type Config struct {
	Timeframe      string
	CandleLimit    int
	GradeWhitelist []string
	MaxConcurrency int
	CycleTimeout   time.Duration
	WhaleMinScore  int
	Plan           plan.Config
}

// Orchestrator 驱动一轮完整的2小时信号扫描。
type Orchestrator struct {
	cfg       Config
	universe  Universe
	market    MarketData
	breakout  *analyzer.Breakout
	whale     WhaleChecker
	logger    *zap.Logger
	whitelist map[signal.Grade]struct{}

	runMu sync.Mutex
}

// NewOrchestrator 创建2小时扫描编排器。
func NewOrchestrator(cfg Config, universe Universe, market MarketData, breakout *analyzer.Breakout, whale WhaleChecker, logger *zap.Logger) *Orchestrator {
	if cfg.Timeframe == "" {
		cfg.Timeframe = exchange.TimeframeScan
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 22
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	whitelist := make(map[signal.Grade]struct{}, len(cfg.GradeWhitelist))
	for _, grade := range cfg.GradeWhitelist {
		whitelist[signal.Grade(grade)] = struct{}{}
	}

	return &Orchestrator{
		cfg:       cfg,
		universe:  universe,
		market:    market,
		breakout:  breakout,
		whale:     whale,
		logger:    logger,
		whitelist: whitelist,
	}
}

// Run 执行一轮扫描并返回排序后的信号。
// 单个交易对的失败只影响该交易对；符号枚举与批量行情失败对整轮致命。
func (o *Orchestrator) Run(ctx context.Context) ([]signal.Event, error) {
	if !o.runMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer o.runMu.Unlock()

	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	started := time.Now()

	symbols, err := o.universe.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取扫描符号集失败: %w", err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	o.logger.Info("开始2小时全市场扫描",
		zap.Int("symbols", len(symbols)),
		zap.String("timeframe", o.cfg.Timeframe),
	)

	metrics := o.analyzeAll(ctx, symbols)
	if len(metrics) == 0 {
		o.logger.Info("本轮无任何有效分析结果")
		return nil, nil
	}

	// 同步屏障：分位阈值定义在整个批次之上，必须等全部分析完成后计算。
	if err := o.annotateVolume(ctx, metrics); err != nil {
		return nil, fmt.Errorf("24小时成交额汇总失败: %w", err)
	}

	candidates := o.filter(metrics)
	o.logger.Info("等级与成交额过滤完成",
		zap.Int("analyzed", len(metrics)),
		zap.Int("candidates", len(candidates)),
	)

	events := o.confirm(ctx, candidates)
	sortEvents(events)

	o.logger.Info("2小时扫描结束",
		zap.Int("signals", len(events)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return events, nil
}

// analyzeAll 并发拉取并分析所有符号，单个失败静默跳过。
func (o *Orchestrator) analyzeAll(ctx context.Context, symbols []string) []signal.SymbolMetrics {
	results := make([]*signal.SymbolMetrics, len(symbols))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.MaxConcurrency)

	for i, symbol := range symbols {
		group.Go(func() error {
			candles, err := o.market.FetchCandles(groupCtx, symbol, o.cfg.Timeframe, o.cfg.CandleLimit)
			if err != nil {
				if !errors.Is(err, exchange.ErrInsufficientHistory) {
					o.logger.Debug("K线拉取失败，跳过该交易对",
						zap.String("symbol", symbol),
						zap.Error(err),
					)
				}
				return nil
			}

			m, err := o.breakout.Analyze(symbol, candles)
			if err != nil {
				return nil
			}

			results[i] = &m
			return nil
		})
	}

	_ = group.Wait()

	metrics := make([]signal.SymbolMetrics, 0, len(results))
	for _, m := range results {
		if m != nil {
			metrics = append(metrics, *m)
		}
	}
	return metrics
}

// annotateVolume 批量拉取行情，按75分位标记高成交额交易对。
func (o *Orchestrator) annotateVolume(ctx context.Context, metrics []signal.SymbolMetrics) error {
	symbols := make([]string, 0, len(metrics))
	for _, m := range metrics {
		symbols = append(symbols, m.Symbol)
	}

	tickers, err := o.market.FetchTickers(ctx, symbols)
	if err != nil {
		return err
	}

	volumes := make([]float64, 0, len(metrics))
	for i := range metrics {
		if ticker, ok := tickers[metrics[i].Symbol]; ok {
			metrics[i].QuoteVolume24h = ticker.QuoteVolume
		}
		volumes = append(volumes, metrics[i].QuoteVolume24h)
	}

	// 阈值为严格大于：恰好落在分位值上的交易对不计入高成交额。
	threshold := quantile(volumes, volumePercentile)
	for i := range metrics {
		metrics[i].HighVolume24h = metrics[i].QuoteVolume24h > threshold
	}

	o.logger.Debug("成交额分位计算完成",
		zap.Float64("threshold", threshold),
		zap.Int("batch", len(volumes)),
	)

	return nil
}

func (o *Orchestrator) filter(metrics []signal.SymbolMetrics) []signal.SymbolMetrics {
	out := make([]signal.SymbolMetrics, 0, len(metrics))
	for _, m := range metrics {
		if !m.Qualified() || !m.HighVolume24h {
			continue
		}
		if _, ok := o.whitelist[m.Grade]; !ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// confirm 对候选做鲸鱼确认并生成交易计划。确认彼此独立，可并发执行。
func (o *Orchestrator) confirm(ctx context.Context, candidates []signal.SymbolMetrics) []signal.Event {
	events := make([]*signal.Event, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.MaxConcurrency)

	now := time.Now().UTC()

	for i, m := range candidates {
		group.Go(func() error {
			snap := o.whale.Check(groupCtx, m.Symbol)
			if snap.Score < o.cfg.WhaleMinScore {
				o.logger.Debug("鲸鱼评分不足，剔除候选",
					zap.String("symbol", m.Symbol),
					zap.Int("score", snap.Score),
					zap.Int("min", o.cfg.WhaleMinScore),
				)
				return nil
			}

			m.Analysis = fmt.Sprintf("%s | WHALE x%d", m.Analysis, snap.Score)

			direction := plan.DirectionFor(m.Pressure)
			events[i] = &signal.Event{
				Origin:    signal.OriginTwoHour,
				Metrics:   m,
				Whale:     &snap,
				Plan:      plan.Calculate(m.SignalCandle, direction, o.cfg.Plan),
				Score:     m.Confidence,
				CreatedAt: now,
			}
			return nil
		})
	}

	_ = group.Wait()

	out := make([]signal.Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// sortEvents 先按等级权重再按分值降序，末位按符号字典序保证稳定输出。
func sortEvents(events []signal.Event) {
	sort.Slice(events, func(i, j int) bool {
		ri, rj := events[i].Metrics.Grade.Rank(), events[j].Metrics.Grade.Rank()
		if ri != rj {
			return ri > rj
		}
		if events[i].Score != events[j].Score {
			return events[i].Score > events[j].Score
		}
		return events[i].Metrics.Symbol < events[j].Metrics.Symbol
	})
}
