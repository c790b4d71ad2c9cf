package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrick1923/crypto-scanner/internal/analyzer"
	"github.com/patrick1923/crypto-scanner/internal/config"
	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/notify"
	"github.com/patrick1923/crypto-scanner/internal/plan"
	"github.com/patrick1923/crypto-scanner/internal/scan"
	"github.com/patrick1923/crypto-scanner/internal/signal"
	"github.com/patrick1923/crypto-scanner/internal/store"
	"github.com/patrick1923/crypto-scanner/internal/universe"
	"github.com/patrick1923/crypto-scanner/internal/whale"
)

// App 聚合核心依赖并驱动两个扫描循环的生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 初始化管线并阻塞运行，直到上下文取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("扫描系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("timeframe", a.cfg.Scanner.Timeframe),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化行情客户端失败: %w", err)
	}

	provider := universe.NewProvider(universe.Config{
		SettleCurrency: a.cfg.Scanner.SettleCurrency,
		Blacklist:      a.cfg.Scanner.Blacklist,
	}, client, a.logger)

	planCfg := plan.Config{
		RiskMultiple1:   a.cfg.TradePlan.RiskMultiple1,
		RiskMultiple2:   a.cfg.TradePlan.RiskMultiple2,
		Capital:         a.cfg.TradePlan.Capital,
		CapitalFraction: a.cfg.TradePlan.CapitalFraction,
	}

	breakout := analyzer.NewBreakout(analyzer.BreakoutConfig{
		MoveThresholdPct: a.cfg.Scanner.MoveThresholdPct,
	})

	whaleAnalyzer := whale.NewAnalyzer(whale.Config{
		BookDepth: a.cfg.Whale.BookDepth,
		TopLevels: a.cfg.Whale.TopLevels,
	}, client, a.logger)

	orch := scan.NewOrchestrator(scan.Config{
		Timeframe:      a.cfg.Scanner.Timeframe,
		CandleLimit:    a.cfg.Scanner.CandleLimit,
		GradeWhitelist: a.cfg.Scanner.GradeWhitelist,
		MaxConcurrency: a.cfg.Scanner.MaxConcurrency,
		CycleTimeout:   a.cfg.Scanner.CycleTimeout,
		WhaleMinScore:  a.cfg.Whale.MinScore,
		Plan:           planCfg,
	}, provider, client, breakout, whaleAnalyzer, a.logger)

	earlyAnalyzer := analyzer.NewEarly(analyzer.EarlyConfig{
		MinPriceMovePct: a.cfg.EarlyScan.MinPriceMovePct,
		MinVolumeRatio:  a.cfg.EarlyScan.MinVolumeRatio,
		PlusVolumeRatio: a.cfg.EarlyScan.PlusVolumeRatio,
	})

	earlyOrch := scan.NewEarlyOrchestrator(scan.EarlyConfig{
		TopSymbols:     a.cfg.EarlyScan.TopSymbols,
		CandleLimit:    a.cfg.EarlyScan.CandleLimit,
		MaxConcurrency: a.cfg.EarlyScan.MaxConcurrency,
		CycleTimeout:   a.cfg.EarlyScan.CycleTimeout,
		Plan:           planCfg,
	}, provider, client, earlyAnalyzer, a.logger)

	repo, err := store.NewSignalRepository(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化信号仓库失败: %w", err)
	}

	sink, err := notify.NewSink(a.cfg.Telegram, a.logger)
	if err != nil {
		return fmt.Errorf("初始化通知通道失败: %w", err)
	}

	a.runScan(ctx, orch, repo, sink)

	scanTimer := time.NewTimer(a.untilNextScan(time.Now()))
	defer scanTimer.Stop()

	earlyInterval := a.cfg.Scheduler.EarlyInterval
	if earlyInterval <= 0 {
		earlyInterval = 5 * time.Minute
	}
	earlyTicker := time.NewTicker(earlyInterval)
	defer earlyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-scanTimer.C:
			a.runScan(ctx, orch, repo, sink)
			scanTimer.Reset(a.untilNextScan(time.Now()))
		case <-earlyTicker.C:
			if a.cfg.EarlyScan.Enabled {
				a.runEarlyScan(ctx, earlyOrch, repo, sink)
			}
		}
	}
}

func (a *App) runScan(ctx context.Context, orch *scan.Orchestrator, repo *store.SignalRepository, sink notify.Sink) {
	events, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, scan.ErrCycleInFlight) {
			a.logger.Warn("上一轮2小时扫描仍在执行，本次触发跳过")
			return
		}
		a.logger.Error("2小时扫描执行失败", zap.Error(err))
		return
	}

	a.dispatch(ctx, events, repo, sink)
}

func (a *App) runEarlyScan(ctx context.Context, orch *scan.EarlyOrchestrator, repo *store.SignalRepository, sink notify.Sink) {
	events, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, scan.ErrCycleInFlight) {
			a.logger.Warn("上一轮早期扫描仍在执行，本次触发跳过")
			return
		}
		a.logger.Error("早期扫描执行失败", zap.Error(err))
		return
	}

	a.dispatch(ctx, events, repo, sink)
}

// dispatch 持久化并推送信号。协作方失败只记录日志，不影响已计算的结果。
func (a *App) dispatch(ctx context.Context, events []signal.Event, repo *store.SignalRepository, sink notify.Sink) {
	if len(events) == 0 {
		return
	}

	cycleTime := time.Now().UTC()
	if err := repo.Append(ctx, events, cycleTime); err != nil {
		a.logger.Error("信号持久化失败", zap.Int("count", len(events)), zap.Error(err))
	}

	for _, event := range events {
		sink.Notify(event, notify.SourceTag(event))
	}
}

// untilNextScan 计算距下一个对齐扫描时点的等待时长。
// 扫描时点按 scan_interval 对齐并附加 scan_offset，例如每2小时的第30分钟。
func (a *App) untilNextScan(now time.Time) time.Duration {
	interval := a.cfg.Scheduler.ScanInterval
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	offset := a.cfg.Scheduler.ScanOffset

	next := now.UTC().Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next.Sub(now)
}
