package whale

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

const aggressionEpsilon = 1e-9

// BookSource 提供盘口与行情快照。
type BookSource interface {
	FetchOrderBook(ctx context.Context, symbol string, depth int) (exchange.OrderBookSnapshot, error)
	FetchTicker(ctx context.Context, symbol string) (exchange.Ticker, error)
}

// Config 控制鲸鱼检测的盘口深度。
type Config struct {
	BookDepth int
	TopLevels int
}

// Analyzer 基于盘口失衡、挂单墙、扫单与主动成交量给出鲸鱼评分。
type Analyzer struct {
	cfg    Config
	source BookSource
	logger *zap.Logger
}

// NewAnalyzer 创建鲸鱼检测器。
func NewAnalyzer(cfg Config, source BookSource, logger *zap.Logger) *Analyzer {
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 10
	}
	if cfg.TopLevels <= 0 || cfg.TopLevels > cfg.BookDepth {
		cfg.TopLevels = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, source: source, logger: logger}
}

// Check 抓取盘口与行情并评分。任何抓取失败都返回空快照与0分，不中断批次。
func (a *Analyzer) Check(ctx context.Context, symbol string) signal.WhaleSnapshot {
	book, err := a.source.FetchOrderBook(ctx, symbol, a.cfg.BookDepth)
	if err != nil {
		a.logger.Warn("盘口快照获取失败，鲸鱼评分记0",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return signal.WhaleSnapshot{Imbalance: 1.0}
	}

	ticker, err := a.source.FetchTicker(ctx, symbol)
	if err != nil {
		a.logger.Warn("行情快照获取失败，鲸鱼评分记0",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return signal.WhaleSnapshot{Imbalance: 1.0}
	}

	return Score(book, ticker, a.cfg.TopLevels)
}

// Score 为纯计算部分：由盘口与行情快照推导8项布尔检查并计数。
func Score(book exchange.OrderBookSnapshot, ticker exchange.Ticker, topLevels int) signal.WhaleSnapshot {
	if topLevels <= 0 {
		topLevels = 5
	}

	topBids := topOfBook(book.Bids, topLevels)
	topAsks := topOfBook(book.Asks, topLevels)

	bidVol := sumAmounts(topBids)
	askVol := sumAmounts(topAsks)

	// 任一侧为空时按均衡处理，不作为错误。
	imbalance := 1.0
	if bidVol > 0 && askVol > 0 {
		imbalance = bidVol / askVol
	}

	snap := signal.WhaleSnapshot{Imbalance: imbalance}
	snap.BidImbalance = imbalance >= 3.0
	snap.AskImbalance = imbalance <= 1.0/3.0

	if len(topBids) > 0 {
		avgBid := bidVol / float64(len(topBids))
		snap.BidWall = topBids[0].Amount >= avgBid*4
	}
	if len(topAsks) > 0 {
		avgAsk := askVol / float64(len(topAsks))
		snap.AskWall = topAsks[0].Amount >= avgAsk*4
	}

	// 扫单判定要求最新价与双边最优报价同时存在。
	if ticker.Last > 0 && ticker.Bid > 0 && ticker.Ask > 0 {
		if ticker.Last > ticker.Ask {
			snap.SweepBuy = true
		} else if ticker.Last < ticker.Bid {
			snap.SweepSell = true
		}
	}

	if ticker.BuyVolume > 0 || ticker.SellVolume > 0 {
		aggression := ticker.BuyVolume / (ticker.SellVolume + aggressionEpsilon)
		snap.AggressiveBuy = aggression >= 2.0
		snap.AggressiveSell = aggression <= 0.5
	}

	snap.Score = countFlags(snap)
	return snap
}

func topOfBook(levels []exchange.OrderBookLevel, n int) []exchange.OrderBookLevel {
	if len(levels) <= n {
		return levels
	}
	return levels[:n]
}

func sumAmounts(levels []exchange.OrderBookLevel) float64 {
	total := 0.0
	for _, level := range levels {
		total += level.Amount
	}
	return total
}

func countFlags(s signal.WhaleSnapshot) int {
	flags := []bool{
		s.BidImbalance,
		s.AskImbalance,
		s.BidWall,
		s.AskWall,
		s.SweepBuy,
		s.SweepSell,
		s.AggressiveBuy,
		s.AggressiveSell,
	}
	count := 0
	for _, f := range flags {
		if f {
			count++
		}
	}
	return count
}
