package universe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
)

// MarketSource 提供交易对清单与批量行情。
type MarketSource interface {
	ListSymbols(ctx context.Context) ([]string, error)
	FetchTickers(ctx context.Context, symbols []string) (map[string]exchange.Ticker, error)
}

// Config 控制符号筛选规则。
type Config struct {
	// SettleCurrency 为永续合约结算币种，符号以 ":USDT" 之类的后缀标识。
	SettleCurrency string
	Blacklist      []string
}

// Provider 枚举可交易的永续合约符号。
type Provider struct {
	cfg       Config
	source    MarketSource
	logger    *zap.Logger
	blacklist map[string]struct{}
}

// NewProvider 创建符号提供者。
func NewProvider(cfg Config, source MarketSource, logger *zap.Logger) *Provider {
	if cfg.SettleCurrency == "" {
		cfg.SettleCurrency = "USDT"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, symbol := range cfg.Blacklist {
		blacklist[symbol] = struct{}{}
	}

	return &Provider{
		cfg:       cfg,
		source:    source,
		logger:    logger,
		blacklist: blacklist,
	}
}

// List 返回全部符合结算币种且不在黑名单内的永续合约符号。
func (p *Provider) List(ctx context.Context) ([]string, error) {
	symbols, err := p.source.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("枚举交易对失败: %w", err)
	}

	suffix := ":" + strings.ToUpper(p.cfg.SettleCurrency)
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if !strings.HasSuffix(symbol, suffix) {
			continue
		}
		if _, blocked := p.blacklist[symbol]; blocked {
			continue
		}
		out = append(out, symbol)
	}

	p.logger.Debug("符号清单筛选完成",
		zap.Int("total", len(symbols)),
		zap.Int("eligible", len(out)),
	)

	return out, nil
}

// TopByVolume 按24小时计价成交额降序返回前 n 个符号。
func (p *Provider) TopByVolume(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	tickers, err := p.source.FetchTickers(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("批量行情获取失败: %w", err)
	}

	suffix := ":" + strings.ToUpper(p.cfg.SettleCurrency)
	type ranked struct {
		symbol string
		volume float64
	}

	rows := make([]ranked, 0, len(tickers))
	for symbol, ticker := range tickers {
		if !strings.HasSuffix(symbol, suffix) {
			continue
		}
		if _, blocked := p.blacklist[symbol]; blocked {
			continue
		}
		rows = append(rows, ranked{symbol: symbol, volume: ticker.QuoteVolume})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].volume == rows[j].volume {
			return rows[i].symbol < rows[j].symbol
		}
		return rows[i].volume > rows[j].volume
	})

	if len(rows) > n {
		rows = rows[:n]
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.symbol)
	}

	return out, nil
}
