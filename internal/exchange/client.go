package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/patrick1923/crypto-scanner/internal/config"
)

// Client 负责与交易所交互，单个实例服务整个扫描批次的所有交易对。
// 所有请求共享同一限速器与熔断器，避免批量并发压垮行情接口。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker

	marketsMu     sync.Mutex
	marketsLoaded bool
	symbols       []string
}

// NewClient 构造 Binance USDⓈ-M 行情客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 40
	}

	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 8
	}
	openTimeout := cfg.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("交易所熔断器状态变化",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		breaker:  breaker,
	}, nil
}

// ListSymbols 返回交易所全部交易对符号，按字典序排列。
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out, nil
}

// FetchCandles 获取指定交易对与周期的K线数据。
// 返回的K线数量不足 limit 时报 ErrInsufficientHistory。
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(raw) < limit {
		return nil, fmt.Errorf("%w: %s %s 仅有 %d/%d 根", ErrInsufficientHistory, symbol, timeframe, len(raw), limit)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchOrderBook 获取订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 10
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := c.exchange.FetchOrderBook(
			symbol,
			ccxt.WithFetchOrderBookLimit(int64(depth)),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(symbol, raw), nil
}

// FetchTicker 获取单个交易对的行情快照。
func (c *Client) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		ticker, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}

		raw = ticker
		return nil
	})
	if err != nil {
		return Ticker{}, err
	}

	return convertTicker(symbol, raw), nil
}

// FetchTickers 批量获取行情快照。symbols 为空时返回全市场。
func (c *Client) FetchTickers(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	var raw ccxt.Tickers
	err := c.callWithRetry(ctx, "fetch_tickers", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		var (
			tickers  ccxt.Tickers
			fetchErr error
		)
		if len(symbols) > 0 {
			tickers, fetchErr = c.exchange.FetchTickers(ccxt.WithFetchTickersSymbols(symbols))
		} else {
			tickers, fetchErr = c.exchange.FetchTickers()
		}
		if fetchErr != nil {
			return fetchErr
		}

		raw = tickers
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]Ticker, len(raw.Tickers))
	for symbol, ticker := range raw.Tickers {
		out[symbol] = convertTicker(symbol, ticker)
	}

	return out, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	var symbols []string
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		markets, err := c.exchange.LoadMarkets()
		if err != nil {
			return err
		}
		symbols = symbols[:0]
		for symbol := range markets {
			symbols = append(symbols, symbol)
		}
		return nil
	})
	if loadErr != nil {
		return loadErr
	}

	sort.Strings(symbols)
	c.symbols = symbols
	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.Int("symbols", len(symbols)))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		attempt++
		start := time.Now()
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Warn("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Debug("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}

	return err, IsRetryable(err)
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) OrderBookSnapshot {
	bids := make([]OrderBookLevel, 0, len(ob.Bids))
	for _, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		bids = append(bids, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	asks := make([]OrderBookLevel, 0, len(ob.Asks))
	for _, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		asks = append(asks, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	var ts time.Time
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	var nonce int64
	if ob.Nonce != nil {
		nonce = *ob.Nonce
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
		Nonce:     nonce,
	}
}

func convertTicker(symbol string, t ccxt.Ticker) Ticker {
	var ts time.Time
	if t.Timestamp != nil {
		ts = time.UnixMilli(*t.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return Ticker{
		Symbol:      symbol,
		Last:        derefFloat(t.Last),
		Bid:         derefFloat(t.Bid),
		Ask:         derefFloat(t.Ask),
		QuoteVolume: derefFloat(t.QuoteVolume),
		BuyVolume:   infoFloat(t.Info, "buyVol"),
		SellVolume:  infoFloat(t.Info, "sellVol"),
		Timestamp:   ts,
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// infoFloat 从 ccxt 的原始 info 字段解析数值，Binance 多以字符串返回。
func infoFloat(info map[string]interface{}, key string) float64 {
	if info == nil {
		return 0
	}
	raw, ok := info[key]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
