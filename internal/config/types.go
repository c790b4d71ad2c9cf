package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了扫描系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	EarlyScan EarlyScanConfig `mapstructure:"early_scan"`
	Whale     WhaleConfig     `mapstructure:"whale"`
	TradePlan TradePlanConfig `mapstructure:"trade_plan"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string        `mapstructure:"name"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	UseSandbox bool          `mapstructure:"use_sandbox"`
	Retry      RetryConfig   `mapstructure:"retry"`
	RateLimit  RateConfig    `mapstructure:"rate_limit"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateConfig 限制对交易所的请求速率。
type RateConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig 控制交易所调用的熔断行为。
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// ScannerConfig 管理2小时周期扫描的参数。
type ScannerConfig struct {
	Timeframe        string        `mapstructure:"timeframe"`
	CandleLimit      int           `mapstructure:"candle_limit"`
	SettleCurrency   string        `mapstructure:"settle_currency"`
	Blacklist        []string      `mapstructure:"blacklist"`
	MoveThresholdPct float64       `mapstructure:"move_threshold_pct"`
	GradeWhitelist   []string      `mapstructure:"grade_whitelist"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
}

// EarlyScanConfig 管理1分钟早期扫描的参数。
type EarlyScanConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	TopSymbols      int           `mapstructure:"top_symbols"`
	CandleLimit     int           `mapstructure:"candle_limit"`
	MinPriceMovePct float64       `mapstructure:"min_price_move_pct"`
	MinVolumeRatio  float64       `mapstructure:"min_volume_ratio"`
	PlusVolumeRatio float64       `mapstructure:"plus_volume_ratio"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
}

// WhaleConfig 管理盘口鲸鱼检测的参数。
type WhaleConfig struct {
	BookDepth int `mapstructure:"book_depth"`
	TopLevels int `mapstructure:"top_levels"`
	MinScore  int `mapstructure:"min_score"`
}

// TradePlanConfig 控制入场/止损/止盈计算。
type TradePlanConfig struct {
	RiskMultiple1   float64 `mapstructure:"risk_multiple_1"`
	RiskMultiple2   float64 `mapstructure:"risk_multiple_2"`
	Capital         float64 `mapstructure:"capital"`
	CapitalFraction float64 `mapstructure:"capital_fraction"`
}

// TelegramConfig 控制信号通知推送。
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制两个扫描循环的节奏。
type SchedulerConfig struct {
	ScanInterval  time.Duration `mapstructure:"scan_interval"`
	ScanOffset    time.Duration `mapstructure:"scan_offset"`
	EarlyInterval time.Duration `mapstructure:"early_interval"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Exchange.RateLimit.RequestsPerSecond <= 0 {
		err = multierr.Append(err, errors.New("exchange.rate_limit.requests_per_second 必须大于0"))
	}
	if c.Exchange.RateLimit.Burst <= 0 {
		err = multierr.Append(err, errors.New("exchange.rate_limit.burst 必须大于0"))
	}
	if c.Exchange.Breaker.ConsecutiveFailures == 0 {
		err = multierr.Append(err, errors.New("exchange.breaker.consecutive_failures 必须大于0"))
	}
	if c.Exchange.Breaker.OpenTimeout <= 0 {
		err = multierr.Append(err, errors.New("exchange.breaker.open_timeout 必须大于0"))
	}
	if c.Scanner.Timeframe == "" {
		err = multierr.Append(err, errors.New("scanner.timeframe 不能为空"))
	}
	if c.Scanner.CandleLimit < 22 {
		err = multierr.Append(err, errors.New("scanner.candle_limit 不能小于22"))
	}
	if c.Scanner.SettleCurrency == "" {
		err = multierr.Append(err, errors.New("scanner.settle_currency 不能为空"))
	}
	if c.Scanner.MoveThresholdPct <= 0 {
		err = multierr.Append(err, errors.New("scanner.move_threshold_pct 必须大于0"))
	}
	if len(c.Scanner.GradeWhitelist) == 0 {
		err = multierr.Append(err, errors.New("scanner.grade_whitelist 至少包含一个等级"))
	}
	if c.Scanner.MaxConcurrency <= 0 {
		err = multierr.Append(err, errors.New("scanner.max_concurrency 必须大于0"))
	}
	if c.Scanner.CycleTimeout <= 0 {
		err = multierr.Append(err, errors.New("scanner.cycle_timeout 必须大于0"))
	}
	if c.EarlyScan.TopSymbols <= 0 {
		err = multierr.Append(err, errors.New("early_scan.top_symbols 必须大于0"))
	}
	if c.EarlyScan.CandleLimit < 40 {
		err = multierr.Append(err, errors.New("early_scan.candle_limit 不能小于40"))
	}
	if c.EarlyScan.MinPriceMovePct <= 0 {
		err = multierr.Append(err, errors.New("early_scan.min_price_move_pct 必须大于0"))
	}
	if c.EarlyScan.MinVolumeRatio <= 0 {
		err = multierr.Append(err, errors.New("early_scan.min_volume_ratio 必须大于0"))
	}
	if c.EarlyScan.PlusVolumeRatio < c.EarlyScan.MinVolumeRatio {
		err = multierr.Append(err, errors.New("early_scan.plus_volume_ratio 不能小于 min_volume_ratio"))
	}
	if c.EarlyScan.MaxConcurrency <= 0 {
		err = multierr.Append(err, errors.New("early_scan.max_concurrency 必须大于0"))
	}
	if c.EarlyScan.CycleTimeout <= 0 {
		err = multierr.Append(err, errors.New("early_scan.cycle_timeout 必须大于0"))
	}
	if c.Whale.BookDepth <= 0 {
		err = multierr.Append(err, errors.New("whale.book_depth 必须大于0"))
	}
	if c.Whale.TopLevels <= 0 || c.Whale.TopLevels > c.Whale.BookDepth {
		err = multierr.Append(err, errors.New("whale.top_levels 必须位于(0, book_depth]"))
	}
	if c.Whale.MinScore < 0 || c.Whale.MinScore > 8 {
		err = multierr.Append(err, errors.New("whale.min_score 必须位于[0,8]"))
	}
	if c.TradePlan.RiskMultiple1 <= 0 {
		err = multierr.Append(err, errors.New("trade_plan.risk_multiple_1 必须大于0"))
	}
	if c.TradePlan.RiskMultiple2 < c.TradePlan.RiskMultiple1 {
		err = multierr.Append(err, errors.New("trade_plan.risk_multiple_2 不能小于 risk_multiple_1"))
	}
	if c.TradePlan.Capital < 0 {
		err = multierr.Append(err, errors.New("trade_plan.capital 不能为负"))
	}
	if c.TradePlan.CapitalFraction <= 0 || c.TradePlan.CapitalFraction > 1 {
		err = multierr.Append(err, errors.New("trade_plan.capital_fraction 必须位于(0,1]"))
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		err = multierr.Append(err, errors.New("telegram.enabled 时必须配置 token"))
	}
	if c.Telegram.Enabled && c.Telegram.ChatID == 0 {
		err = multierr.Append(err, errors.New("telegram.enabled 时必须配置 chat_id"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.ScanInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.scan_interval 必须大于0"))
	}
	if c.Scheduler.ScanOffset < 0 || c.Scheduler.ScanOffset >= c.Scheduler.ScanInterval {
		err = multierr.Append(err, errors.New("scheduler.scan_offset 必须位于[0, scan_interval)"))
	}
	if c.Scheduler.EarlyInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.early_interval 必须大于0"))
	}
	if c.Scanner.CycleTimeout > c.Scheduler.ScanInterval {
		err = multierr.Append(err, errors.New("scanner.cycle_timeout 不应大于 scheduler.scan_interval"))
	}
	if c.EarlyScan.CycleTimeout > c.Scheduler.EarlyInterval {
		err = multierr.Append(err, errors.New("early_scan.cycle_timeout 不应大于 scheduler.early_interval"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
