package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "scanner"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")
	v.SetDefault("exchange.rate_limit.requests_per_second", 20)
	v.SetDefault("exchange.rate_limit.burst", 40)
	v.SetDefault("exchange.breaker.consecutive_failures", 8)
	v.SetDefault("exchange.breaker.open_timeout", "30s")

	v.SetDefault("scanner.timeframe", "2h")
	v.SetDefault("scanner.candle_limit", 22)
	v.SetDefault("scanner.settle_currency", "USDT")
	v.SetDefault("scanner.blacklist", []string{"BTCST/USDT:USDT"})
	v.SetDefault("scanner.move_threshold_pct", 2.0)
	v.SetDefault("scanner.grade_whitelist", []string{"A+ (Explosive)", "A (Prime)", "A (High Volume)"})
	v.SetDefault("scanner.max_concurrency", 16)
	v.SetDefault("scanner.cycle_timeout", "10m")

	v.SetDefault("early_scan.enabled", true)
	v.SetDefault("early_scan.top_symbols", 60)
	v.SetDefault("early_scan.candle_limit", 40)
	v.SetDefault("early_scan.min_price_move_pct", 0.35)
	v.SetDefault("early_scan.min_volume_ratio", 2.0)
	v.SetDefault("early_scan.plus_volume_ratio", 3.5)
	v.SetDefault("early_scan.max_concurrency", 12)
	v.SetDefault("early_scan.cycle_timeout", "2m")

	v.SetDefault("whale.book_depth", 10)
	v.SetDefault("whale.top_levels", 5)
	v.SetDefault("whale.min_score", 1)

	v.SetDefault("trade_plan.risk_multiple_1", 3.0)
	v.SetDefault("trade_plan.risk_multiple_2", 5.0)
	v.SetDefault("trade_plan.capital", 0)
	v.SetDefault("trade_plan.capital_fraction", 0.1)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("database.path", "data/scanner.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.scan_interval", "2h")
	v.SetDefault("scheduler.scan_offset", "30m")
	v.SetDefault("scheduler.early_interval", "5m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
