package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/patrick1923/crypto-scanner/internal/config"
	"github.com/patrick1923/crypto-scanner/internal/signal"
)

// Sink 接收格式化后的信号通知。发送失败不得影响扫描结果。
type Sink interface {
	Notify(event signal.Event, sourceTag string)
}

// NewSink 根据配置返回 Telegram 通知器，未启用时返回空实现。
func NewSink(cfg config.TelegramConfig, logger *zap.Logger) (Sink, error) {
	if !cfg.Enabled {
		return NopSink{}, nil
	}
	return NewTelegram(cfg, logger)
}

// NopSink 丢弃所有通知。
type NopSink struct{}

// Notify 实现 Sink。
func (NopSink) Notify(signal.Event, string) {}

// Telegram 将信号推送到配置的聊天频道。
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewTelegram 创建 Telegram 通知器。
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram Bot 失败: %w", err)
	}

	return &Telegram{
		bot:    bot,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// Notify 发送单条信号消息，失败仅记录日志。
func (t *Telegram) Notify(event signal.Event, sourceTag string) {
	msg := tgbotapi.NewMessage(t.chatID, FormatMessage(event, sourceTag))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("Telegram 通知发送失败",
			zap.String("symbol", event.Metrics.Symbol),
			zap.String("source", sourceTag),
			zap.Error(err),
		)
		return
	}

	t.logger.Debug("Telegram 通知已发送",
		zap.String("symbol", event.Metrics.Symbol),
		zap.String("source", sourceTag),
	)
}

// FormatMessage 生成 HTML 格式的信号文本。
func FormatMessage(event signal.Event, sourceTag string) string {
	m := event.Metrics
	p := event.Plan

	direction := "BUY / LONG"
	if p.Direction == signal.DirectionShort {
		direction = "SELL / SHORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📢 <b>%s Signal</b> [%s]\n\n", m.Symbol, sourceTag)
	fmt.Fprintf(&b, "Grade: %s\n", m.Grade)
	fmt.Fprintf(&b, "Direction: %s\n", direction)
	if event.Whale != nil {
		fmt.Fprintf(&b, "Whale Score: %d\n", event.Whale.Score)
	}
	fmt.Fprintf(&b, "\nEntry: %.8f\nSL: %.8f\nTP1: %.8f\nTP2: %.8f\n", p.EntryPrice, p.StopLoss, p.TakeProfit1, p.TakeProfit2)
	fmt.Fprintf(&b, "\nAnalysis: %s", m.Analysis)

	return b.String()
}

// SourceTag 由信号来源与类型组装通知标签，如 "2H PUMP"、"EP"。
func SourceTag(event signal.Event) string {
	if event.Origin == signal.OriginOneMinute {
		return "EP"
	}
	return fmt.Sprintf("2H %s", strings.ToUpper(event.Type()))
}
