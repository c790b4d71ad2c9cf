package universe

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/patrick1923/crypto-scanner/internal/exchange"
)

type fakeMarketSource struct {
	symbols []string
	tickers map[string]exchange.Ticker
	err     error
}

func (f *fakeMarketSource) ListSymbols(ctx context.Context) ([]string, error) {
	return f.symbols, f.err
}

func (f *fakeMarketSource) FetchTickers(ctx context.Context, symbols []string) (map[string]exchange.Ticker, error) {
	return f.tickers, f.err
}

func TestList_FiltersSettleAndBlacklist(t *testing.T) {
	source := &fakeMarketSource{symbols: []string{
		"BTC/USDT:USDT",
		"ETH/USDT:USDT",
		"BTC/USD:BTC",
		"ETH/USDC:USDC",
		"BTCST/USDT:USDT",
	}}

	p := NewProvider(Config{Blacklist: []string{"BTCST/USDT:USDT"}}, source, nil)

	got, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestList_SourceFailure(t *testing.T) {
	p := NewProvider(Config{}, &fakeMarketSource{err: errors.New("down")}, nil)

	if _, err := p.List(context.Background()); err == nil {
		t.Fatalf("expected error when listing fails")
	}
}

func TestTopByVolume(t *testing.T) {
	source := &fakeMarketSource{tickers: map[string]exchange.Ticker{
		"AAA/USDT:USDT": {QuoteVolume: 100},
		"BBB/USDT:USDT": {QuoteVolume: 300},
		"CCC/USDT:USDT": {QuoteVolume: 200},
		"DDD/USD:BTC":   {QuoteVolume: 999},
		"EEE/USDT:USDT": {QuoteVolume: 50},
	}}

	p := NewProvider(Config{}, source, nil)

	got, err := p.TopByVolume(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"BBB/USDT:USDT", "CCC/USDT:USDT", "AAA/USDT:USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTopByVolume_TieBreaksBySymbol(t *testing.T) {
	source := &fakeMarketSource{tickers: map[string]exchange.Ticker{
		"BBB/USDT:USDT": {QuoteVolume: 100},
		"AAA/USDT:USDT": {QuoteVolume: 100},
	}}

	p := NewProvider(Config{}, source, nil)

	got, err := p.TopByVolume(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"AAA/USDT:USDT", "BBB/USDT:USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTopByVolume_ZeroN(t *testing.T) {
	p := NewProvider(Config{}, &fakeMarketSource{}, nil)

	got, err := p.TopByVolume(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for n=0, got %v", got)
	}
}
