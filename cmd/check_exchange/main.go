package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vitos/tg_signal_trader/internal/config"
	"github.com/vitos/tg_signal_trader/internal/infrastructure/exchange"
)

func main() {
	settings, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Printf("Failed to load secrets: %v\n", err)
		os.Exit(1)
	}
	if err := secrets.RequireExchange(); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	baseURL := exchange.BinanceBaseURL
	if settings.UseTestnet {
		baseURL = exchange.BinanceTestnetURL
	}
	fmt.Printf("Testing Binance interaction...\n")
	fmt.Printf("Endpoint: %s\n", baseURL)
	fmt.Printf("API Key: %s...\n", secrets.ExchangeAPIKey[:4])

	adapter := exchange.NewBinanceAdapter(secrets.ExchangeAPIKey, secrets.ExchangeAPISecret, baseURL)
	ctx := context.Background()

	// Public endpoint
	price, err := adapter.GetPrice(ctx, "BTC"+settings.QuoteAsset)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current price (BTC%s): %f\n", settings.QuoteAsset, price)
	}

	// Signed endpoint
	free, err := adapter.GetFreeBalance(ctx, settings.QuoteAsset)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ Free balance: %f %s\n", free, settings.QuoteAsset)
	}

	instruments, err := adapter.GetInstruments(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to list instruments: %v\n", err)
	} else {
		fmt.Printf("✅ Instruments: %d symbols\n", len(instruments))
	}
}
