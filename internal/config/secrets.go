package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Secrets are deploy-time credentials and channel identities. They come from
// the environment (optionally a .env file), never from the settings document,
// so a dashboard config POST can never leak or change them.
type Secrets struct {
	ExchangeAPIKey    string
	ExchangeAPISecret string

	// Messaging channel identities; configuration, not engine logic.
	SourceChannel string
	NotifyChat    string
	BotToken      string
}

// LoadSecrets reads the environment, loading .env first if present.
func LoadSecrets() (*Secrets, error) {
	_ = godotenv.Load()

	s := &Secrets{
		ExchangeAPIKey:    os.Getenv("BINANCE_API_KEY"),
		ExchangeAPISecret: os.Getenv("BINANCE_API_SECRET"),
		SourceChannel:     os.Getenv("TG_CHANNEL_ID_OR_USERNAME"),
		NotifyChat:        os.Getenv("TG_NOTIFY_CHAT_ID"),
		BotToken:          os.Getenv("TG_BOT_TOKEN"),
	}
	return s, nil
}

// RequireExchange fails when live trading credentials are missing.
func (s *Secrets) RequireExchange() error {
	if s.ExchangeAPIKey == "" || s.ExchangeAPISecret == "" {
		return fmt.Errorf("BINANCE_API_KEY / BINANCE_API_SECRET not set")
	}
	return nil
}
