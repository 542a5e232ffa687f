package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/gateway"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/pricefeed"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	PriceFeed struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		ChainID      string `yaml:"chain_id"`
	} `yaml:"pricefeed"`
	Gateway struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		APIKey       string `yaml:"api_key"`
	} `yaml:"gateway"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	_ = godotenv.Load()
	if v := os.Getenv("TRADER_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: check_gateway <token-address>")
		os.Exit(1)
	}
	token := os.Args[1]

	fmt.Printf("Testing Gateway Interaction...\n")
	fmt.Printf("Gateway: %s\n", cfg.Gateway.RESTEndpoint)
	fmt.Printf("Price feed: %s\n", cfg.PriceFeed.RESTEndpoint)

	ctx := context.Background()

	// 1. Check Price Feed (public)
	feed := pricefeed.NewClient(cfg.PriceFeed.RESTEndpoint, cfg.PriceFeed.WSEndpoint, cfg.PriceFeed.ChainID, zap.NewNop())
	price, err := feed.GetPrice(ctx, token)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Price: native=%.9f usd=%.6f\n", price.PriceNative, price.PriceUSD)
	}

	meta, err := feed.GetTokenMeta(ctx, token)
	if err != nil {
		fmt.Printf("❌ Failed to get token meta: %v\n", err)
	} else {
		fmt.Printf("✅ Token: %s (%s), decimals=%d\n", meta.Name, meta.Symbol, meta.Decimals)
	}

	// 2. Check Gateway (private)
	gw := gateway.NewClient(cfg.Gateway.RESTEndpoint, cfg.Gateway.APIKey)
	wallet, err := gw.WalletBalance(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get wallet balance: %v\n", err)
	} else {
		fmt.Printf("✅ Wallet balance: %f\n", wallet)
	}

	balance, err := gw.TokenBalance(ctx, token)
	if err != nil {
		fmt.Printf("❌ Failed to get token balance: %v\n", err)
	} else {
		fmt.Printf("✅ Token balance: %f\n", balance)
	}
}
