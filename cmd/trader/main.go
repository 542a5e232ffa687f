package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/smalltimedevs/aramid-trader/internal/domain"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/advice"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/gateway"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/logger"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/notify"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/pricefeed"
	"github.com/smalltimedevs/aramid-trader/internal/infrastructure/storage"
	"github.com/smalltimedevs/aramid-trader/internal/usecase"
	"github.com/smalltimedevs/aramid-trader/internal/web"
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
	Advisor struct {
		Endpoint string `yaml:"endpoint"`
		ChainID  string `yaml:"chain_id"`
	} `yaml:"advisor"`
	Notifications struct {
		DiscordWebhookURL string `yaml:"discord_webhook_url"`
		DebounceMinutes   int    `yaml:"debounce_minutes"`
	} `yaml:"notifications"`
	Monitor struct {
		PollIntervalMs   int `yaml:"poll_interval_ms"`
		SettleGraceSec   int `yaml:"settle_grace_s"`
		AdviceIntervalS  int `yaml:"advice_interval_s"`
		CloseRetryDelayS int `yaml:"close_retry_delay_s"`
		LongHoldMaxH     int `yaml:"long_hold_max_h"`
		QuickExitMaxM    int `yaml:"quick_exit_max_m"`
	} `yaml:"monitor"`
	Limits struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
	} `yaml:"limits"`
	Trading struct {
		WalletFloor     float64 `yaml:"wallet_floor"`
		BalanceRecheckS int     `yaml:"balance_recheck_s"`
		RetryAttempts   int     `yaml:"retry_attempts"`
		RetryDelayMs    int     `yaml:"retry_delay_ms"`
		DefaultGainPct  float64 `yaml:"default_gain_pct"`
		DefaultLossPct  float64 `yaml:"default_loss_pct"`
		DustThreshold   float64 `yaml:"dust_threshold"`
		SettleDelayS    int     `yaml:"settle_delay_s"`
		VerifyResidual  bool    `yaml:"verify_residual"`
	} `yaml:"trading"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
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
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Monitor.PollIntervalMs == 0 {
		c.Monitor.PollIntervalMs = 5000
	}
	if c.Monitor.SettleGraceSec == 0 {
		c.Monitor.SettleGraceSec = 30
	}
	if c.Monitor.AdviceIntervalS == 0 {
		c.Monitor.AdviceIntervalS = 30
	}
	if c.Monitor.CloseRetryDelayS == 0 {
		c.Monitor.CloseRetryDelayS = 10
	}
	if c.Monitor.LongHoldMaxH == 0 {
		c.Monitor.LongHoldMaxH = 1
	}
	if c.Monitor.QuickExitMaxM == 0 {
		c.Monitor.QuickExitMaxM = 30
	}
	if c.Limits.RequestsPerMinute == 0 {
		c.Limits.RequestsPerMinute = 300
	}
	if c.Trading.BalanceRecheckS == 0 {
		c.Trading.BalanceRecheckS = 300
	}
	if c.Trading.RetryAttempts == 0 {
		c.Trading.RetryAttempts = 5
	}
	if c.Trading.RetryDelayMs == 0 {
		c.Trading.RetryDelayMs = 5000
	}
	if c.Trading.DefaultGainPct == 0 {
		c.Trading.DefaultGainPct = 50
	}
	if c.Trading.DefaultLossPct == 0 {
		c.Trading.DefaultLossPct = 20
	}
	if c.Trading.DustThreshold == 0 {
		c.Trading.DustThreshold = 1
	}
	if c.Trading.SettleDelayS == 0 {
		c.Trading.SettleDelayS = 30
	}
	if c.Notifications.DebounceMinutes == 0 {
		c.Notifications.DebounceMinutes = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "trader.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}

// applyEnv overlays secrets from the environment so keys stay out of the
// yaml file. A .env alongside the binary is honoured when present.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("TRADER_GATEWAY_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("TRADER_DISCORD_WEBHOOK_URL"); v != "" {
		c.Notifications.DiscordWebhookURL = v
	}
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Adapters
	feed := pricefeed.NewClient(cfg.PriceFeed.RESTEndpoint, cfg.PriceFeed.WSEndpoint, cfg.PriceFeed.ChainID, log)
	gw := gateway.NewClient(cfg.Gateway.RESTEndpoint, cfg.Gateway.APIKey)
	advisor := advice.NewClient(cfg.Advisor.Endpoint, cfg.Advisor.ChainID)

	notifier := buildNotifier(cfg, log)

	// 5. Init Services
	limiter := usecase.NewRateLimiter(cfg.Limits.RequestsPerMinute, time.Minute)
	policy := usecase.NewExitPolicy(
		time.Duration(cfg.Monitor.LongHoldMaxH)*time.Hour,
		time.Duration(cfg.Monitor.QuickExitMaxM)*time.Minute,
	)

	seller := usecase.NewSellService(store, gw, feed, notifier, log, usecase.SellConfig{
		DustThreshold:  cfg.Trading.DustThreshold,
		RetryAttempts:  cfg.Trading.RetryAttempts,
		RetryDelay:     time.Duration(cfg.Trading.RetryDelayMs) * time.Millisecond,
		SettleDelay:    time.Duration(cfg.Trading.SettleDelayS) * time.Second,
		VerifyResidual: cfg.Trading.VerifyResidual,
	})

	monitors := usecase.NewMonitorService(store, feed, advisor, seller, notifier, limiter, policy, log, usecase.MonitorConfig{
		PollInterval:    time.Duration(cfg.Monitor.PollIntervalMs) * time.Millisecond,
		SettleGrace:     time.Duration(cfg.Monitor.SettleGraceSec) * time.Second,
		AdviceInterval:  time.Duration(cfg.Monitor.AdviceIntervalS) * time.Second,
		CloseRetryDelay: time.Duration(cfg.Monitor.CloseRetryDelayS) * time.Second,
	})

	buyer := usecase.NewBuyService(store, gw, feed, notifier, monitors, log, usecase.BuyConfig{
		WalletFloor:    cfg.Trading.WalletFloor,
		BalanceRecheck: time.Duration(cfg.Trading.BalanceRecheckS) * time.Second,
		RetryAttempts:  cfg.Trading.RetryAttempts,
		RetryDelay:     time.Duration(cfg.Trading.RetryDelayMs) * time.Millisecond,
		DefaultGainPct: cfg.Trading.DefaultGainPct,
		DefaultLossPct: cfg.Trading.DefaultLossPct,
	})

	// 6. Recover monitors for positions that survived a restart
	started, err := monitors.Recover(context.Background())
	if err != nil {
		log.Fatal("Failed to recover monitors", zap.Error(err))
	}
	log.Info("Recovered monitors", zap.Int("count", started))

	// 7. Init Web Server
	server := web.NewServer(cfg.Server.Port, store, buyer, seller, monitors, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	monitors.Shutdown()
	seller.Shutdown()
}

// buildNotifier wires Discord delivery behind a per-token debounce, or a
// no-op sink when no webhook is configured.
func buildNotifier(cfg *Config, log *zap.Logger) domain.NotificationSink {
	if cfg.Notifications.DiscordWebhookURL == "" {
		log.Info("No Discord webhook configured, notifications disabled")
		return notify.NopSink{}
	}
	discord := notify.NewDiscordSink(cfg.Notifications.DiscordWebhookURL)
	return notify.NewDebouncedSink(discord, time.Duration(cfg.Notifications.DebounceMinutes)*time.Minute)
}
