package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string   `yaml:"mode"`
	Symbols []string `yaml:"symbols"`
	Capital struct {
		Starting float64 `yaml:"starting"`
		Floor    float64 `yaml:"floor"`
	} `yaml:"capital"`
	Market struct {
		Retention int `yaml:"retention"`
		Window    int `yaml:"window"`
	} `yaml:"market"`
	Signal struct {
		EMAShort             int     `yaml:"ema_short"`
		EMALong              int     `yaml:"ema_long"`
		RSIPeriod            int     `yaml:"rsi_period"`
		RSIOversold          float64 `yaml:"rsi_oversold"`
		RSIOverbought        float64 `yaml:"rsi_overbought"`
		MomentumLookback     int     `yaml:"momentum_lookback"`
		MomentumThresholdPct float64 `yaml:"momentum_threshold_pct"`
		TakeProfitPct        float64 `yaml:"take_profit_pct"`
		StopLossPct          float64 `yaml:"stop_loss_pct"`
	} `yaml:"signal"`
	Advisory struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"advisory"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
		Schema      string  `yaml:"schema"`
	} `yaml:"llm"`
	Arbiter struct {
		SoloDiscount float64 `yaml:"solo_discount"`
		MaxSize      float64 `yaml:"max_size"`
	} `yaml:"arbiter"`
	Risk struct {
		MinSize             float64 `yaml:"min_size"`
		MinNotional         float64 `yaml:"min_notional"`
		MaxDailyDrawdownPct float64 `yaml:"max_daily_drawdown_pct"`
	} `yaml:"risk"`
	Ledger struct {
		MaxSlippagePct float64 `yaml:"max_slippage_pct"`
		FeeRate        float64 `yaml:"fee_rate"`
		QtyPrecision   int32   `yaml:"qty_precision"`
	} `yaml:"ledger"`
	Journal struct {
		Dir           string `yaml:"dir"`
		SQLitePath    string `yaml:"sqlite_path"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"journal"`
	Monitor struct {
		Addr    string `yaml:"addr"`
		History int    `yaml:"history"`
	} `yaml:"monitor"`
	Feed struct {
		Source string `yaml:"source"`
		URL    string `yaml:"url"`
	} `yaml:"feed"`
	News struct {
		Enabled  bool          `yaml:"enabled"`
		URL      string        `yaml:"url"`
		Selector string        `yaml:"selector"`
		Max      int           `yaml:"max"`
		Timeout  time.Duration `yaml:"timeout"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"news"`
	Profiling struct {
		Enabled bool   `yaml:"enabled"`
		Server  string `yaml:"server"`
	} `yaml:"profiling"`
}

// Default returns a config with every default applied; used by tests and when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTCUSDT"}
	}
	if c.Capital.Starting == 0 {
		c.Capital.Starting = 100
	}
	if c.Capital.Floor == 0 {
		c.Capital.Floor = 20
	}
	if c.Market.Retention == 0 {
		c.Market.Retention = 500
	}
	if c.Market.Window == 0 {
		c.Market.Window = 120
	}
	s := &c.Signal
	if s.EMAShort == 0 {
		s.EMAShort = 12
	}
	if s.EMALong == 0 {
		s.EMALong = 26
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.RSIOversold == 0 {
		s.RSIOversold = 30
	}
	if s.RSIOverbought == 0 {
		s.RSIOverbought = 70
	}
	if s.MomentumLookback == 0 {
		s.MomentumLookback = 10
	}
	if s.MomentumThresholdPct == 0 {
		s.MomentumThresholdPct = 0.2
	}
	if s.TakeProfitPct == 0 {
		s.TakeProfitPct = 1
	}
	if s.StopLossPct == 0 {
		s.StopLossPct = 1
	}
	if c.Advisory.Timeout == 0 {
		c.Advisory.Timeout = 2 * time.Second
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "INDICATOR"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 200
	}
	if c.Arbiter.SoloDiscount == 0 {
		c.Arbiter.SoloDiscount = 0.5
	}
	if c.Arbiter.MaxSize == 0 {
		c.Arbiter.MaxSize = 1
	}
	if c.Risk.MinSize == 0 {
		c.Risk.MinSize = 0.01
	}
	if c.Risk.MinNotional == 0 {
		c.Risk.MinNotional = 1
	}
	if c.Ledger.MaxSlippagePct == 0 {
		c.Ledger.MaxSlippagePct = 0.5
	}
	if c.Ledger.QtyPrecision == 0 {
		c.Ledger.QtyPrecision = 8
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "logs"
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":8080"
	}
	if c.Monitor.History == 0 {
		c.Monitor.History = 100
	}
	if c.Feed.Source == "" {
		c.Feed.Source = "BINANCE"
	}
	if c.Feed.URL == "" {
		c.Feed.URL = "wss://stream.binance.com:9443"
	}
	if c.News.Max == 0 {
		c.News.Max = 10
	}
	if c.News.Selector == "" {
		c.News.Selector = "h3"
	}
	if c.News.Timeout == 0 {
		c.News.Timeout = 5 * time.Second
	}
	if c.News.CacheTTL == 0 {
		c.News.CacheTTL = 5 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "PAPER" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'PAPER'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Capital.Starting <= 0 {
		return fmt.Errorf("capital.starting must be positive, got %.2f", c.Capital.Starting)
	}
	if c.Capital.Floor < 0 || c.Capital.Floor >= c.Capital.Starting {
		return fmt.Errorf("capital.floor must be in [0, starting), got %.2f", c.Capital.Floor)
	}
	if c.Signal.EMAShort >= c.Signal.EMALong {
		return fmt.Errorf("signal.ema_short (%d) must be below signal.ema_long (%d)", c.Signal.EMAShort, c.Signal.EMALong)
	}
	if c.Market.Window <= c.Signal.EMALong {
		return fmt.Errorf("market.window (%d) must exceed signal.ema_long (%d)", c.Market.Window, c.Signal.EMALong)
	}
	if c.Market.Retention < c.Market.Window {
		return fmt.Errorf("market.retention (%d) must be at least market.window (%d)", c.Market.Retention, c.Market.Window)
	}
	if c.Arbiter.SoloDiscount <= 0 || c.Arbiter.SoloDiscount > 1 {
		return fmt.Errorf("arbiter.solo_discount must be in (0,1], got %.2f", c.Arbiter.SoloDiscount)
	}
	if c.Arbiter.MaxSize <= 0 || c.Arbiter.MaxSize > 1 {
		return fmt.Errorf("arbiter.max_size must be in (0,1], got %.2f", c.Arbiter.MaxSize)
	}
	if c.Risk.MinSize <= 0 || c.Risk.MinSize > 1 {
		return fmt.Errorf("risk.min_size must be in (0,1], got %.2f", c.Risk.MinSize)
	}
	if c.Ledger.FeeRate < 0 || c.Ledger.FeeRate >= 1 {
		return fmt.Errorf("ledger.fee_rate must be in [0,1), got %.4f", c.Ledger.FeeRate)
	}
	switch c.LLM.Provider {
	case "CLAUDE", "OPENAI", "INDICATOR", "NOOP":
	default:
		return fmt.Errorf("llm.provider must be CLAUDE, OPENAI, INDICATOR or NOOP, got '%s'", c.LLM.Provider)
	}
	if c.News.Enabled && c.News.URL == "" {
		return errors.New("news.url is required when news is enabled")
	}
	switch c.Feed.Source {
	case "BINANCE", "SYNTHETIC":
	default:
		return fmt.Errorf("feed.source must be BINANCE or SYNTHETIC, got '%s'", c.Feed.Source)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	// Env wins for secrets-like settings so DSNs stay out of the yaml file
	if dsn := os.Getenv("AGENT_PG_DSN"); dsn != "" {
		c.Journal.PostgresDSN = dsn
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
