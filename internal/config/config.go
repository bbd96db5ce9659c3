package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Trading     TradingConfig
	Phases      PhaseConfig
	Signals     SignalConfig
	Calibration CalibrationConfig
	Database    DatabaseConfig
	Broker      BrokerConfig
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Notify      NotifyConfig
}

// TradingConfig defines the live-trading settings. Budget and the two
// instrument identifiers are the only fields rewritten at runtime.
type TradingConfig struct {
	Budget            float64 `mapstructure:"budget"`
	StopLossPct       float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64 `mapstructure:"take_profit_pct"`
	SpreadLimit       float64 `mapstructure:"spread_limit"`
	TrailingDwellMin  int     `mapstructure:"trailing_dwell_minutes"`
	UpdateOnNewSignal bool    `mapstructure:"update_on_new_signal"`
	InstrumentLong    string  `mapstructure:"instrument_long"`
	InstrumentShort   string  `mapstructure:"instrument_short"`
	DailyTargetRatio  float64 `mapstructure:"daily_target_ratio"`
	DailyLimitRatio   float64 `mapstructure:"daily_limit_ratio"`
	Account           string  `mapstructure:"account"`

	// PreferredDirection is rewritten at EVENING with the next day's
	// recommendation.
	PreferredDirection string `mapstructure:"preferred_direction"`
}

// PhaseConfig defines the day-phase boundaries and poll pacing.
type PhaseConfig struct {
	MorningEnd      string `mapstructure:"morning_end"` // "12:00"
	DayEnd          string `mapstructure:"day_end"`     // "17:15"
	MorningPollSecs int    `mapstructure:"morning_poll_seconds"`
	DayPollSecs     int    `mapstructure:"day_poll_seconds"`

	// Holidays lists market closures as "2006-01-02" dates; the whole
	// day is treated as EVENING.
	Holidays []string `mapstructure:"holidays"`
}

// SignalConfig defines the signal-engine guards.
type SignalConfig struct {
	StalenessSecs int `mapstructure:"staleness_seconds"`
	LookbackBars  int `mapstructure:"lookback_bars"`
	TopStrategies int `mapstructure:"top_strategies"`
}

// CalibrationConfig defines the backtest walker and catalog filtering.
type CalibrationConfig struct {
	Ticker           string             `mapstructure:"ticker"`
	Interval         string             `mapstructure:"interval"`
	LookbackDays     int                `mapstructure:"lookback_days"`
	SessionOpen      string             `mapstructure:"session_open"`  // "09:15"
	SessionClose     string             `mapstructure:"session_close"` // "17:15"
	TradeCost        float64            `mapstructure:"trade_cost"`
	MinProfit        float64            `mapstructure:"min_profit"`
	MinPoints        int                `mapstructure:"min_points"`
	MinEfficiency    float64            `mapstructure:"min_efficiency"`
	ReferenceTickers map[string]float64 `mapstructure:"reference_tickers"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// BrokerConfig defines the brokerage session settings.
type BrokerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StreamURL string `mapstructure:"stream_url"`
	Token     string `mapstructure:"token"`
}

// MarketDataConfig defines the OHLCV provider and its local cache.
type MarketDataConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	CacheDir string `mapstructure:"cache_dir"`
}

// NotifyConfig defines the webhook notification sink.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// SaveTrading writes the runtime-adjustable trading settings back to the
// config file. Only budget and the instrument identifiers are ever
// rewritten; callers pass the new TradingConfig value rather than mutating
// shared state.
func SaveTrading(t TradingConfig) error {
	viper.Set("trading.budget", t.Budget)
	viper.Set("trading.instrument_long", t.InstrumentLong)
	viper.Set("trading.instrument_short", t.InstrumentShort)
	viper.Set("trading.preferred_direction", t.PreferredDirection)
	return viper.WriteConfig()
}
