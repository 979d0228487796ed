package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the bot needs for one session: collaborator
// endpoints, wallet material, the copy target and the exit policy.
type Config struct {
	RPCList       []string `mapstructure:"rpc_list"`
	WebSocketURL  string   `mapstructure:"websocket_url"`
	PortalURL     string   `mapstructure:"portal_url"`
	JitoURL       string   `mapstructure:"jito_url"`
	OracleURL     string   `mapstructure:"oracle_url"`
	APIKey        string   `mapstructure:"api_key"`
	PrivateKey    string   `mapstructure:"private_key"`
	WalletAddress string   `mapstructure:"wallet_address"`
	CopyWallet    string   `mapstructure:"copy_wallet_address"`

	BuyAmountSOL   float64 `mapstructure:"buy_amount_sol"`
	SlippagePct    float64 `mapstructure:"slippage_pct"`
	PriorityFeeSOL float64 `mapstructure:"priority_fee_sol"`

	StopLossPct       float64  `mapstructure:"stop_loss_pct"`
	TakeProfitPct     float64  `mapstructure:"take_profit_pct"`
	TimeoutMs         int      `mapstructure:"timeout_ms"`
	PriceCheckDelayMs int      `mapstructure:"price_check_delay_ms"`
	PingIntervalMs    int      `mapstructure:"ping_interval_ms"`
	Venues            []string `mapstructure:"venues"`

	// Used to estimate the USD entry price when the post-buy price lookup
	// returns no data. Not derived from any live rate.
	SolUsdFallbackRate float64 `mapstructure:"sol_usd_fallback_rate"`

	MetricsAddr  string `mapstructure:"metrics_addr"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultPortalURL         = "https://api.solanaportal.io"
	DefaultJitoURL           = "https://tokyo.mainnet.block-engine.jito.wtf/api/v1/transactions"
	DefaultOracleURL         = "https://api.coinvera.io"
	DefaultWebSocketURL      = "wss://api.coinvera.io"
	DefaultSlippagePct       = 10.0
	DefaultStopLossPct       = 10.0
	DefaultTakeProfitPct     = 25.0
	DefaultTimeoutMs         = 3600000
	DefaultPriceCheckDelayMs = 2000
	DefaultPingIntervalMs    = 5000
	DefaultSolUsdFallback    = 150.0
	DefaultLogFile           = "copybot.log"
)

// DefaultVenues is the permitted venue set applied when none is configured.
var DefaultVenues = []string{"Pump.fun", "Pump.fun Amm"}

// Load reads the config file at path, applies defaults and environment
// overrides (COPYBOT_* variables) and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"portal_url":            DefaultPortalURL,
		"jito_url":              DefaultJitoURL,
		"oracle_url":            DefaultOracleURL,
		"websocket_url":         DefaultWebSocketURL,
		"slippage_pct":          DefaultSlippagePct,
		"stop_loss_pct":         DefaultStopLossPct,
		"take_profit_pct":       DefaultTakeProfitPct,
		"timeout_ms":            DefaultTimeoutMs,
		"price_check_delay_ms":  DefaultPriceCheckDelayMs,
		"ping_interval_ms":      DefaultPingIntervalMs,
		"venues":                DefaultVenues,
		"sol_usd_fallback_rate": DefaultSolUsdFallback,
		"log_file":              DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, Validate(&cfg)
}

// Validate rejects configurations the bot cannot trade with.
func Validate(cfg *Config) error {
	if cfg.APIKey == "" {
		return errors.New("missing api_key in configuration")
	}
	if cfg.CopyWallet == "" {
		return errors.New("missing copy_wallet_address in configuration")
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private_key in configuration")
	}
	if cfg.WalletAddress == "" {
		return errors.New("missing wallet_address in configuration")
	}
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol: " + rpcURL)
		}
	}
	if err := validateURL(cfg.WebSocketURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.BuyAmountSOL <= 0 {
		return errors.New("invalid buy_amount_sol")
	}
	if cfg.SlippagePct < 0 {
		return errors.New("invalid slippage_pct")
	}
	if cfg.PriorityFeeSOL < 0 {
		return errors.New("invalid priority_fee_sol")
	}
	if cfg.StopLossPct <= 0 {
		return errors.New("invalid stop_loss_pct")
	}
	if cfg.TakeProfitPct <= 0 {
		return errors.New("invalid take_profit_pct")
	}
	if cfg.TimeoutMs <= 0 {
		return errors.New("invalid timeout_ms")
	}
	if cfg.PriceCheckDelayMs <= 0 {
		return errors.New("invalid price_check_delay_ms")
	}
	if cfg.PingIntervalMs <= 0 {
		return errors.New("invalid ping_interval_ms")
	}
	if cfg.SolUsdFallbackRate <= 0 {
		return errors.New("invalid sol_usd_fallback_rate")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// loadEnvironmentVariables lets secrets come from the environment instead of
// the config file.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("COPYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envKey := v.GetString("API_KEY"); envKey != "" {
		cfg.APIKey = envKey
	}
	if envPriv := v.GetString("PRIVATE_KEY"); envPriv != "" {
		cfg.PrivateKey = envPriv
	}
	if envWallet := v.GetString("WALLET_ADDRESS"); envWallet != "" {
		cfg.WalletAddress = envWallet
	}
	if envRPCs := v.GetString("RPC_LIST"); envRPCs != "" {
		var clean []string
		for _, rpc := range strings.Split(envRPCs, ",") {
			if trimmed := strings.TrimSpace(rpc); trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
		if len(clean) > 0 {
			cfg.RPCList = clean
		}
	}
}
