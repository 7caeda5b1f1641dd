package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string   `hcl:"address,optional"`
	Port           int      `hcl:"port,optional"`
	LogLevel       string   `hcl:"log_level,optional"`
	LogFile        string   `hcl:"log_file,optional"`
	DatabasePath   string   `hcl:"database_path,optional"`
	TokenSecret    string   `hcl:"token_secret,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`

	PingIntervalSeconds       int `hcl:"ping_interval_seconds,optional"`
	MatchmakerIntervalSeconds int `hcl:"matchmaker_interval_seconds,optional"`
	CleanupIntervalSeconds    int `hcl:"cleanup_interval_seconds,optional"`
}

// GameSettings contains the table and chip configuration
type GameSettings struct {
	Stakes          []int `hcl:"stakes,optional"`
	TablesPerStake  int   `hcl:"tables_per_stake,optional"`
	StartingChips   int   `hcl:"starting_chips,optional"`
	BotDelayMillis  int   `hcl:"bot_delay_millis,optional"`
	CountdownMillis int   `hcl:"countdown_millis,optional"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:                   "localhost",
			Port:                      8080,
			LogLevel:                  "info",
			DatabasePath:              "reemteam.db",
			PingIntervalSeconds:       30,
			MatchmakerIntervalSeconds: 10,
			CleanupIntervalSeconds:    60,
		},
		Game: GameSettings{
			Stakes:          []int{1, 5, 10, 20, 50, 100},
			TablesPerStake:  2,
			StartingChips:   500,
			BotDelayMillis:  800,
			CountdownMillis: 3000,
		},
	}
}

// LoadServerConfig loads server configuration from HCL file
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultServerConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.DatabasePath == "" {
		config.Server.DatabasePath = defaults.Server.DatabasePath
	}
	if config.Server.PingIntervalSeconds == 0 {
		config.Server.PingIntervalSeconds = defaults.Server.PingIntervalSeconds
	}
	if config.Server.MatchmakerIntervalSeconds == 0 {
		config.Server.MatchmakerIntervalSeconds = defaults.Server.MatchmakerIntervalSeconds
	}
	if config.Server.CleanupIntervalSeconds == 0 {
		config.Server.CleanupIntervalSeconds = defaults.Server.CleanupIntervalSeconds
	}

	if len(config.Game.Stakes) == 0 {
		config.Game.Stakes = defaults.Game.Stakes
	}
	if config.Game.TablesPerStake == 0 {
		config.Game.TablesPerStake = defaults.Game.TablesPerStake
	}
	if config.Game.StartingChips == 0 {
		config.Game.StartingChips = defaults.Game.StartingChips
	}
	if config.Game.BotDelayMillis == 0 {
		config.Game.BotDelayMillis = defaults.Game.BotDelayMillis
	}
	if config.Game.CountdownMillis == 0 {
		config.Game.CountdownMillis = defaults.Game.CountdownMillis
	}

	return &config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if len(c.Game.Stakes) == 0 {
		return fmt.Errorf("at least one stake level must be configured")
	}
	seen := make(map[int]bool)
	for _, stake := range c.Game.Stakes {
		if stake <= 0 {
			return fmt.Errorf("stake must be positive, got %d", stake)
		}
		if seen[stake] {
			return fmt.Errorf("duplicate stake level %d", stake)
		}
		seen[stake] = true
	}

	if c.Game.TablesPerStake < 1 {
		return fmt.Errorf("tables per stake must be at least 1")
	}
	if c.Game.StartingChips <= 0 {
		return fmt.Errorf("starting chips must be positive")
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// PingInterval returns the ping cadence as a duration.
func (c *ServerConfig) PingInterval() time.Duration {
	return time.Duration(c.Server.PingIntervalSeconds) * time.Second
}

// MatchmakerInterval returns the matchmaker cadence as a duration.
func (c *ServerConfig) MatchmakerInterval() time.Duration {
	return time.Duration(c.Server.MatchmakerIntervalSeconds) * time.Second
}

// CleanupInterval returns the cadence of the stale-row sweep.
func (c *ServerConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Server.CleanupIntervalSeconds) * time.Second
}

// BotDelay returns the pause before a bot's action is played.
func (c *ServerConfig) BotDelay() time.Duration {
	return time.Duration(c.Game.BotDelayMillis) * time.Millisecond
}

// Countdown returns the ready-up countdown before a deal.
func (c *ServerConfig) Countdown() time.Duration {
	return time.Duration(c.Game.CountdownMillis) * time.Millisecond
}
