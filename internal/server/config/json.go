package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/adminvault/internal/flagx"
	"github.com/dmitrijs2005/adminvault/internal/timex"
)

// JsonConfig is the on-disk shape of the daemon configuration. Durations
// accept "15m" style strings or integer nanoseconds. Absent fields keep
// their previous value.
type JsonConfig struct {
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	RateLimit                    *float64        `json:"rate_limit"`
	RateBurst                    *int            `json:"rate_burst"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson overlays config with the file named by -c/-config (or
// $ADMINVAULT_CONFIG). It panics if the file cannot be read or decoded.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIf(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RateLimit != nil {
		config.RateLimit = *c.RateLimit
	}
	if c.RateBurst != nil {
		config.RateBurst = *c.RateBurst
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
