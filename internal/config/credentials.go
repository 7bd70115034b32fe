package config

import (
	"os"

	"github.com/joho/godotenv"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

// Credentials holds venue API secrets, loaded from the environment so
// they never appear in run config files
type Credentials struct {
	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool
}

// LoadCredentials loads venue credentials from the environment, reading
// the given .env file first if it exists
func LoadCredentials(envFile string) (*Credentials, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadCredentials",
					"cannot load env file "+envFile)
			}
		}
	}

	return &Credentials{
		BybitAPIKey:    getEnv("BYBIT_API_KEY", ""),
		BybitAPISecret: getEnv("BYBIT_API_SECRET", ""),
		BybitTestnet:   getEnvBool("BYBIT_TESTNET", true),
	}, nil
}

// RequireBybit validates that live Bybit credentials are present
func (c *Credentials) RequireBybit() error {
	if c.BybitAPIKey == "" || c.BybitAPISecret == "" {
		return perrors.NewConfigError(component, "RequireBybit",
			"BYBIT_API_KEY and BYBIT_API_SECRET must be set for live execution")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}
