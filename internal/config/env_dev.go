//go:build dev

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// defaultEnvFile holds local development overrides next to the binary.
// FEEINDEX_ENV_FILE points dev builds at an alternate file.
const defaultEnvFile = ".env"

func loadDotEnv() error {
	path := os.Getenv("FEEINDEX_ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}
