package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files from the working directory so ${ENV}
// references in config resolve without exporting variables manually.
// Missing files are not an error.
func LoadDotEnv() error {
	for _, file := range []string{".env", ".env.local"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
