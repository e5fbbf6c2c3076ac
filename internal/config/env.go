package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Env holds connection settings that never go into the YAML file.
type Env struct {
	DatabaseURL   string
	RedisAddress  string
	RedisUsername string
	RedisPassword string
}

// LoadEnv reads the process environment after applying an optional dotenv
// file. Variables already set in the process win over the file. A missing
// file is not an error.
func LoadEnv(dotenvPath string) (Env, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, err
		}
	}
	return Env{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}, nil
}
