package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// OAuthClient holds one service's OAuth application credentials.
type OAuthClient struct {
	ID     string
	Secret string
}

type Config struct {
	Port         int
	DBPath       string
	FetchTimeout time.Duration

	Facebook OAuthClient
	YouTube  OAuthClient
}

func GetConfig() Config {
	config := Config{
		Port:         8080, // default port
		DBPath:       "data/dash.db",
		FetchTimeout: 15 * time.Second,
	}

	// Override with environment variables if present
	if port := os.Getenv("DASH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}

	if dbPath := os.Getenv("DASH_DB_PATH"); dbPath != "" {
		config.DBPath = dbPath
	}

	if timeout := os.Getenv("DASH_FETCH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			config.FetchTimeout = d
		}
	}

	config.Facebook = OAuthClient{
		ID:     os.Getenv("DASH_FACEBOOK_APP_ID"),
		Secret: os.Getenv("DASH_FACEBOOK_APP_SECRET"),
	}
	config.YouTube = OAuthClient{
		ID:     os.Getenv("DASH_YOUTUBE_APP_ID"),
		Secret: os.Getenv("DASH_YOUTUBE_APP_SECRET"),
	}

	return config
}

func (c Config) GetAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}
