package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	CatalogBaseURL     string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SessionSecret      string
	SessionTTLMinutes  int
	AutosaveDebounceMS int
	StockSettleDelayMS int
	TaxRatePercent     float64
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	sessionTTL, err := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "720"))
	if err != nil || sessionTTL < 1 {
		sessionTTL = 720
	}
	debounceMS, err := strconv.Atoi(getEnv("AUTOSAVE_DEBOUNCE_MS", "400"))
	if err != nil || debounceMS < 1 {
		debounceMS = 400
	}
	settleMS, err := strconv.Atoi(getEnv("STOCK_SETTLE_DELAY_MS", "1500"))
	if err != nil || settleMS < 1 {
		settleMS = 1500
	}
	taxRate, err := strconv.ParseFloat(getEnv("DEFAULT_TAX_RATE_PERCENT", "0"), 64)
	if err != nil || taxRate < 0 {
		taxRate = 0
	}

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		CatalogBaseURL:     strings.TrimSpace(os.Getenv("CATALOG_BASE_URL")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		SessionSecret:      strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionTTLMinutes:  sessionTTL,
		AutosaveDebounceMS: debounceMS,
		StockSettleDelayMS: settleMS,
		TaxRatePercent:     taxRate,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
