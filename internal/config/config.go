package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	PORT            string
	DB_FILE         string
	JWT_SECRET      string
	COMMISSION_RATE float64
	LISTING_FEE     float64
	KAFKA_ADDRESS   string
	ORDER_TOPIC     string
	ES_URL          string
	ES_USER         string
	ES_PASSWORD     string
	REDIS_ADDR      string
	UPLOAD_DIR      string
	LOG_LEVEL       string
	ADMIN_EMAIL     string
	ADMIN_PASSWORD  string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		PORT:            getDefault("PORT", "8080"),
		DB_FILE:         getDefault("DB_FILE", "millo-database.json"),
		JWT_SECRET:      os.Getenv("JWT_SECRET"),
		COMMISSION_RATE: getFloat("COMMISSION_RATE", 0.15),
		LISTING_FEE:     getFloat("LISTING_FEE", 25),
		KAFKA_ADDRESS:   os.Getenv("KAFKA_ADDRESS"),
		ORDER_TOPIC:     getDefault("ORDER_TOPIC", "order_events"),
		ES_URL:          os.Getenv("ES_URL"),
		ES_USER:         os.Getenv("ES_USER"),
		ES_PASSWORD:     os.Getenv("ES_PASSWORD"),
		REDIS_ADDR:      os.Getenv("REDIS_ADDR"),
		UPLOAD_DIR:      getDefault("UPLOAD_DIR", "uploads"),
		LOG_LEVEL:       getDefault("LOG_LEVEL", "info"),
		ADMIN_EMAIL:     os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD:  os.Getenv("ADMIN_PASSWORD"),
	}

	return config, nil
}

func getDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Notice: invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}
