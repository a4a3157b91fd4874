package app

import (
	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
)

type Config struct {
	HTTPAddr string
	LogMode  string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr: envutil.String("HTTP_ADDR", ":8080"),
		LogMode:  envutil.String("LOG_MODE", "development"),
	}
}
