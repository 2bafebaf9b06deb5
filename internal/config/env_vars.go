package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	portEnvVar = "PORT"
	appNameVar = "APP_NAME"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" || port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Rentfolio Auth Gateway")
}

// GetEnv returns the deployment environment. NODE_ENV is honoured for
// parity with the frontend deployment; ENV wins when both are set.
func (EnvVars) GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	if env := os.Getenv("NODE_ENV"); env == "production" {
		return "PROD"
	}
	return "DEV"
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvAsInt reads an integer env var, falling back to defaultValue on
// missing or unparseable values.
func GetEnvAsInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
