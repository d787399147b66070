package main

import (
	"os"
	"strings"

	"netyield/config"
)

// Environment overrides applied on top of the config file. Deploys set these
// instead of templating the file.
const (
	envListen      = "NYL_LISTEN"
	envDataDir     = "NYL_DATA_DIR"
	envEnvironment = "NYL_ENV"
	envAdminSecret = "NYL_ADMIN_SECRET"
)

func applyEnvOverrides(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv(envListen)); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(envDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envEnvironment)); v != "" {
		cfg.Env = v
	}
}

func adminSecretFromEnv() string {
	return strings.TrimSpace(os.Getenv(envAdminSecret))
}
