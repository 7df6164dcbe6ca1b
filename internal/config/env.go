package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables, loading a .env
// file first when one exists in the working directory. Real environment
// variables win over .env entries (godotenv never overwrites).
//
// Recognized variables all carry the RUSTPROOF_ prefix, e.g.
// RUSTPROOF_DATABASE_DSN, RUSTPROOF_JWT_SECRET, RUSTPROOF_SIGNUP_STATUS.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.DatabaseDSN, "RUSTPROOF_DATABASE_DSN")
	setString(&config.JWTSecret, "RUSTPROOF_JWT_SECRET")
	setString(&config.JWTKeyID, "RUSTPROOF_JWT_KEY_ID")
	setString(&config.JWTIssuer, "RUSTPROOF_JWT_ISSUER")
	setString(&config.JWTAudience, "RUSTPROOF_JWT_AUDIENCE")
	setDuration(&config.AccessTokenValidityDuration, "RUSTPROOF_ACCESS_TOKEN_VALIDITY_DURATION")
	setDuration(&config.RefreshTokenValidityDuration, "RUSTPROOF_REFRESH_TOKEN_VALIDITY_DURATION")
	setDuration(&config.JWTLeeway, "RUSTPROOF_JWT_LEEWAY")
	setBool(&config.RefreshRotationEnabled, "RUSTPROOF_REFRESH_ROTATION_ENABLED")
	setDuration(&config.RefreshReuseInterval, "RUSTPROOF_REFRESH_REUSE_INTERVAL")
	setInt(&config.PasswordMinLength, "RUSTPROOF_PASSWORD_MIN_LENGTH")
	setInt(&config.PasswordMaxLength, "RUSTPROOF_PASSWORD_MAX_LENGTH")
	setStringList(&config.PasswordRequiredClasses, "RUSTPROOF_PASSWORD_REQUIRED_CLASSES")
	setInt(&config.PasswordHistoryDepth, "RUSTPROOF_PASSWORD_HISTORY_DEPTH")
	setString(&config.SignupStatus, "RUSTPROOF_SIGNUP_STATUS")
	setBool(&config.SignupAutoconfirm, "RUSTPROOF_SIGNUP_AUTOCONFIRM")
	setString(&config.DefaultRole, "RUSTPROOF_DEFAULT_ROLE")
	setBool(&config.PasswordGrantEnabled, "RUSTPROOF_PASSWORD_GRANT_ENABLED")
	setBool(&config.RefreshGrantEnabled, "RUSTPROOF_REFRESH_GRANT_ENABLED")
	setBool(&config.AuthCodeGrantEnabled, "RUSTPROOF_AUTH_CODE_GRANT_ENABLED")
	setBool(&config.ClientCredentialsGrantEnabled, "RUSTPROOF_CLIENT_CREDENTIALS_GRANT_ENABLED")
	setDuration(&config.OneTimeTokenValidityDuration, "RUSTPROOF_ONE_TIME_TOKEN_VALIDITY_DURATION")
	setDuration(&config.SweepInterval, "RUSTPROOF_SWEEP_INTERVAL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringList(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}
