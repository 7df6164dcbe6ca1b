package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rustproof/rustproof/internal/flagx"
	"github.com/rustproof/rustproof/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN                   *string         `json:"database_dsn"`
	JWTSecret                     *string         `json:"jwt_secret"`
	JWTKeyID                      *string         `json:"jwt_key_id"`
	JWTIssuer                     *string         `json:"jwt_issuer"`
	JWTAudience                   *string         `json:"jwt_audience"`
	AccessTokenValidityDuration   *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration  *timex.Duration `json:"refresh_token_validity_duration"`
	JWTLeeway                     *timex.Duration `json:"jwt_leeway"`
	RefreshRotationEnabled        *bool           `json:"refresh_rotation_enabled"`
	RefreshReuseInterval          *timex.Duration `json:"refresh_reuse_interval"`
	PasswordMinLength             *int            `json:"password_min_length"`
	PasswordMaxLength             *int            `json:"password_max_length"`
	PasswordRequiredClasses       []string        `json:"password_required_classes"`
	PasswordHistoryDepth          *int            `json:"password_history_depth"`
	SignupStatus                  *string         `json:"signup_status"`
	SignupAutoconfirm             *bool           `json:"signup_autoconfirm"`
	DefaultRole                   *string         `json:"default_role"`
	PasswordGrantEnabled          *bool           `json:"password_grant_enabled"`
	RefreshGrantEnabled           *bool           `json:"refresh_grant_enabled"`
	AuthCodeGrantEnabled          *bool           `json:"auth_code_grant_enabled"`
	ClientCredentialsGrantEnabled *bool           `json:"client_credentials_grant_enabled"`
	OneTimeTokenValidityDuration  *timex.Duration `json:"one_time_token_validity_duration"`
	SweepInterval                 *timex.Duration `json:"sweep_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. Absent JSON keys leave
// the corresponding Config fields untouched. An unreadable or invalid file
// panics: a half-applied config is worse than a crash at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.JWTSecret, c.JWTSecret)
	applyString(&config.JWTKeyID, c.JWTKeyID)
	applyString(&config.JWTIssuer, c.JWTIssuer)
	applyString(&config.JWTAudience, c.JWTAudience)
	applyDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	applyDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	applyDuration(&config.JWTLeeway, c.JWTLeeway)
	applyBool(&config.RefreshRotationEnabled, c.RefreshRotationEnabled)
	applyDuration(&config.RefreshReuseInterval, c.RefreshReuseInterval)
	applyInt(&config.PasswordMinLength, c.PasswordMinLength)
	applyInt(&config.PasswordMaxLength, c.PasswordMaxLength)
	if c.PasswordRequiredClasses != nil {
		config.PasswordRequiredClasses = c.PasswordRequiredClasses
	}
	applyInt(&config.PasswordHistoryDepth, c.PasswordHistoryDepth)
	applyString(&config.SignupStatus, c.SignupStatus)
	applyBool(&config.SignupAutoconfirm, c.SignupAutoconfirm)
	applyString(&config.DefaultRole, c.DefaultRole)
	applyBool(&config.PasswordGrantEnabled, c.PasswordGrantEnabled)
	applyBool(&config.RefreshGrantEnabled, c.RefreshGrantEnabled)
	applyBool(&config.AuthCodeGrantEnabled, c.AuthCodeGrantEnabled)
	applyBool(&config.ClientCredentialsGrantEnabled, c.ClientCredentialsGrantEnabled)
	applyDuration(&config.OneTimeTokenValidityDuration, c.OneTimeTokenValidityDuration)
	applyDuration(&config.SweepInterval, c.SweepInterval)
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func applyInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func applyBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func applyDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = time.Duration(v.Duration)
	}
}
