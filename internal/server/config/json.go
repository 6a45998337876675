package config

import (
	"encoding/json"
	"os"

	"github.com/matenet/backend/internal/flagx"
	"github.com/matenet/backend/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// strings such as "10m" and integer nanoseconds. Pointer fields distinguish
// "absent" from zero values.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	LogLevel         string `json:"log_level"`

	DatabaseDSN   string `json:"database_dsn"`
	StorageDriver string `json:"storage_driver"`

	NonceStore         string          `json:"nonce_store"`
	RedisAddr          string          `json:"redis_addr"`
	RedisPassword      string          `json:"redis_password"`
	NonceTTL           *timex.Duration `json:"nonce_ttl"`
	NoncePurgeSchedule string          `json:"nonce_purge_schedule"`

	SessionTTL *timex.Duration `json:"session_ttl"`
	SiweDomain string          `json:"siwe_domain"`

	SecretsSource     string `json:"secrets_source"`
	JWTSecretID       string `json:"jwt_secret_id"`
	CipherKeySecretID string `json:"cipher_key_secret_id"`
	JWTSecret         string `json:"jwt_secret"`
	CipherKey         string `json:"cipher_key"`
	AWSRegion         string `json:"aws_region"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3PublicURL    string `json:"s3_public_url"`

	CORSAllowedOrigins string `json:"cors_allowed_origins"`
	AuthRateLimit      *int   `json:"auth_rate_limit"`

	AllowResendAfterReject *bool `json:"allow_resend_after_reject"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config into config. Absent keys leave the current value untouched. If the
// file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
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

	c.apply(config)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StorageDriver, c.StorageDriver)
	setString(&config.NonceStore, c.NonceStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.NoncePurgeSchedule, c.NoncePurgeSchedule)
	setString(&config.SiweDomain, c.SiweDomain)
	setString(&config.SecretsSource, c.SecretsSource)
	setString(&config.JWTSecretID, c.JWTSecretID)
	setString(&config.CipherKeySecretID, c.CipherKeySecretID)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.CipherKey, c.CipherKey)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicURL, c.S3PublicURL)
	setString(&config.CORSAllowedOrigins, c.CORSAllowedOrigins)

	if c.NonceTTL != nil {
		config.NonceTTL = c.NonceTTL.Duration
	}
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.AuthRateLimit != nil {
		config.AuthRateLimit = *c.AuthRateLimit
	}
	if c.AllowResendAfterReject != nil {
		config.AllowResendAfterReject = *c.AllowResendAfterReject
	}
}
