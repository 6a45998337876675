package config

import (
	"flag"
	"os"

	"github.com/matenet/backend/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        HTTP bind address (e.g., ":8080")
//	-g string        gRPC health bind address
//	-d string        PostgreSQL DSN
//	-storage string  storage driver: postgres | memory
//	-nonce-store     nonce store: postgres | redis
//	-redis string    Redis address
//	-s string        JWT HMAC secret (secrets source "config")
//	-k string        32-byte cipher key (secrets source "config")
//	-secrets string  secrets source: aws | config
//	-nonce-ttl       nonce lifetime (e.g., "10m")
//	-session-ttl     session token lifetime (e.g., "720h")
//	-domain string   expected SIWE domain, empty disables the check
//	-u, -p string    S3 credentials
//	-b string        S3 bucket
//	-e string        S3 base endpoint
//	-public-url      public base URL for stored objects
//	-allow-resend    allow re-sending a rejected friend request
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-g", "-d", "-storage", "-nonce-store", "-redis", "-s", "-k", "-secrets",
		"-nonce-ttl", "-session-ttl", "-domain", "-u", "-p", "-b", "-e", "-public-url",
		"-allow-resend", "-log-level",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run the gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageDriver, "storage", config.StorageDriver, "storage driver (postgres|memory)")
	fs.StringVar(&config.NonceStore, "nonce-store", config.NonceStore, "nonce store (postgres|redis)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.CipherKey, "k", config.CipherKey, "credential cipher key (32 bytes)")
	fs.StringVar(&config.SecretsSource, "secrets", config.SecretsSource, "secrets source (aws|config)")
	fs.DurationVar(&config.NonceTTL, "nonce-ttl", config.NonceTTL, "nonce lifetime")
	fs.DurationVar(&config.SessionTTL, "session-ttl", config.SessionTTL, "session token lifetime")
	fs.StringVar(&config.SiweDomain, "domain", config.SiweDomain, "expected SIWE domain")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3PublicURL, "public-url", config.S3PublicURL, "public base URL for stored objects")
	fs.BoolVar(&config.AllowResendAfterReject, "allow-resend", config.AllowResendAfterReject, "allow re-sending rejected friend requests")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
