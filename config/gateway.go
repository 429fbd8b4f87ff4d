package config

// GatewayConfig is the root configuration for the relay gateway daemon,
// loaded from config.toml with environment-variable overrides via cleanenv.
type GatewayConfig struct {
	Database struct {
		Host            string `toml:"host" env:"ARKRELAY_DB_HOST"`
		Port            string `toml:"port" env:"ARKRELAY_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"ARKRELAY_DB_USER"`
		Password        string `toml:"password" env:"ARKRELAY_DB_PASSWORD"`
		DB              string `toml:"db" env:"ARKRELAY_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"ARKRELAY_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"ARKRELAY_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"ARKRELAY_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"ARKRELAY_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"ARKRELAY_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"ARKRELAY_REDIS_HOST"`
		Port     string `toml:"port" env:"ARKRELAY_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"ARKRELAY_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"ARKRELAY_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Session struct {
		TimeoutMinutes       int `toml:"timeout_minutes" env:"ARKRELAY_SESSION_TIMEOUT_MINUTES" env-default:"30"`
		ChallengeTimeoutMins int `toml:"challenge_timeout_minutes" env:"ARKRELAY_CHALLENGE_TIMEOUT_MINUTES" env-default:"5"`
		MaxConcurrent        int `toml:"max_concurrent_sessions" env:"ARKRELAY_MAX_CONCURRENT_SESSIONS" env-default:"100"`
	} `toml:"session"`

	Vtxo struct {
		ExpirationHours int   `toml:"expiration_hours" env:"ARKRELAY_VTXO_EXPIRATION_HOURS" env-default:"24"`
		MinAmountSats   int64 `toml:"min_amount_sats" env:"ARKRELAY_VTXO_MIN_AMOUNT_SATS" env-default:"1000"`
	} `toml:"vtxo"`

	Fee struct {
		SatsPerVbyte int64   `toml:"sats_per_vbyte" env:"ARKRELAY_FEE_SATS_PER_VBYTE" env-default:"10"`
		Percentage   float64 `toml:"percentage" env:"ARKRELAY_FEE_PERCENTAGE" env-default:"0.001"`
	} `toml:"fee"`

	RPC struct {
		MaxMessageLength int `toml:"max_message_length" env:"ARKRELAY_GRPC_MAX_MESSAGE_LENGTH" env-default:"4194304"`
		TimeoutSeconds   int `toml:"timeout_seconds" env:"ARKRELAY_GRPC_TIMEOUT_SECONDS" env-default:"30"`
	} `toml:"rpc"`

	Retry struct {
		MaxAttempts             int `toml:"max_attempts" env:"ARKRELAY_MAX_RETRY_ATTEMPTS" env-default:"3"`
		BaseDelaySeconds        int `toml:"base_delay_seconds" env:"ARKRELAY_RETRY_DELAY_SECONDS" env-default:"1"`
		BreakerThreshold        int `toml:"breaker_threshold" env:"ARKRELAY_CIRCUIT_BREAKER_THRESHOLD" env-default:"5"`
		BreakerRecoverySeconds  int `toml:"breaker_recovery_seconds" env:"ARKRELAY_CIRCUIT_BREAKER_TIMEOUT_SECONDS" env-default:"60"`
	} `toml:"retry"`

	Ark struct {
		GRPCHost     string `toml:"grpc_host" env:"ARKRELAY_ARKD_HOST"`
		GRPCPort     string `toml:"grpc_port" env:"ARKRELAY_ARKD_PORT" env-default:"10009"`
		TLSCertPath  string `toml:"tls_cert_path" env:"ARKRELAY_ARKD_TLS_CERT_PATH"`
		MacaroonPath string `toml:"macaroon_path" env:"ARKRELAY_ARKD_MACAROON_PATH"`
		Insecure     bool   `toml:"insecure" env:"ARKRELAY_ARKD_INSECURE" env-default:"false"`
	} `toml:"ark"`

	Asset struct {
		GRPCHost     string `toml:"grpc_host" env:"ARKRELAY_TAPD_HOST"`
		GRPCPort     string `toml:"grpc_port" env:"ARKRELAY_TAPD_PORT" env-default:"10029"`
		TLSCertPath  string `toml:"tls_cert_path" env:"ARKRELAY_TAPD_TLS_CERT_PATH"`
		MacaroonPath string `toml:"macaroon_path" env:"ARKRELAY_TAPD_MACAROON_PATH"`
		Insecure     bool   `toml:"insecure" env:"ARKRELAY_TAPD_INSECURE" env-default:"false"`
	} `toml:"asset"`

	Lightning struct {
		GRPCHost              string `toml:"grpc_host" env:"ARKRELAY_LND_HOST"`
		GRPCPort              string `toml:"grpc_port" env:"ARKRELAY_LND_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"ARKRELAY_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"ARKRELAY_LND_MACAROON_PATH"`
		Network               string `toml:"network" env:"ARKRELAY_LND_NETWORK" env-default:"testnet"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"ARKRELAY_LND_PAYMENT_TIMEOUT_SECONDS" env-default:"30"`
		MaxPaymentFeeSats     int64  `toml:"max_payment_fee_sats" env:"ARKRELAY_LND_MAX_PAYMENT_FEE_SATS" env-default:"100"`
	} `toml:"lightning"`

	Relay struct {
		URLs            []string `toml:"urls" env:"ARKRELAY_NOSTR_RELAYS" env-separator:","`
		IdentityKeyPath string   `toml:"identity_key_path" env:"ARKRELAY_NOSTR_PRIVATE_KEY_PATH"`
	} `toml:"relay"`

	Encryption struct {
		Enabled bool   `toml:"enabled" env:"ARKRELAY_ENABLE_ENCRYPTION" env-default:"false"`
		KeyHex  string `toml:"key_hex" env:"ARKRELAY_ENCRYPTION_KEY"`
	} `toml:"encryption"`
}
