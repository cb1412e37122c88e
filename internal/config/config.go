package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	PushModeLocal = "local"
	PushModeSNS   = "sns"
)

type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	PresignTTLSeconds int
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) Diagnostics() (level string, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == ""

	if allEmpty {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return "INFO", "s3_ready", "ready"
}

// DiagnosticsSummary returns a summary for logging (no secrets)
func (c S3Config) DiagnosticsSummary() string {
	accessKeyStatus := "not set"
	if strings.TrimSpace(c.AccessKeyID) != "" {
		accessKeyStatus = "set"
	}
	secretKeyStatus := "not set"
	if strings.TrimSpace(c.SecretAccessKey) != "" {
		secretKeyStatus = "set"
	}

	return fmt.Sprintf("endpoint=%s region=%s bucket=%s presign_ttl=%ds access_key_id=%s secret_access_key=%s",
		nonEmptyOrDash(c.Endpoint),
		nonEmptyOrDash(c.Region),
		nonEmptyOrDash(c.Bucket),
		c.PresignTTLSeconds,
		accessKeyStatus,
		secretKeyStatus,
	)
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

type BlobConfig struct {
	Mode string // local|s3|auto
	S3   S3Config
}

// PushConfig описывает канал push-уведомлений (SNS topic).
type PushConfig struct {
	Mode        string // local|sns
	AWSRegion   string
	SNSTopicARN string
}

// Config содержит конфигурацию приложения
type Config struct {
	Env  string // local | staging | prod
	Port int

	// Database
	DatabaseURL       string // runtime connection (resolved: pooled > url > direct)
	DatabaseURLRaw    string // DATABASE_URL as provided
	DatabaseURLPooled string // DATABASE_URL_POOLED as provided
	DatabaseURLDirect string // for migrations / DDL (may be empty)

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Blob storage for generated reports
	Blob BlobConfig

	// Scheduling
	DefaultTimeZone       string
	DeliveryMaxRangeDays  int
	ReportsMaxRangeDays   int
	MealReminderGraceMins int

	// Notifications
	NotificationsRetentionDays int
	NotificationsPurgeInterval time.Duration
	NotificationChannels       []string // log | email | push
	NotifyOnDeliveryCompleted  bool

	// Email
	EmailSenderMode string // local | smtp
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	SMTPUseTLS      bool

	// Push
	Push PushConfig

	// Authentication
	AuthMode      string // none | dev
	AuthRequired  bool
	JWTSecret     string
	JWTIssuer     string
	JWTTTLMinutes int

	// Migrations
	RunMigrationsOnStartup bool
}

// Location returns the configured default zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.DefaultTimeZone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.DefaultTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// APP_ENV (fallback to ENV, default: local)
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	port := envInt("PORT", 8080)

	// ---------- Database ----------
	// Priority: DATABASE_URL_POOLED > DATABASE_URL > DATABASE_URL_DIRECT
	dbPooled := strings.TrimSpace(os.Getenv("DATABASE_URL_POOLED"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	dbDirect := strings.TrimSpace(os.Getenv("DATABASE_URL_DIRECT"))

	runtimeDB := dbPooled
	if runtimeDB == "" {
		runtimeDB = dbURL
	}
	if runtimeDB == "" {
		runtimeDB = dbDirect
	}

	runMigrationsOnStartup := parseBoolEnv("RUN_MIGRATIONS_ON_STARTUP")

	// ---------- CORS ----------
	corsOrigins := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env)
	corsAllowCreds := os.Getenv("CORS_ALLOW_CREDENTIALS") == "1"

	// ---------- Rate Limiting ----------
	rateLimitRPS := envInt("RATE_LIMIT_RPS", 0)
	rateLimitBurst := envInt("RATE_LIMIT_BURST", 0)

	// ---------- Blob / S3 ----------
	s3PresignTTL := envInt("S3_PRESIGN_TTL_SECONDS", 900)
	if s3PresignTTL <= 0 {
		s3PresignTTL = 900
	}

	blobCfg := BlobConfig{
		Mode: parseMode("BLOB_MODE", BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto),
		S3: S3Config{
			Endpoint:          strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:            strings.TrimSpace(os.Getenv("S3_REGION")),
			Bucket:            strings.TrimSpace(os.Getenv("S3_BUCKET")),
			AccessKeyID:       strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey:   strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			PresignTTLSeconds: s3PresignTTL,
		},
	}

	// ---------- Scheduling ----------
	defaultTZ := strings.TrimSpace(os.Getenv("DEFAULT_TIME_ZONE"))
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	if _, err := time.LoadLocation(defaultTZ); err != nil {
		log.Printf("WARNING: unknown DEFAULT_TIME_ZONE=%q, fallback to UTC", defaultTZ)
		defaultTZ = "UTC"
	}

	deliveryMaxRangeDays := envInt("DELIVERY_MAX_RANGE_DAYS", 366)
	if deliveryMaxRangeDays <= 0 {
		deliveryMaxRangeDays = 366
	}
	reportsMaxRangeDays := envInt("REPORTS_MAX_RANGE_DAYS", 90)
	if reportsMaxRangeDays <= 0 {
		reportsMaxRangeDays = 90
	}
	mealReminderGrace := envInt("MEAL_REMINDER_GRACE_MINUTES", 30)
	if mealReminderGrace < 0 {
		mealReminderGrace = 0
	}

	// ---------- Notifications ----------
	retentionDays := envInt("NOTIFICATIONS_RETENTION_DAYS", 90)
	if retentionDays <= 0 {
		retentionDays = 90
	}
	purgeMinutes := envInt("NOTIFICATIONS_PURGE_INTERVAL_MINUTES", 60)
	if purgeMinutes <= 0 {
		purgeMinutes = 60
	}
	channels := parseList(strings.ToLower(os.Getenv("NOTIFY_CHANNELS")))
	if len(channels) == 0 {
		channels = []string{"log"}
	}
	notifyDelivered := true
	if raw := strings.TrimSpace(os.Getenv("NOTIFY_ON_DELIVERY_COMPLETED")); raw != "" {
		notifyDelivered = parseBoolEnv("NOTIFY_ON_DELIVERY_COMPLETED")
	}

	// ---------- Email ----------
	emailSenderMode := parseMode("EMAIL_SENDER_MODE", "local", "local", "smtp")
	smtpPort := envInt("SMTP_PORT", 587)
	if smtpPort <= 0 {
		smtpPort = 587
	}
	smtpFrom := strings.TrimSpace(os.Getenv("SMTP_FROM"))
	if smtpFrom == "" {
		smtpFrom = "Nutrition Engine <no-reply@yourdomain.com>"
	}

	// ---------- Push ----------
	pushCfg := PushConfig{
		Mode:        parseMode("PUSH_MODE", PushModeLocal, PushModeLocal, PushModeSNS),
		AWSRegion:   strings.TrimSpace(os.Getenv("AWS_REGION")),
		SNSTopicARN: strings.TrimSpace(os.Getenv("SNS_TOPIC_ARN")),
	}
	if pushCfg.AWSRegion == "" {
		pushCfg.AWSRegion = "us-east-1"
	}
	if pushCfg.Mode == PushModeSNS && pushCfg.SNSTopicARN == "" {
		log.Fatal("SNS_TOPIC_ARN is required when PUSH_MODE=sns")
	}

	// ---------- Auth ----------
	authMode := parseMode("AUTH_MODE", "none", "none", "dev")
	authRequired := authMode != "none" && parseBoolEnv("AUTH_REQUIRED")

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change_me"
	}
	if jwtSecret == "change_me" && env != "local" {
		log.Println("WARNING: JWT_SECRET is set to 'change_me' in non-local environment!")
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "nutrition-engine"
	}
	jwtTTLMinutes := envInt("JWT_TTL_MINUTES", 10080)

	return &Config{
		Env:               env,
		Port:              port,
		DatabaseURL:       runtimeDB,
		DatabaseURLRaw:    dbURL,
		DatabaseURLPooled: dbPooled,
		DatabaseURLDirect: dbDirect,

		CORSAllowedOrigins:   corsOrigins,
		CORSAllowCredentials: corsAllowCreds,

		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		Blob: blobCfg,

		DefaultTimeZone:       defaultTZ,
		DeliveryMaxRangeDays:  deliveryMaxRangeDays,
		ReportsMaxRangeDays:   reportsMaxRangeDays,
		MealReminderGraceMins: mealReminderGrace,

		NotificationsRetentionDays: retentionDays,
		NotificationsPurgeInterval: time.Duration(purgeMinutes) * time.Minute,
		NotificationChannels:       channels,
		NotifyOnDeliveryCompleted:  notifyDelivered,

		EmailSenderMode: emailSenderMode,
		SMTPHost:        strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:        smtpPort,
		SMTPUsername:    strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
		SMTPPassword:    strings.TrimSpace(os.Getenv("SMTP_PASSWORD")),
		SMTPFrom:        smtpFrom,
		SMTPUseTLS:      parseBoolEnv("SMTP_USE_TLS"),

		Push: pushCfg,

		AuthMode:      authMode,
		AuthRequired:  authRequired,
		JWTSecret:     jwtSecret,
		JWTIssuer:     jwtIssuer,
		JWTTTLMinutes: jwtTTLMinutes,

		RunMigrationsOnStartup: runMigrationsOnStartup,
	}
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:8081"}
		}
		return nil // prod: deny by default
	}
	return parseList(raw)
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseMode reads an enum-like env var, warning and falling back on unknown values.
func parseMode(key string, defaultVal string, allowed ...string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if mode == a {
			return mode
		}
	}
	log.Printf("WARNING: unknown %s=%q, fallback to %s", key, mode, defaultVal)
	return defaultVal
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
