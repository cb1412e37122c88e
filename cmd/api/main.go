package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	_ "time/tzdata"

	"github.com/fdg312/nutrition-engine/internal/config"
	"github.com/fdg312/nutrition-engine/internal/dbmigrate"
	"github.com/fdg312/nutrition-engine/internal/httpserver"
	"github.com/fdg312/nutrition-engine/internal/maintenance"
)

func main() {
	cfg := config.Load()

	printStartupBanner(cfg)

	if cfg.RunMigrationsOnStartup {
		dbURL, source, _, err := dbmigrate.SelectDatabaseURL(cfg, true)
		if err != nil {
			log.Fatalf("FATAL startup migrations: %v", err)
		}

		log.Printf("startup migrations: command=up using=%s", source)
		if err := dbmigrate.Run("up", dbURL, dbmigrate.DefaultMigrationsDir); err != nil {
			log.Fatalf("FATAL startup migrations failed: %v", err)
		}
		log.Printf("startup migrations: completed")
	}

	validateProductionConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := httpserver.New(cfg)
	defer server.Close()

	sweeper := maintenance.NewSweeper(server.Ledger(), cfg.NotificationsPurgeInterval, cfg.NotificationsRetentionDays)
	go sweeper.Run(ctx)

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("FATAL http: %v", err)
	}
}

// printStartupBanner logs a one-time summary of the resolved configuration.
// No secrets are ever printed, only "set" / "not set".
func printStartupBanner(cfg *config.Config) {
	log.Println("========== Nutrition Engine API ==========")
	log.Printf("  env              = %s", cfg.Env)
	log.Printf("  port             = %d", cfg.Port)
	log.Printf("  default_tz       = %s", nonEmptyOrDash(cfg.DefaultTimeZone))

	log.Println("---- database ----")
	log.Printf("  runtime_url      = %s", describeDBURL(cfg.DatabaseURL, cfg.DatabaseURLPooled))
	log.Printf("  pooled           = %s", setOrNot(cfg.DatabaseURLPooled))
	log.Printf("  direct           = %s", setOrNot(cfg.DatabaseURLDirect))
	log.Printf("  migrations_on_startup = %t", cfg.RunMigrationsOnStartup)

	log.Println("---- auth ----")
	log.Printf("  auth_mode        = %s", cfg.AuthMode)
	log.Printf("  auth_required    = %t", cfg.AuthRequired)
	log.Printf("  jwt_secret       = %s", secretStatus(cfg.JWTSecret, "change_me"))

	log.Println("---- notifications ----")
	log.Printf("  channels         = %s", strings.Join(cfg.NotificationChannels, ","))
	log.Printf("  retention_days   = %d", cfg.NotificationsRetentionDays)
	log.Printf("  purge_interval   = %s", cfg.NotificationsPurgeInterval)
	log.Printf("  email_sender     = %s", cfg.EmailSenderMode)
	if cfg.EmailSenderMode == "smtp" {
		log.Printf("  smtp_host        = %s", nonEmptyOrDash(cfg.SMTPHost))
		log.Printf("  smtp_port        = %d", cfg.SMTPPort)
		log.Printf("  smtp_from        = %s", nonEmptyOrDash(cfg.SMTPFrom))
		log.Printf("  smtp_password    = %s", setOrNot(cfg.SMTPPassword))
	}
	log.Printf("  push_mode        = %s", cfg.Push.Mode)
	if cfg.Push.Mode == config.PushModeSNS {
		log.Printf("  sns_topic_arn    = %s", nonEmptyOrDash(cfg.Push.SNSTopicARN))
	}

	log.Println("---- blob ----")
	log.Printf("  blob_mode        = %s", cfg.Blob.Mode)
	if cfg.Blob.Mode != config.BlobModeLocal {
		log.Printf("  s3: %s", cfg.Blob.S3.DiagnosticsSummary())
	}

	log.Println("==========================================")
}

// validateProductionConfig performs fatal checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config) {
	isProd := cfg.Env == "production" || cfg.Env == "staging"

	if cfg.Blob.Mode == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			log.Fatalf("FATAL blob: BLOB_MODE is 's3' but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if cfg.Push.Mode == config.PushModeSNS && strings.TrimSpace(cfg.Push.SNSTopicARN) == "" {
		log.Fatal("FATAL push: PUSH_MODE=sns but SNS_TOPIC_ARN is not set")
	}

	if cfg.EmailSenderMode == "smtp" {
		var missing []string
		if strings.TrimSpace(cfg.SMTPHost) == "" {
			missing = append(missing, "SMTP_HOST")
		}
		if cfg.SMTPPort <= 0 {
			missing = append(missing, "SMTP_PORT")
		}
		if strings.TrimSpace(cfg.SMTPFrom) == "" {
			missing = append(missing, "SMTP_FROM")
		}
		if len(missing) > 0 {
			log.Fatalf("FATAL mailer: EMAIL_SENDER_MODE=smtp but config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if isProd && cfg.AuthMode == "dev" {
		log.Printf("WARN auth: AUTH_MODE=dev in %s issues tokens to anyone", cfg.Env)
	}

	if isProd && cfg.AuthRequired && cfg.JWTSecret == "change_me" {
		log.Fatalf("FATAL auth: JWT_SECRET must not be 'change_me' in %s with AUTH_REQUIRED=1", cfg.Env)
	}

	if isProd && cfg.DatabaseURL == "" {
		log.Fatalf("FATAL db: no DATABASE_URL configured in %s", cfg.Env)
	}
}

// ---- helpers (no secrets) ----

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return fmt.Sprintf("set (DEFAULT, insecure '%s')", insecureDefault)
	}
	return "set (custom)"
}

func describeDBURL(runtime, pooled string) string {
	if runtime == "" {
		return "not set (will use in-memory storage)"
	}
	if pooled != "" && runtime == pooled {
		return "set (via DATABASE_URL_POOLED)"
	}
	return "set"
}
