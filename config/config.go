package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort string `envconfig:"PORT" default:"3000"`

	// Bibliographie, die beim Start geladen wird
	BibTeXFile     string `envconfig:"BIBTEX_FILE" default:"/data/input.bib"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	StaticDir      string `envconfig:"STATIC_DIR" default:"public"`
	ReloadSchedule string `envconfig:"RELOAD_SCHEDULE"`

	APISecretKey       string        `envconfig:"API_SECRET_KEY"`
	RateLimitRequests  int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Optional: Persistenz der Uploads in PostgreSQL
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	// Optional: Archiv der Uploads in S3
	S3URL       string `envconfig:"S3_URL"`
	S3Key       string `envconfig:"S3_KEY"`
	S3Secret    string `envconfig:"S3_SECRET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	ArchiveKeep int    `envconfig:"ARCHIVE_KEEP" default:"20"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// PersistenceEnabled meldet, ob eine Datenbank konfiguriert ist.
func (c *Config) PersistenceEnabled() bool {
	return c.DBHost != ""
}

// ArchiveEnabled meldet, ob ein S3-Archiv konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.S3URL != "" && c.S3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d per %s", c.RateLimitRequests, c.RateLimitWindow)
	}
	return &c, nil
}
