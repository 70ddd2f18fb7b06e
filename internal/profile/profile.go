package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where recall stores its own data
	DSN string
	// Driver is the storage driver (jsonfile, sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Ollama configuration
	OllamaBaseURL       string // RECALL_OLLAMA_BASE_URL (default: http://127.0.0.1:11434)
	ChatModel           string // RECALL_CHAT_MODEL (default: llama3.2:1b)
	SummaryModel        string // RECALL_SUMMARY_MODEL (default: llama3.2:1b)
	EmbeddingModel      string // RECALL_EMBEDDING_MODEL (default: nomic-embed-text:latest)
	EmbeddingDimensions int    // RECALL_EMBEDDING_DIMENSIONS (default: 768)

	// Session registry
	MaxSessions    int           // RECALL_MAX_SESSIONS (default: 256)
	SessionIdleTTL time.Duration // RECALL_SESSION_IDLE_TTL (default: 30m)

	// AgentsFile seeds the agent presets on first start.
	AgentsFile string // RECALL_AGENTS_FILE
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads the model and registry configuration from RECALL_* environment variables.
// Values already set on the profile win over the environment.
func (p *Profile) FromEnv() {
	setString := func(dst *string, key, defaultValue string) {
		if *dst == "" {
			*dst = getEnvOrDefault(key, defaultValue)
		}
	}

	setString(&p.OllamaBaseURL, "RECALL_OLLAMA_BASE_URL", "http://127.0.0.1:11434")
	setString(&p.ChatModel, "RECALL_CHAT_MODEL", "llama3.2:1b")
	setString(&p.SummaryModel, "RECALL_SUMMARY_MODEL", "llama3.2:1b")
	setString(&p.EmbeddingModel, "RECALL_EMBEDDING_MODEL", "nomic-embed-text:latest")
	setString(&p.AgentsFile, "RECALL_AGENTS_FILE", "")

	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = getIntEnv("RECALL_EMBEDDING_DIMENSIONS", 768)
	}
	if p.MaxSessions == 0 {
		p.MaxSessions = getIntEnv("RECALL_MAX_SESSIONS", 256)
	}
	if p.SessionIdleTTL == 0 {
		p.SessionIdleTTL = 30 * time.Minute
		if raw := os.Getenv("RECALL_SESSION_IDLE_TTL"); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				p.SessionIdleTTL = d
			} else {
				slog.Warn("invalid session idle ttl, using default", slog.String("value", raw))
			}
		}
	}
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "recall")
		} else {
			p.Data = "/var/opt/recall"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}
	if _, err := os.Stat(p.Data); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Data, 0770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "jsonfile"
	}
	switch p.Driver {
	case "jsonfile":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, "conversations")
		}
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("recall_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("postgres driver requires a DSN")
		}
	default:
		return errors.Errorf("unknown driver %q: only jsonfile, sqlite and postgres are supported", p.Driver)
	}

	if p.MaxSessions <= 0 {
		return errors.Errorf("max sessions must be positive, got %d", p.MaxSessions)
	}
	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("embedding dimensions must be positive, got %d", p.EmbeddingDimensions)
	}

	return nil
}
