package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type BotConfig struct {
	Token             string
	AppID             string
	ScopeID           string
	AllowedChannelIDs []string
	OwnerID           string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type LogConfig struct {
	Level  string // trace|debug|info|warn|error
	Format string // json|console
}

type UpscaleConfig struct {
	Enabled  bool
	Model    string
	Workflow string // ultimate | simple
}

type PurgeConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

type Config struct {
	Bot     BotConfig
	Backend BackendConfig
	Log     LogConfig
	Upscale UpscaleConfig
	Purge   PurgeConfig

	DBPath                string
	WorkflowDir           string
	DefaultNegativePrompt string
	CivitaiAPIKey         string
	OpsPort               int
}

// Load reads configuration from the environment (a .env file is honoured when
// present). Missing required values fail with a field-level diagnostic.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var missing []string

	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.Bot.Token = req("TOKEN")
	cfg.Bot.AppID = req("APP_ID")
	cfg.Bot.ScopeID = req("SCOPE_ID")
	cfg.Bot.OwnerID = req("OWNER_ID")
	cfg.DBPath = req("DB_PATH")

	for _, id := range strings.Split(os.Getenv("ALLOWED_CHANNEL_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Bot.AllowedChannelIDs = append(cfg.Bot.AllowedChannelIDs, id)
		}
	}
	if len(cfg.Bot.AllowedChannelIDs) == 0 {
		missing = append(missing, "ALLOWED_CHANNEL_IDS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	cfg.Backend.BaseURL = getenv("BACKEND_BASE_URL", "http://127.0.0.1:8188")
	timeoutMs, err := getenvInt("BACKEND_TIMEOUT_MS", 300_000)
	if err != nil {
		return nil, err
	}
	cfg.Backend.Timeout = time.Duration(timeoutMs) * time.Millisecond

	cfg.Log.Level = getenv("LOG_LEVEL", "info")
	cfg.Log.Format = getenv("LOG_FORMAT", "json")

	cfg.Upscale.Enabled, err = getenvBool("UPSCALE_ENABLED", false)
	if err != nil {
		return nil, err
	}
	cfg.Upscale.Model = os.Getenv("UPSCALE_MODEL")
	cfg.Upscale.Workflow = getenv("UPSCALE_WORKFLOW", "simple")
	if w := cfg.Upscale.Workflow; w != "simple" && w != "ultimate" {
		return nil, fmt.Errorf("UPSCALE_WORKFLOW must be \"simple\" or \"ultimate\", got %q", w)
	}
	if cfg.Upscale.Enabled && cfg.Upscale.Model == "" {
		return nil, fmt.Errorf("UPSCALE_MODEL is required when UPSCALE_ENABLED is set")
	}

	maxAgeHours, err := getenvInt("PURGE_MAX_AGE_HOURS", 48)
	if err != nil {
		return nil, err
	}
	intervalHours, err := getenvInt("PURGE_INTERVAL_HOURS", 6)
	if err != nil {
		return nil, err
	}
	cfg.Purge.MaxAge = time.Duration(maxAgeHours) * time.Hour
	cfg.Purge.Interval = time.Duration(intervalHours) * time.Hour

	cfg.WorkflowDir = getenv("WORKFLOW_DIR", "workflows")
	cfg.DefaultNegativePrompt = os.Getenv("DEFAULT_NEGATIVE_PROMPT")
	cfg.CivitaiAPIKey = os.Getenv("CIVITAI_API_KEY")

	cfg.OpsPort, err = getenvInt("OPS_PORT", 9090)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
