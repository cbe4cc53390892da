package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"agendazap/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type SchedulingConfig struct {
	Timezone          string        `yaml:"timezone"`
	Turns             TurnsConfig   `yaml:"turns"`
	DebounceWindow    time.Duration `yaml:"debounce_window"`
	ProposalTTL       time.Duration `yaml:"proposal_ttl"`
	AffirmativeTokens []string      `yaml:"affirmative_tokens"`
	CancelTokens      []string      `yaml:"cancel_tokens"`
	UpcomingTokens    []string      `yaml:"upcoming_tokens"`
	ReminderTime      string        `yaml:"reminder_time"`
	ReminderDayOffset int           `yaml:"reminder_day_offset"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	Workers           int           `yaml:"workers"`
	GenericReply      string        `yaml:"generic_reply"`
}

// TurnsConfig holds the band boundaries: morning ends where afternoon
// starts, afternoon ends where evening starts.
type TurnsConfig struct {
	AfternoonStart string `yaml:"afternoon_start"`
	EveningStart   string `yaml:"evening_start"`
}

type DialogueConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type WhatsAppConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
}

type WorkerConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID         string `yaml:"spreadsheet_id"`
	SheetName             string `yaml:"sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// expand ${VAR} references before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Scheduling.Location(); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}

	afternoon, err := models.ParseTimeOfDay(c.Scheduling.Turns.AfternoonStart)
	if err != nil {
		return fmt.Errorf("scheduling.turns.afternoon_start: %w", err)
	}
	evening, err := models.ParseTimeOfDay(c.Scheduling.Turns.EveningStart)
	if err != nil {
		return fmt.Errorf("scheduling.turns.evening_start: %w", err)
	}
	if afternoon.Minutes() >= evening.Minutes() {
		return errors.New("scheduling.turns: afternoon_start must be before evening_start")
	}

	if _, err := models.ParseTimeOfDay(c.Scheduling.ReminderTime); err != nil {
		return fmt.Errorf("scheduling.reminder_time: %w", err)
	}

	if c.Scheduling.ReminderDayOffset < 0 {
		return errors.New("scheduling.reminder_day_offset must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	if c.Google.Enabled && (c.Google.GoogleCredentialsFile == "" || c.Google.SpreadsheetID == "") {
		return errors.New("google credentials_file and spreadsheet_id are required when google is enabled")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// Location loads the configured timezone.
func (s SchedulingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	s := &c.Scheduling
	if s.Timezone == "" {
		s.Timezone = models.DefaultTimezone
	}
	if s.Turns.AfternoonStart == "" {
		s.Turns.AfternoonStart = "12:00"
	}
	if s.Turns.EveningStart == "" {
		s.Turns.EveningStart = "18:00"
	}
	if s.DebounceWindow == 0 {
		s.DebounceWindow = models.DefaultDebounceWindow
	}
	if s.ProposalTTL == 0 {
		s.ProposalTTL = models.DefaultProposalTTL
	}
	if len(s.AffirmativeTokens) == 0 {
		s.AffirmativeTokens = []string{
			"confirm", "confirmo", "sim", "ok", "pode agendar",
			"pode confirmar", "pode marcar", "claro", "yes",
		}
	}
	if len(s.CancelTokens) == 0 {
		s.CancelTokens = []string{"cancelar", "cancela", "desmarcar", "desmarca", "desisti"}
	}
	if len(s.UpcomingTokens) == 0 {
		s.UpcomingTokens = []string{
			"meus agendamentos", "minhas consultas", "meus horarios",
			"meus compromissos", "minha agenda",
		}
	}
	if s.ReminderTime == "" {
		s.ReminderTime = "08:00"
	}
	if s.RateLimitMessages == 0 {
		s.RateLimitMessages = models.RateLimitMessages
	}
	if s.RateLimitWindow == 0 {
		s.RateLimitWindow = models.RateLimitWindow
	}
	if s.Workers == 0 {
		s.Workers = 8
	}
	if s.GenericReply == "" {
		s.GenericReply = "Estamos verificando sua solicitação, aguarde um instante por favor."
	}

	if c.Dialogue.Timeout == 0 {
		c.Dialogue.Timeout = 30 * time.Second
	}
	if c.WhatsApp.Timeout == 0 {
		c.WhatsApp.Timeout = 10 * time.Second
	}
	if c.WhatsApp.RPS == 0 {
		c.WhatsApp.RPS = 5
	}
	if c.WhatsApp.Burst == 0 {
		c.WhatsApp.Burst = 10
	}

	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 30 * time.Second
	}

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Agendamentos"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
}
