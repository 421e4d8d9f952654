package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"

	ConverterYtDlp  = "ytdlp"
	ConverterDirect = "direct"
)

// Duration reads "90s"-style values from both config.json and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) EnvDecode(val string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// bare numbers are seconds
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return d.EnvDecode(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type Config struct {
	Host     string `json:"host" env:"HOST, overwrite"`
	Port     int    `json:"port" env:"PORT, overwrite"`
	LogLevel string `json:"log_level" env:"LOG_LEVEL, overwrite"`
	LogJSON  bool   `json:"log_json" env:"LOG_JSON, overwrite"`

	DataDir string `json:"data_dir" env:"DATA_DIR, overwrite"`
	WorkDir string `json:"work_dir" env:"WORK_DIR, overwrite"`

	StoreBackend  string   `json:"store_backend" env:"STORE_BACKEND, overwrite"`
	RedisAddress  string   `json:"redis_address" env:"REDIS_ADDRESS, overwrite"`
	RedisPassword string   `json:"redis_password" env:"REDIS_PASSWORD, overwrite"`
	RedisDB       int      `json:"redis_db" env:"REDIS_DB, overwrite"`
	TaskTTL       Duration `json:"task_ttl" env:"TASK_TTL, overwrite"`
	SweepInterval Duration `json:"sweep_interval" env:"SWEEP_INTERVAL, overwrite"`

	MaxConcurrentJobs int      `json:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS, overwrite"`
	MaxQueuedJobs     int      `json:"max_queued_jobs" env:"MAX_QUEUED_JOBS, overwrite"`
	JobTimeout        Duration `json:"job_timeout" env:"JOB_TIMEOUT, overwrite"`

	Converter    string            `json:"converter" env:"CONVERTER, overwrite"`
	AudioCodec   string            `json:"audio_codec" env:"AUDIO_CODEC, overwrite"`
	AudioQuality string            `json:"audio_quality" env:"AUDIO_QUALITY, overwrite"`
	InstallYtDlp bool              `json:"install_ytdlp" env:"INSTALL_YTDLP, overwrite"`
	FFmpegPath   string            `json:"ffmpeg_path" env:"FFMPEG_PATH, overwrite"`
	Aria2RPCUrl  string            `json:"aria2_rpc_url" env:"ARIA2_RPC_URL, overwrite"`
	Aria2Secret  string            `json:"aria2_secret" env:"ARIA2_SECRET, overwrite"`
	ResolveHLS   bool              `json:"resolve_hls" env:"RESOLVE_HLS, overwrite"`
	FetchTimeout Duration          `json:"fetch_timeout" env:"FETCH_TIMEOUT, overwrite"`
	Headers      map[string]string `json:"headers"`

	KafkaAddress string `json:"kafka_address" env:"KAFKA_ADDRESS, overwrite"`
	KafkaTopic   string `json:"kafka_topic" env:"KAFKA_TOPIC, overwrite"`

	RequestsPerSecond float64 `json:"requests_per_second" env:"REQUESTS_PER_SECOND, overwrite"`
	Burst             int     `json:"burst" env:"BURST, overwrite"`
}

func Default() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8084,
		LogLevel: "info",

		DataDir: "./data",

		StoreBackend:  BackendMemory,
		RedisAddress:  "localhost:6379",
		TaskTTL:       Duration(time.Hour),
		SweepInterval: Duration(5 * time.Minute),

		MaxConcurrentJobs: 4,
		MaxQueuedJobs:     100,

		Converter:    ConverterYtDlp,
		AudioCodec:   "mp3",
		AudioQuality: "192",
		FFmpegPath:   "ffmpeg",
		Aria2RPCUrl:  "http://localhost:6800/jsonrpc",
		ResolveHLS:   true,
		FetchTimeout: Duration(30 * time.Second),
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},

		KafkaTopic: "audio-tasks",

		RequestsPerSecond: 5,
		Burst:             10,
	}
}

// Load starts from Default, overlays path (a missing file is fine) and then
// the process environment.
func Load(ctx context.Context, path string) (Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := envconfig.ProcessWith(c, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("expected port to be between 1 and 65535 but received: %d", cfg.Port)
	}

	if net.ParseIP(cfg.Host) == nil && cfg.Host != "localhost" {
		return fmt.Errorf("expected valid IP address but received: %q", cfg.Host)
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}

	switch cfg.Converter {
	case ConverterYtDlp, ConverterDirect:
	default:
		return fmt.Errorf("unknown converter: %q", cfg.Converter)
	}

	if cfg.AudioCodec == "" {
		return fmt.Errorf("audio codec must not be empty")
	}
	if cfg.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max concurrent jobs must be at least 1, got %d", cfg.MaxConcurrentJobs)
	}
	if cfg.TaskTTL < 0 || cfg.JobTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}
