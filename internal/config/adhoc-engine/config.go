package adhoc_engine_config

import (
	"time"

	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	pg "github.com/NordCoder/pingerus-adhoc/internal/repository/postgres"
	engine "github.com/NordCoder/pingerus-adhoc/internal/services/adhoc"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	APIKeys         []string      `mapstructure:"api_keys"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc OTEL) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type Kafka struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type Engine struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	Lookback          time.Duration `mapstructure:"lookback"`
	RefineFromMetrics bool          `mapstructure:"refine_from_metrics"`
	DefaultDeadline   time.Duration `mapstructure:"default_deadline"`
}

func (e Engine) AsEngineConfig() engine.Config {
	return engine.Config{
		PollInterval:      e.PollInterval,
		SweepInterval:     e.SweepInterval,
		GracePeriod:       e.GracePeriod,
		QueryTimeout:      e.QueryTimeout,
		Lookback:          e.Lookback,
		RefineFromMetrics: e.RefineFromMetrics,
	}
}

type Logs struct {
	URL      string        `mapstructure:"url"`
	Tenant   string        `mapstructure:"tenant"`
	Selector string        `mapstructure:"selector"`
	Limit    int           `mapstructure:"limit"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CanRead  bool          `mapstructure:"can_read"`
}

const (
	DispatchHTTP  = "http"
	DispatchKafka = "kafka"

	ProbesPostgres = "postgres"
	ProbesFile     = "file"
)

type Dispatch struct {
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Probes struct {
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

type Config struct {
	App      App       `mapstructure:"app"`
	Server   Server    `mapstructure:"server"`
	DB       pg.Config `mapstructure:"db"`
	OTEL     OTEL      `mapstructure:"otel"`
	Log      Log       `mapstructure:"log"`
	Kafka    Kafka     `mapstructure:"kafka"`
	Engine   Engine    `mapstructure:"engine"`
	Logs     Logs      `mapstructure:"logs"`
	Dispatch Dispatch  `mapstructure:"dispatch"`
	Probes   Probes    `mapstructure:"probes"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:      c.Log.Level,
		Pretty:     c.Log.Pretty,
		App:        c.App.Name,
		Env:        c.App.Env,
		Ver:        c.App.Version,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
