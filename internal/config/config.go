package config

import (
	"github.com/go-scimm/scimm/internal/classify"
	"github.com/go-scimm/scimm/internal/collect"
	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/notify"
	"github.com/go-scimm/scimm/internal/score"
	"github.com/go-scimm/scimm/internal/scrape"
	"github.com/go-scimm/scimm/internal/setup"
	"github.com/go-scimm/scimm/internal/train"
	"github.com/go-scimm/scimm/internal/trainer"
)

var (
	_ setup.DatabaseConfigProvider = (*Config)(nil)
	_ setup.TrainerConfigProvider  = (*Config)(nil)
	_ setup.NotifierConfigProvider = (*Config)(nil)
	_ setup.ScrapeConfigProvider   = (*Config)(nil)
	_ setup.SvcModeConfigProvider  = (*Config)(nil)
)

// Config is the configuration of the scimm-srv service.
type Config struct {
	// COLLECT accepts samples on /collect, SCRAPE polls the scrape targets
	SvcModeType string `envconfig:"SCIMM_SVC_MODE" default:"COLLECT" toml:"svc_mode"`
	SrvAddr     string `envconfig:"SCIMM_ADDR" default:":8787" toml:"addr"`
	// gRPC health endpoint, disabled when empty
	GRPCAddr         string `envconfig:"SCIMM_GRPC_ADDR" toml:"grpc_addr"`
	MetricsNamespace string `envconfig:"SCIMM_METRICS_NAMESPACE" default:"scimm" toml:"metrics_namespace"`
	// Maximum number of simultaneous HTTP connections, 0 is unlimited
	MaxConnections int `envconfig:"SCIMM_MAX_CONNECTIONS" default:"0" toml:"max_connections"`

	Trainer  trainer.Config  `toml:"trainer"`
	Collect  collect.Config  `toml:"collect"`
	Score    score.Config    `toml:"score"`
	Train    train.Config    `toml:"train"`
	Classify classify.Config `toml:"classify"`
	Database database.Config `toml:"database"`
	Notify   notify.Config   `toml:"notify"`
	Scrape   scrape.Config   `toml:"scrape"`
}

func (c *Config) SvcMode() string {
	return c.SvcModeType
}

func (c *Config) NotifyConfig() *notify.Config {
	return &c.Notify
}

func (c *Config) ScrapeConfig() *scrape.Config {
	return &c.Scrape
}

func (c *Config) TrainerConfig() *trainer.Config {
	return &c.Trainer
}

func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}
