package setup

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/logging"
	"github.com/go-scimm/scimm/internal/notify"
	"github.com/go-scimm/scimm/internal/scrape"
	"github.com/go-scimm/scimm/internal/srvenv"
	"github.com/go-scimm/scimm/internal/trainer"
	"github.com/kelseyhightower/envconfig"
)

// FileEnv names the optional TOML file applied over the environment.
const FileEnv = "SCIMM_CONFIG_FILE"

const (
	SvcModeCollect string = "COLLECT"
	SvcModeScrape  string = "SCRAPE"
)

type SvcModeConfigProvider interface {
	SvcMode() string
}

type NotifierConfigProvider interface {
	NotifyConfig() *notify.Config
}

type ScrapeConfigProvider interface {
	ScrapeConfig() *scrape.Config
}

type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

type TrainerConfigProvider interface {
	TrainerConfig() *trainer.Config
}

// Setup processes the environment into config and builds the service
// environment for the components config provides.
func Setup(ctx context.Context, config interface{}) (*srvenv.SrvEnv, error) {
	logger := logging.FromContext(ctx)
	if err := Load(config); err != nil {
		return nil, err
	}

	var (
		serverEnvOpts []srvenv.Option
		db            *database.DB
	)
	if dbConfigProvider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("configuring db")
		dbFromEnv, err := database.NewFromEnv(ctx, dbConfigProvider.DatabaseConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		db = dbFromEnv
		serverEnvOpts = append(serverEnvOpts, srvenv.WithDatabase(db))
	}

	if trainerConfigProvider, ok := config.(TrainerConfigProvider); ok {
		logger.Info("configuring trainer")
		if db == nil {
			return nil, fmt.Errorf("trainer requires a database config")
		}
		provideFn, err := ProvideTrainerFor(trainerConfigProvider, db)
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("unable create trainer provide function: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, srvenv.WithTrainer(provideFn))
	}

	if notifyConfigProvider, ok := config.(NotifierConfigProvider); ok && db != nil {
		logger.Info("configuring notifier")
		serverEnvOpts = append(serverEnvOpts, srvenv.WithNotifier(ProvideNotifierFor(notifyConfigProvider, db)))
	}

	if svcModeConfigProvider, ok := config.(SvcModeConfigProvider); ok && svcModeConfigProvider.SvcMode() == SvcModeScrape {
		if scrapeConfigProvider, ok := config.(ScrapeConfigProvider); ok {
			logger.Info("configuring scrapper")
			serverEnvOpts = append(serverEnvOpts, srvenv.WithScrapper(ProvideScrapperFor(scrapeConfigProvider)))
		}
	}

	return srvenv.New(serverEnvOpts...), nil
}

// Load fills config from defaults and the environment, then applies the
// file named by SCIMM_CONFIG_FILE when it is set.
func Load(config interface{}) error {
	if err := envconfig.Process("", config); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	fileName := os.Getenv(FileEnv)
	if fileName == "" {
		return nil
	}
	if _, err := toml.DecodeFile(fileName, config); err != nil {
		return fmt.Errorf("error loading config file %s: %w", fileName, err)
	}
	return nil
}

func ProvideTrainerFor(provider TrainerConfigProvider, db *database.DB) (trainer.ProvideFn, error) {
	cfg := provider.TrainerConfig()
	if err := cfg.ModelConfig().Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	return func(notifier trainer.TrainNotifier, shutdownCh chan<- error) (trainer.Manager, error) {
		m, err := trainer.New(
			db,
			shutdownCh,
			trainer.WithNotifier(notifier),
			trainer.WithModelConfig(cfg.ModelConfig()),
			trainer.WithBackgroundGC(cfg.BackgroundGC),
			trainer.WithMinSamples(cfg.MinSamples),
			trainer.WithRetrainInterval(cfg.RetrainInterval),
			trainer.WithMaxConcurrentTrain(cfg.MaxConcurrentTrain),
			trainer.WithRebuildDBTime(cfg.RebuildDBTime),
			trainer.WithMaxItemsStored(cfg.MaxItemsStored),
			trainer.WithMaxStorageTime(cfg.MaxStorageTime),
			trainer.WithDBFlushSize(cfg.DBFlushSize),
			trainer.WithDBFlushTime(cfg.DBFlushTime),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	}, nil
}

func ProvideNotifierFor(provider NotifierConfigProvider, db *database.DB) notify.ProvideFn {
	cfg := provider.NotifyConfig()
	return func(shutdownCh chan<- error) (notify.Manager, error) {
		m, err := notify.New(
			db,
			shutdownCh,
			notify.WithTargets(cfg.Targets),
			notify.WithInterval(cfg.Interval),
			notify.WithMaxConcurrentRequest(cfg.MaxConcurrentRequest),
			notify.WithRequestTimeout(cfg.RequestTimeout),
			notify.WithMaxPending(cfg.MaxPending),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func ProvideScrapperFor(provider ScrapeConfigProvider) scrape.ProvideFn {
	cfg := provider.ScrapeConfig()
	return func(collector trainer.Collector, shutdownCh chan<- error) (scrape.Manager, error) {
		m, err := scrape.New(
			collector,
			shutdownCh,
			scrape.WithTargets(cfg.Targets),
			scrape.WithInterval(cfg.Interval),
			scrape.WithMaxConcurrentRequest(cfg.MaxConcurrentRequest),
			scrape.WithRequestTimeout(cfg.RequestTimeout),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
