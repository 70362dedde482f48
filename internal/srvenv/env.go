package srvenv

import (
	"context"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/notify"
	"github.com/go-scimm/scimm/internal/scrape"
	"github.com/go-scimm/scimm/internal/trainer"
)

type Option func(*SrvEnv) *SrvEnv

func New(opts ...Option) *SrvEnv {
	env := &SrvEnv{}
	for _, f := range opts {
		env = f(env)
	}

	return env
}

// SrvEnv holds the shared resources and component constructors of the
// service.
type SrvEnv struct {
	database *database.DB
	trainer  trainer.ProvideFn
	notifier notify.ProvideFn
	scrapper scrape.ProvideFn
}

func (s *SrvEnv) ProvideTrainer() trainer.ProvideFn {
	return s.trainer
}

func (s *SrvEnv) ProvideNotifier() notify.ProvideFn {
	return s.notifier
}

func (s *SrvEnv) ProvideScrapper() scrape.ProvideFn {
	return s.scrapper
}

func (s *SrvEnv) Database() *database.DB {
	return s.database
}

func WithTrainer(fn trainer.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.trainer = fn
		return s
	}
}

func WithNotifier(fn notify.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.notifier = fn
		return s
	}
}

func WithScrapper(fn scrape.ProvideFn) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.scrapper = fn
		return s
	}
}

func WithDatabase(db *database.DB) Option {
	return func(s *SrvEnv) *SrvEnv {
		s.database = db
		return s
	}
}

func (s *SrvEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if s.database != nil {
		return s.database.Close(ctx)
	}
	return nil
}
