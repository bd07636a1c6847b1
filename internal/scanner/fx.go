package scanner

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/scanner/domain"
	"github.com/smallbiznis/martpos/internal/scanner/service"
	"github.com/smallbiznis/martpos/internal/scanner/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scanner.service",
	fx.Provide(
		provideStore,
		provideProductLookup,
		service.New,
		func(s *service.Service) domain.Service { return s },
		fx.Annotate(
			func(s *service.Service) authdomain.SessionListener { return s },
			fx.ResultTags(`group:"session_listeners"`),
		),
	),
)

func provideProductLookup(catalog catalogdomain.Service) domain.ProductLookup {
	return catalog
}

func storeOptions(cfg config.Config) store.Options {
	return store.Options{
		TokenTTL:    cfg.Scanner.TokenTTL,
		MaxQueue:    cfg.Scanner.MaxQueue,
		IdleTimeout: cfg.Scanner.IdleTimeout,
	}
}

func provideStore(lc fx.Lifecycle, cfg config.Config, client *redis.Client, clk clock.Clock, log *zap.Logger) (domain.Store, error) {
	log = log.Named("scanner.store")

	if cfg.Scanner.Store == config.ScannerStoreRedis {
		if client == nil {
			return nil, errors.New("SCANNER_STORE=redis requires REDIS_ADDR")
		}
		log.Info("using redis activation store")
		return store.NewRedisStore(client, storeOptions(cfg), clk)
	}

	mem := store.NewMemoryStore(storeOptions(cfg), clk)
	if interval := cfg.Scanner.JanitorInterval; interval > 0 {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				go store.RunJanitor(ctx, mem, interval, log)
				return nil
			},
			OnStop: func(context.Context) error {
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}
	log.Info("using in-memory activation store")
	return mem, nil
}
