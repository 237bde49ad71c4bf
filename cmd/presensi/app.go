package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iZcy/kkn-script-presensi/internal/batch"
	"github.com/iZcy/kkn-script-presensi/internal/browser"
	"github.com/iZcy/kkn-script-presensi/internal/portal"
	"github.com/iZcy/kkn-script-presensi/internal/sink"
	"github.com/iZcy/kkn-script-presensi/pkg/captcha"
	"github.com/iZcy/kkn-script-presensi/pkg/config"
	"github.com/iZcy/kkn-script-presensi/pkg/logger"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/iZcy/kkn-script-presensi/pkg/runlock"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app agrupa as dependências montadas a partir da config. A infraestrutura
// opcional (nats, redis, postgres, meilisearch) só é ligada quando configurada.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	runner  *batch.Runner
	metrics *metrics.Recorder
	coord   runlock.Coordinator
	closers []func()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}
	return config.Load()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.New(cfg.App.LogLevel, cfg.App.Env)
	a := &app{cfg: cfg, log: log}

	var nc *nats.Conn
	if cfg.Nats.URL != "" {
		conn, err := nats.Connect(cfg.Nats.URL)
		if err != nil {
			return nil, fmt.Errorf("erro NATS: %w", err)
		}
		nc = conn
		a.closers = append(a.closers, nc.Close)
		log.Info().Str("url", cfg.Nats.URL).Msg("Conectado ao NATS")
	}

	var engine captcha.Recognizer
	switch cfg.Captcha.Engine {
	case "nats":
		if nc == nil {
			a.Close()
			return nil, fmt.Errorf("captcha.engine=nats exige nats.url")
		}
		engine = captcha.NewRemote(nc, cfg.Captcha.NatsSubject, cfg.CaptchaRemoteTimeout())
	case "", "tesseract":
		engine = captcha.NewTesseract()
	default:
		a.Close()
		return nil, fmt.Errorf("captcha.engine desconhecido: %q", cfg.Captcha.Engine)
	}
	solver := captcha.NewSolver(engine, cfg.CaptchaThreshold())

	samples, err := captcha.NewSampleStore(cfg.Captcha.DatasetDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis não responde: %w", err)
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		a.metrics = metrics.NewRecorder(rdb)
		a.coord = runlock.NewRedis(rdb, runlock.DefaultKey, cfg.LockTTL())
	} else {
		a.metrics = metrics.NewRecorder(nil)
		a.coord = runlock.NewLocal()
	}

	auth, err := portal.NewAuthenticator(portal.OptionsFromConfig(cfg), solver, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	auth.WithSamples(samples).WithMetrics(a.metrics)

	var sinks []batch.Sink
	if cfg.Database.URL != "" {
		pg, err := sink.NewPostgres(ctx, cfg.Database.URL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { pg.Close(context.Background()) })
		sinks = append(sinks, pg)
	}
	if cfg.Meilisearch.Host != "" {
		sinks = append(sinks, sink.NewMeili(cfg.Meilisearch.Host, cfg.Meilisearch.Key, cfg.Meilisearch.Index, log))
	}
	if nc != nil && cfg.Nats.ResultsSubject != "" {
		ns, err := sink.NewNats(nc, cfg.Nats.ResultsSubject, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, ns)
	}

	browsers := batch.RodBrowsers(browser.OptionsFromConfig(cfg), browser.LookupOptionsFromConfig(cfg), log)
	a.runner = batch.NewRunner(batch.PortalAuth(auth), browsers, log).
		WithSinks(sinks...).
		WithMetrics(a.metrics).
		WithLocation(cfg.Location())

	return a, nil
}

// Close fecha as conexões na ordem inversa da abertura.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
