package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultKey = "presensi:lock:check"

// Só apaga a chave se o token ainda for nosso. Um lock expirado e
// readquirido por outra réplica não pode ser liberado por engano.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Renova o TTL apenas enquanto o token for nosso.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis é um Coordinator distribuído baseado em SET NX com TTL. Enquanto o
// release não é chamado o TTL é renovado a cada ttl/3; ele só vence quando a
// réplica dona morre no meio da execução.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log zerolog.Logger
}

// NewRedis cria o coordinator. Se ttl for 0, usa 30 minutos.
func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{
		rdb: rdb,
		key: key,
		ttl: ttl,
		log: log.With().Str("component", "runlock").Logger(),
	}
}

func (r *Redis) WithLogger(l zerolog.Logger) *Redis {
	r.log = l.With().Str("component", "runlock").Logger()
	return r
}

func (r *Redis) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("erro adquirindo lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(token, stop)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			// contexto próprio: o ctx da requisição pode já ter sido cancelado
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, token).Err(); err != nil {
				r.log.Warn().Err(err).Str("key", r.key).Dur("ttl", r.ttl).Msg("Erro liberando lock, ele fica preso até o TTL vencer")
			}
		})
	}
	return release, true, nil
}

// keepAlive renova o lease até stop ser fechado ou o lock deixar de ser nosso.
func (r *Redis) keepAlive(token string, stop <-chan struct{}) {
	t := time.NewTicker(r.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := renewScript.Run(ctx, r.rdb, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			r.log.Warn().Err(err).Str("key", r.key).Msg("Erro renovando lock")
			continue
		}
		if n == 0 {
			r.log.Error().Str("key", r.key).Msg("Lock perdido durante a execução")
			return
		}
	}
}

// Held informa se existe uma execução em andamento em qualquer réplica.
func (r *Redis) Held(ctx context.Context) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
