package runlock

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("erro iniciando miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return mr, NewRedis(rdb, "", time.Minute)
}

func assertExclusive(t *testing.T, c Coordinator) {
	t.Helper()
	ctx := context.Background()

	release, ok, err := c.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("primeira aquisição deveria funcionar: ok=%v err=%v", ok, err)
	}

	if _, ok, err := c.TryAcquire(ctx); ok || err != nil {
		t.Fatalf("segunda aquisição deveria ser recusada: ok=%v err=%v", ok, err)
	}

	release()
	release() // liberar duas vezes não pode quebrar nada

	release2, ok, err := c.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("aquisição após release deveria funcionar: ok=%v err=%v", ok, err)
	}
	release2()
}

func TestLocalExclusive(t *testing.T) {
	assertExclusive(t, NewLocal())
}

func TestRedisExclusive(t *testing.T) {
	_, c := setupTestRedis(t)
	assertExclusive(t, c)
}

func TestLocalConcurrentTriggers(t *testing.T) {
	c := NewLocal()
	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	releases := make(chan func(), 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if release, ok, _ := c.TryAcquire(context.Background()); ok {
				granted.Add(1)
				releases <- release
			}
		}()
	}
	close(start)
	wg.Wait()
	close(releases)

	if granted.Load() != 1 {
		t.Errorf("exatamente uma execução deveria ser aceita, foram %d", granted.Load())
	}
	for r := range releases {
		r()
	}
}

func TestLocalCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok, err := NewLocal().TryAcquire(ctx); ok || err == nil {
		t.Errorf("contexto cancelado deveria falhar: ok=%v err=%v", ok, err)
	}
}

func TestRedisExpiredLockNotReleasedByOldOwner(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	oldRelease, ok, _ := c.TryAcquire(ctx)
	if !ok {
		t.Fatalf("aquisição inicial falhou")
	}

	mr.FastForward(2 * time.Minute)

	newRelease, ok, _ := c.TryAcquire(ctx)
	if !ok {
		t.Fatalf("lock expirado deveria permitir nova aquisição")
	}

	oldRelease()
	if held, _ := c.Held(ctx); !held {
		t.Errorf("release antigo não pode apagar o lock do novo dono")
	}

	newRelease()
	if held, _ := c.Held(ctx); held {
		t.Errorf("lock deveria estar livre após o release do dono")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	if _, ok, err := c.TryAcquire(context.Background()); ok || err == nil {
		t.Errorf("esperava erro com redis fora do ar: ok=%v err=%v", ok, err)
	}
}

func TestRedisLeaseRenewedWhileHeld(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("erro iniciando miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ttl := 300 * time.Millisecond
	c := NewRedis(rdb, "", ttl)
	ctx := context.Background()

	release, ok, err := c.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("aquisição inicial falhou: ok=%v err=%v", ok, err)
	}

	// avança bem além do TTL, dando tempo real para a renovação rodar entre os saltos
	for i := 0; i < 5; i++ {
		mr.FastForward(200 * time.Millisecond)
		time.Sleep(150 * time.Millisecond)
	}

	if _, ok, err := c.TryAcquire(ctx); ok || err != nil {
		t.Fatalf("segunda execução aceita com a primeira ainda em andamento: ok=%v err=%v", ok, err)
	}

	release()
	if held, _ := c.Held(ctx); held {
		t.Errorf("lock deveria estar livre após o release")
	}

	// sem renovação depois do release: um novo dono expira normalmente
	release2, ok, _ := c.TryAcquire(ctx)
	if !ok {
		t.Fatalf("aquisição após release falhou")
	}
	defer release2()
}

func TestRedisReleaseFailureIsLogged(t *testing.T) {
	mr, c := setupTestRedis(t)
	var buf bytes.Buffer
	c.WithLogger(zerolog.New(&buf))

	release, ok, err := c.TryAcquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("aquisição inicial falhou: ok=%v err=%v", ok, err)
	}

	mr.Close()
	release()

	if !strings.Contains(buf.String(), "Erro liberando lock") {
		t.Errorf("falha no release deveria gerar aviso, log: %q", buf.String())
	}
}
