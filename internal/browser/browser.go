// Package browser controla o Chromium (go-rod) usado para ler o calendário de
// presença, que só existe depois do JavaScript do portal rodar.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"
	"github.com/iZcy/kkn-script-presensi/pkg/config"
	"github.com/rs/zerolog"
)

// ProfilePrefix identifica os perfis temporários criados por Launch.
const ProfilePrefix = "presensi_profile_"

type Options struct {
	Headless  bool
	Bin       string
	DebugPort string
	// TempDir é onde o perfil é criado; vazio usa os.TempDir().
	TempDir string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Headless:  cfg.Browser.Headless,
		Bin:       cfg.Browser.Bin,
		DebugPort: cfg.Browser.DebugPort,
	}
}

// Browser é um Chromium com perfil descartável. Close encerra o processo e
// apaga o perfil; precisa ser chamado em todo caminho de saída.
type Browser struct {
	*rod.Browser
	launcher *launcher.Launcher
	profile  string
	log      zerolog.Logger
}

// Launch inicia o Chromium com um perfil novo. O perfil não é reaproveitado
// entre execuções: a sessão vem sempre dos cookies do login HTTP.
func Launch(ctx context.Context, opts Options, log zerolog.Logger) (*Browser, error) {
	log = log.With().Str("component", "browser").Logger()

	base := opts.TempDir
	if base == "" {
		base = os.TempDir()
	}
	profile := filepath.Join(base, ProfilePrefix+uuid.NewString())
	if err := os.MkdirAll(profile, 0700); err != nil {
		return nil, fmt.Errorf("erro criando perfil do browser: %w", err)
	}

	bin := opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		UserDataDir(profile).
		Leakless(false).
		Set("disable-gpu").          // Evita problemas de GPU em containers
		Set("no-sandbox").           // Necessário em containers Linux
		Set("disable-dev-shm-usage") // /dev/shm pequeno em docker

	if opts.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false) // Para desenvolvimento/VNC (Permite ver a tela)
	}

	u, err := l.Launch()
	if err != nil {
		os.RemoveAll(profile)
		return nil, fmt.Errorf("erro ao iniciar browser: %w", err)
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		l.Kill()
		os.RemoveAll(profile)
		return nil, fmt.Errorf("erro conectando ao browser: %w", err)
	}

	if opts.DebugPort != "" {
		// Monitor para debug remoto
		go rb.ServeMonitor(opts.DebugPort)
	}

	log.Info().Str("profile", profile).Bool("headless", opts.Headless).Msg("Browser iniciado")
	return &Browser{Browser: rb, launcher: l, profile: profile, log: log}, nil
}

func (b *Browser) Close() error {
	err := b.Browser.Close()
	b.launcher.Kill()
	if rmErr := os.RemoveAll(b.profile); rmErr != nil {
		b.log.Warn().Err(rmErr).Str("profile", b.profile).Msg("Erro removendo perfil do browser")
	}
	b.log.Info().Msg("Browser encerrado")
	return err
}
