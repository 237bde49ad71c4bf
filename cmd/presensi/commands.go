package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/iZcy/kkn-script-presensi/internal/browser"
	"github.com/iZcy/kkn-script-presensi/internal/export"
	"github.com/iZcy/kkn-script-presensi/internal/portal"
	"github.com/iZcy/kkn-script-presensi/internal/server"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/spf13/cobra"
)

const (
	envUsername = "UGM_USERNAME"
	envPassword = "UGM_PASSWORD"

	profileSweepInterval = 30 * time.Minute
)

var errBusy = errors.New("já existe uma checagem em andamento")

func newCheckCmd() *cobra.Command {
	var (
		format   string
		outDir   string
		report   bool
		noExport bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Roda uma checagem agora e exporta a planilha do dia",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := readCredential(os.Stdin, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			release, ok, err := a.coord.TryAcquire(ctx)
			if err != nil {
				return err
			}
			if !ok {
				a.metrics.Inc(ctx, metrics.RunsRejectedTotal)
				return errBusy
			}
			defer release()

			run, err := a.runner.Run(ctx, cred)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !noExport {
				if format == "" {
					format = cfg.Export.Format
				}
				if outDir == "" {
					outDir = cfg.Export.Dir
				}
				day, err := time.ParseInLocation(attendance.DateLayout, run.Date, cfg.Location())
				if err != nil {
					return err
				}
				path, err := export.Save(outDir, export.DefaultFilename(day, format), format, run)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Exportado: %s\n", path)
			}

			fmt.Fprintln(out, export.Summary(run))
			if report {
				fmt.Fprintln(out)
				fmt.Fprintln(out, export.Report(run))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "formato da planilha: csv ou xlsx (padrão: export.format)")
	cmd.Flags().StringVar(&outDir, "out", "", "diretório de saída (padrão: export.dir)")
	cmd.Flags().BoolVar(&report, "report", false, "imprime o resumo para colar no grupo")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "não grava a planilha")
	return cmd
}

// readCredential usa UGM_USERNAME/UGM_PASSWORD e pergunta o que faltar.
func readCredential(in io.Reader, prompt io.Writer) (portal.Credential, error) {
	cred := portal.Credential{
		Username: os.Getenv(envUsername),
		Password: os.Getenv(envPassword),
	}

	r := bufio.NewReader(in)
	ask := func(label string) (string, error) {
		fmt.Fprintf(prompt, "%s: ", label)
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("erro lendo %s: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}

	var err error
	if cred.Username == "" {
		if cred.Username, err = ask("Username"); err != nil {
			return cred, err
		}
	}
	if cred.Password == "" {
		if cred.Password, err = ask("Password"); err != nil {
			return cred, err
		}
	}
	if cred.Username == "" || cred.Password == "" {
		return cred, errors.New("username e password são obrigatórios")
	}
	return cred, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sobe a API HTTP que dispara checagens (POST /check)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			log := a.log

			go browser.StartProfileSweeper(ctx, profileSweepInterval, log)
			if cfg.Metrics.Port != "" {
				go func() {
					if err := metrics.StartMetricsServer(ctx, ":"+cfg.Metrics.Port, a.metrics); err != nil {
						log.Error().Err(err).Msg("Metrics server caiu")
					}
				}()
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           server.New(a.runner.Run, a.coord, a.metrics, log).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("API ouvindo")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("falha ao iniciar servidor: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("Desligando servidor...")
			// uma checagem em andamento pode levar minutos; damos uma folga antes de cortar
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown forçado: %w", err)
			}
			log.Info().Msg("Servidor encerrado")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Imprime a config efetiva (segredos mascarados)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Redis.Password = mask(masked.Redis.Password)
			masked.Meilisearch.Key = mask(masked.Meilisearch.Key)
			masked.Database.URL = mask(masked.Database.URL)

			out, err := masked.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
