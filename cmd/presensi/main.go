package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "time/tzdata"
)

func main() {
	// .env é opcional; em produção as variáveis vêm do ambiente
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "presensi",
		Short:        "Checa a presença diária da unidade KKN no SIMASTER",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "caminho do config.yaml (sobrescreve CONFIG_PATH)")

	root.AddCommand(newCheckCmd(), newServeCmd(), newConfigCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
