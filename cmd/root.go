package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clinicore/ms-go-paylinks/config"
)

var rootCmd = &cobra.Command{
	Use:   "paylinks",
	Short: "Payment links microservice",
	Long:  "A payment-links microservice for therapist clinics: checkout redirection, provider callbacks, and link lifecycle jobs.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
