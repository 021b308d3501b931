package cmd

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check if the voicebridge server is running",
	Run: func(cmd *cobra.Command, args []string) {
		port := viper.GetInt("port")
		res, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))

		if err != nil {
			log.Fatal().Err(err).Msg("Healthcheck failed")
		}

		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			log.Fatal().Int("status", res.StatusCode).Msg("Healthcheck failed")
		}

		log.Info().Msg("Server is healthy")
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
