package cmd

import (
	"voicebridge/internal/bootstrap"
	"voicebridge/internal/config"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "voicebridge",
	Short: "Voice-assistant bridge for IoT platform devices.",
	Long:  `Voicebridge links voice-assistant accounts to an IoT platform tenant and translates assistant intents into platform device-control calls.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Get config
		log.Info().Msg("Parsing config")
		var conf config.Config
		parseErr := viper.Unmarshal(&conf)
		HandleError(parseErr, "Failed to parse config")

		// Validate config
		log.Info().Msg("Validating config")
		validate := validator.New()
		validateErr := validate.Struct(conf)
		HandleError(validateErr, "Invalid config")

		// Log level
		level, levelErr := zerolog.ParseLevel(conf.LogLevel)
		HandleError(levelErr, "Invalid log level")
		zerolog.SetGlobalLevel(level)

		// Bootstrap and run
		app := bootstrap.NewBootstrapApp(conf)
		HandleError(app.Setup(), "Failed to start voicebridge")
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func HandleError(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

func init() {
	viper.AutomaticEnv()
	rootCmd.Flags().Int("port", 3000, "Port to run the server on.")
	rootCmd.Flags().String("address", "0.0.0.0", "Address to bind the server to.")
	rootCmd.Flags().String("database-path", "./voicebridge.db", "Path to the sqlite database file.")
	rootCmd.Flags().String("client-id", "", "OAuth2 client ID the assistant platform must present.")
	rootCmd.Flags().String("client-secret", "", "OAuth2 client secret the assistant platform must present.")
	rootCmd.Flags().String("users", "", "Comma separated list of users in the format username:bcrypt-hashed-password.")
	rootCmd.Flags().String("users-file", "", "Path to a file containing users in the format username:bcrypt-hashed-password.")
	rootCmd.Flags().String("platform-url", "", "Base URL of the IoT platform API.")
	rootCmd.Flags().String("platform-username", "", "Service account username for the platform API.")
	rootCmd.Flags().String("platform-password", "", "Service account password for the platform API.")
	rootCmd.Flags().Int("rpc-timeout", 10, "Device RPC timeout in seconds.")
	rootCmd.Flags().Int("sweep-interval", 30, "Expired token/code sweep interval in minutes.")
	rootCmd.Flags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal, panic).")
	rootCmd.Flags().String("trusted-proxies", "", "Comma separated list of trusted proxies.")
	viper.BindEnv("port", "PORT")
	viper.BindEnv("address", "ADDRESS")
	viper.BindEnv("database-path", "DATABASE_PATH")
	viper.BindEnv("client-id", "CLIENT_ID")
	viper.BindEnv("client-secret", "CLIENT_SECRET")
	viper.BindEnv("users", "USERS")
	viper.BindEnv("users-file", "USERS_FILE")
	viper.BindEnv("platform-url", "PLATFORM_URL")
	viper.BindEnv("platform-username", "PLATFORM_USERNAME")
	viper.BindEnv("platform-password", "PLATFORM_PASSWORD")
	viper.BindEnv("rpc-timeout", "RPC_TIMEOUT")
	viper.BindEnv("sweep-interval", "SWEEP_INTERVAL")
	viper.BindEnv("log-level", "LOG_LEVEL")
	viper.BindEnv("trusted-proxies", "TRUSTED_PROXIES")
	viper.BindPFlags(rootCmd.Flags())
}
