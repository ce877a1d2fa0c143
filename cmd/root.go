// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
)

type contextKey string

// configKey holds the loaded config.Interface in a command's context.
const configKey contextKey = "config"

// envPrefix namespaces environment overrides, e.g. LLMVB_ANALYSIS_BASIS.
const envPrefix = "LLMVB"

// configKeyAnnotation marks a flag as overriding the named config key.
const configKeyAnnotation = "llmvb_config_key"

// NewRootCommand builds the command tree. Each call returns an independent
// tree, so flags never leak between executions.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "llmvb",
		Short: "LLMVulnBench aggregates and scores static analysis findings of LLM generated code.",
		Long: `LLMVulnBench turns the per-run scanner findings of a prompt engineering study
into per-prompt vulnerability aggregates, normalized security scores and the
grouped comparison tables of the study.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is the normal case.
			_ = godotenv.Load()

			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeWithWriter(cfg.Logger(), cmd.ErrOrStderr())
			logger := observability.GetLogger()
			logger.Info("Starting LLMVulnBench", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	stores := NewStoreProvider()
	rootCmd.AddCommand(
		newAnalyzeCmd(stores, NewPublisherProvider()),
		newIngestCmd(stores),
		newNormalizeCmd(),
		newTablesCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree under ctx and logs a failure before
// returning it to the caller.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig layers the config file, environment and changed flags
// onto v, in increasing order of precedence.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cmd.Flags().Visit(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			v.Set(keys[0], sv.GetSlice())
			return
		}
		v.Set(keys[0], f.Value.String())
	})
	return nil
}

// bindConfigFlag ties a flag to a config key. The flag wins over file and
// environment values only when it is set explicitly.
func bindConfigFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// getConfigFromContext retrieves the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
