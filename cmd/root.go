package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oidbs/internal/adapter"
	"oidbs/internal/adapter/mqtt"
	"oidbs/internal/adapter/postgres"
	"oidbs/internal/banner"
	"oidbs/internal/dummy"
	"oidbs/internal/model"
)

var (
	cfgFile   string
	modelsDir string
	params    []string
)

var rootCmd = &cobra.Command{
	Use:   "oidbs",
	Short: "OIDBS - Open IoT Database Benchmark Suite",
	Long: `
OIDBS benchmarks IoT databases end to end:

  gen     materialize a synthetic dataset to disk
  import  publish a dataset into a target over MQTT
  bench   run an ingestion or query workload against a target

Targets are addressed by endpoint URI: mqtt://host:1883 for ingestion,
postgres://host:5432/benchmark for queries, dummy://?latency=10ms for a
synthetic in-process target.`,
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Endpoint schemes available to every subcommand.
	adapter.RegisterIngestor("mqtt", mqtt.Ingestor{})
	adapter.RegisterIngestor("mqtts", mqtt.Ingestor{TLS: true})
	adapter.RegisterQuerier("postgres", postgres.Querier{})
	adapter.RegisterQuerier("postgresql", postgres.Querier{})
	adapter.RegisterIngestor("dummy", dummy.Ingestor{})
	adapter.RegisterQuerier("dummy", dummy.Querier{})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.oidbs.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models", "", "directory of external model definitions")
	rootCmd.PersistentFlags().StringArrayVar(&params, "param", nil, "model parameter override (e.g. num_stations=100)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".oidbs")
		}
	}
	viper.SetEnvPrefix("OIDBS")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// loadRegistry builds the model registry with external models and any
// --param overrides applied to the selected model.
func loadRegistry(modelName string) (*model.Registry, error) {
	reg := model.NewRegistry()
	if modelsDir != "" {
		if err := reg.LoadDir(modelsDir); err != nil {
			return nil, err
		}
	}
	overrides, err := parseParams(params)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := reg.Configure(modelName, overrides); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseParams(pairs []string) (map[string]int64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]int64, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, want key=value", p)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --param %q: %v", p, err)
		}
		out[strings.TrimSpace(k)] = n
	}
	return out, nil
}
