package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"oidbs/internal/bench"
)

var benchFlags struct {
	run runFlags

	model          string
	workload       string
	endpoint       string
	duration       time.Duration
	records        int64
	rowsPerPublish int
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run an ingestion or query workload against a target",
	Long: `Drives the target with a fleet of devices, one connection each.

  --workload query   rotates the model's query catalog over the pg wire
                     protocol (--endpoint postgres://host:5432/benchmark)
  --workload ingest  publishes generator output over MQTT
                     (--endpoint mqtt://host:1883), bounded by --duration
                     or --records`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(benchFlags.model)
		if err != nil {
			return err
		}

		cfg := bench.RunConfig{
			Model:          benchFlags.model,
			Workload:       benchFlags.workload,
			Duration:       benchFlags.duration,
			Records:        benchFlags.records,
			RowsPerPublish: benchFlags.rowsPerPublish,
		}
		switch benchFlags.workload {
		case bench.WorkloadQuery:
			cfg.QueryEndpoint = benchFlags.endpoint
		case bench.WorkloadIngest:
			cfg.IngestEndpoint = benchFlags.endpoint
		default:
			return fmt.Errorf("unknown workload %q (want query or ingest)", benchFlags.workload)
		}
		benchFlags.run.apply(&cfg)

		return benchFlags.run.execute(cfg, reg)
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVarP(&benchFlags.model, "model", "m", "pstations", "benchmark model")
	benchCmd.Flags().StringVarP(&benchFlags.workload, "workload", "w", "query", "workload kind (query|ingest)")
	benchCmd.Flags().StringVarP(&benchFlags.endpoint, "endpoint", "e", "", "target endpoint URI")
	benchCmd.Flags().DurationVarP(&benchFlags.duration, "duration", "d", 60*time.Second, "run duration (0 with --records runs to completion)")
	benchCmd.Flags().Int64Var(&benchFlags.records, "records", 0, "total records to ingest (ingest workload)")
	benchCmd.Flags().IntVar(&benchFlags.rowsPerPublish, "rows-per-publish", 100, "rows batched into one publish")
	benchFlags.run.register(benchCmd)
	benchCmd.MarkFlagRequired("endpoint")
}
