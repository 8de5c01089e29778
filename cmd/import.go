package cmd

import (
	"github.com/spf13/cobra"

	"oidbs/internal/bench"
)

var importFlags struct {
	run runFlags

	model          string
	data           string
	endpoint       string
	rowsPerPublish int
	setupSchema    bool
	schemaEndpoint string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Publish a materialized dataset into a target over MQTT",
	Long: `Replays the shard files written by gen into the target's ingestion
endpoint. Shards are spread round-robin across the devices; every line of
every shard is published exactly once on a clean run.

--setup-schema runs the model DDL against --schema-endpoint first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry(importFlags.model)
		if err != nil {
			return err
		}

		cfg := bench.RunConfig{
			Model:          importFlags.model,
			Workload:       bench.WorkloadImport,
			IngestEndpoint: importFlags.endpoint,
			QueryEndpoint:  importFlags.schemaEndpoint,
			DataDir:        importFlags.data,
			RowsPerPublish: importFlags.rowsPerPublish,
			SetupSchema:    importFlags.setupSchema,
		}
		importFlags.run.apply(&cfg)

		return importFlags.run.execute(cfg, reg)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFlags.model, "model", "m", "pstations", "benchmark model")
	importCmd.Flags().StringVar(&importFlags.data, "data", "data", "dataset root directory (as written by gen)")
	importCmd.Flags().StringVarP(&importFlags.endpoint, "endpoint", "e", "", "ingestion endpoint URI (mqtt://host:1883)")
	importCmd.Flags().IntVar(&importFlags.rowsPerPublish, "rows-per-publish", 100, "rows batched into one publish")
	importCmd.Flags().BoolVar(&importFlags.setupSchema, "setup-schema", false, "run the model DDL before importing")
	importCmd.Flags().StringVar(&importFlags.schemaEndpoint, "schema-endpoint", "", "query endpoint for schema setup")
	importFlags.run.register(importCmd)
	importCmd.MarkFlagRequired("endpoint")
}
