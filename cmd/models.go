package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available benchmark models",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry("")
		if err != nil {
			return err
		}
		for _, name := range reg.Names() {
			m, err := reg.Lookup(name)
			if err != nil {
				return err
			}
			target := "-"
			if m.Database != "" {
				target = m.Database + "." + m.Table
			}
			gen := " "
			if m.CanGenerate() {
				gen = "g"
			}
			fmt.Printf("%-12s [%s] %-24s %2d columns, %d queries\n",
				m.Name, gen, target, len(m.Columns), len(m.Queries))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
