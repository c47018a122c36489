package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"QuantFeed/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config <FILE>...",
	Short: "Print the deep merge of YAML files",
	Long: `Load each YAML file and print their deep merge. Later files override
earlier ones key by key; nested mappings are merged recursively.

Example:
  quantfeed config configs/base.yaml configs/momentum.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	layers := make([]config.Mapping, 0, len(args))
	for _, path := range args {
		m, err := config.LoadMapping(path)
		if err != nil {
			return err
		}
		layers = append(layers, m)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(config.Merge(layers...)); err != nil {
		return err
	}
	return enc.Close()
}
