package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/formrelay/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the submission store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty store file if none exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := store.NewFileStore(cfg.Store.Path)
		if err := st.Init(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store ready at %s\n", st.Path())
		return nil
	},
}

var storeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every stored submission",
	Example: `  formrelay store dump
  formrelay store dump --output yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := store.NewFileStore(cfg.Store.Path).Load(cmd.Context())
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd.OutOrStdout(), format, doc)
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storeDumpCmd)

	storeDumpCmd.Flags().StringP("output", "o", outputJSON, "output format: json, yaml")
}
