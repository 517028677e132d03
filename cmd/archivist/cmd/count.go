package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Количество записей в каждой коллекции",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, collection := range []string{collectionSnapshots, collectionVersions} {
			repo, err := repository(collection)
			if err != nil {
				return err
			}
			n, err := repo.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count %s: %w", collection, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", collection, n)
		}
		return nil
	},
}
