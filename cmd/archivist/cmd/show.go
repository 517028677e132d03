package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var showContent bool

var showCmd = &cobra.Command{
	Use:   "show snapshots|versions <id>",
	Short: "Показать запись",
	Long: `Выводит метаданные записи. С флагом --content выводит сохраненное
содержимое как есть, без метаданных.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository(args[0])
		if err != nil {
			return err
		}

		rec, err := repo.FindByID(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("find record: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("record %s not found in %s", args[1], args[0])
		}

		out := cmd.OutOrStdout()
		if showContent {
			if !rec.IsContentLoaded() {
				if err := repo.LoadRecordContent(cmd.Context(), rec); err != nil {
					return fmt.Errorf("load content: %w", err)
				}
			}
			_, err := out.Write(rec.Content)
			return err
		}

		fmt.Fprintf(out, "ID:            %s\n", rec.ID)
		fmt.Fprintf(out, "Вид:           %s\n", rec.Kind())
		fmt.Fprintf(out, "Сервис:        %s\n", rec.ServiceID)
		fmt.Fprintf(out, "Документ:      %s\n", rec.DocumentType)
		fmt.Fprintf(out, "MIME:          %s\n", rec.MimeType)
		fmt.Fprintf(out, "Получено:      %s\n", rec.FetchDate.Format(time.RFC3339))
		fmt.Fprintf(out, "Первая запись: %t\n", rec.IsFirstRecord)
		if len(rec.SnapshotIDs) > 0 {
			fmt.Fprintf(out, "Снимки:        %s\n", strings.Join(rec.SnapshotIDs, ", "))
			fmt.Fprintf(out, "Перефильтр:    %t\n", rec.IsRefilter)
		}
		fmt.Fprintf(out, "Размер:        %d байт\n", len(rec.Content))
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showContent, "content", false, "вывести только содержимое записи")
}
