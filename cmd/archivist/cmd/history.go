package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/domain/record"
)

var (
	historyService string
	historyType    string
	historyFormat  string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:       "history snapshots|versions",
	Short:     "История записей",
	Long:      `Выводит записи коллекции по возрастанию даты получения. Содержимое не загружается.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{collectionSnapshots, collectionVersions},
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository(args[0])
		if err != nil {
			return err
		}

		var records []*record.Record
		for rec, err := range repo.Iterate(cmd.Context(), record.FindOptions{DeferContentLoading: true}) {
			if err != nil {
				return fmt.Errorf("iterate %s: %w", args[0], err)
			}
			if historyService != "" && rec.ServiceID != historyService {
				continue
			}
			if historyType != "" && rec.DocumentType != historyType {
				continue
			}
			records = append(records, rec)
			if historyLimit > 0 && len(records) == historyLimit {
				break
			}
		}

		out := cmd.OutOrStdout()
		switch historyFormat {
		case "json":
			return printRecordsJSON(out, records)
		case "table":
			return printRecordsTable(out, records)
		default:
			return printRecordsSimple(out, records)
		}
	},
}

func printRecordsSimple(w io.Writer, records []*record.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "Записи не найдены")
		return nil
	}

	fmt.Fprintf(w, "Найдено записей: %d\n\n", len(records))

	for i, rec := range records {
		fmt.Fprintf(w, "%d. %s / %s (%s)\n", i+1, rec.ServiceID, rec.DocumentType, rec.Kind())
		fmt.Fprintf(w, "   ID: %s | %s | Получено: %s\n", rec.ID, rec.MimeType, rec.FetchDate.Format(time.RFC3339))
		if len(rec.SnapshotIDs) > 0 {
			fmt.Fprintf(w, "   Снимки: %s\n", strings.Join(rec.SnapshotIDs, ", "))
		}
		fmt.Fprintln(w)
	}

	return nil
}

func printRecordsTable(w io.Writer, records []*record.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "Записи не найдены")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tСервис\tДокумент\tMIME\tПолучено\tФлаги\t\n")
	fmt.Fprintf(tw, "---\t---\t---\t---\t---\t---\t\n")

	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			shortID(rec.ID),
			truncate(rec.ServiceID, 30),
			truncate(rec.DocumentType, 30),
			rec.MimeType,
			rec.FetchDate.Format("2006-01-02 15:04"),
			flags(rec),
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nВсего записей: %d\n", len(records))
	return nil
}

func printRecordsJSON(w io.Writer, records []*record.Record) error {
	if records == nil {
		records = []*record.Record{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

func flags(rec *record.Record) string {
	var f []string
	if rec.IsFirstRecord {
		f = append(f, "first")
	}
	if rec.IsRefilter {
		f = append(f, "refilter")
	}
	return strings.Join(f, ",")
}

// shortID сокращает хэши коммитов; UUID остаются как есть
func shortID(id string) string {
	if len(id) == 40 && !strings.Contains(id, "-") {
		return id[:12]
	}
	return id
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func init() {
	historyCmd.Flags().StringVarP(&historyService, "service", "s", "", "фильтр по сервису")
	historyCmd.Flags().StringVarP(&historyType, "type", "t", "", "фильтр по типу документа")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "simple", "формат вывода (simple, table, json)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "ограничение количества записей")
}
