package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/app/archivist"
	"archivist/internal/domain/record"
	"archivist/internal/infrastructure/storage/git"
)

var (
	recordService     string
	recordType        string
	recordMime        string
	recordDate        string
	recordSnapshotIDs []string
)

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Записать содержимое файла",
	Long: `Записывает файл как снимок документа. Если указаны --snapshot-id,
файл записывается как версия, отфильтрованная из этих снимков.

Запись пропускается, если содержимое совпадает с последней записью документа.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		fetchDate, err := parseFetchDate(recordDate, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		if len(recordSnapshotIDs) > 0 {
			outcome, err := recorder.RecordVersion(cmd.Context(), record.VersionInput{
				ServiceID:    recordService,
				DocumentType: recordType,
				Content:      content,
				MimeType:     recordMime,
				FetchDate:    fetchDate,
				SnapshotIDs:  recordSnapshotIDs,
			})
			if err != nil {
				return fmt.Errorf("record version: %w", err)
			}
			printOutcome(out, "version", outcome)
			return nil
		}

		mimeType := recordMime
		if mimeType == "" {
			mimeType = git.MimeTypeFor(strings.TrimPrefix(filepath.Ext(args[0]), "."))
		}

		a := archivist.New(recorder, nil, log)
		a.Attach(archivist.NewLogObserver(log))
		a.Attach(&printObserver{w: out})

		return a.RecordDocument(cmd.Context(), archivist.Document{
			ServiceID:    recordService,
			DocumentType: recordType,
			Content:      content,
			MimeType:     mimeType,
			FetchDate:    fetchDate,
		})
	},
}

// parseFetchDate принимает RFC3339 или YYYY-MM-DD; пустая строка означает now.
func parseFetchDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now.UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", value)
}

func printOutcome(w io.Writer, kind string, outcome record.Outcome) {
	switch {
	case !outcome.Recorded():
		fmt.Fprintf(w, "Содержимое не изменилось, %s не записан\n", kind)
	case outcome.IsFirstRecord:
		fmt.Fprintf(w, "Записан первый %s: %s\n", kind, outcome.ID)
	default:
		fmt.Fprintf(w, "Записан %s: %s\n", kind, outcome.ID)
	}
}

type printObserver struct {
	archivist.NopObserver
	w io.Writer
}

func (o *printObserver) OnFirstSnapshotRecorded(_, _, snapshotID string) {
	printOutcome(o.w, "snapshot", record.Outcome{ID: snapshotID, IsFirstRecord: true})
}

func (o *printObserver) OnSnapshotRecorded(_, _, snapshotID string) {
	printOutcome(o.w, "snapshot", record.Outcome{ID: snapshotID})
}

func (o *printObserver) OnSnapshotNotChanged(_, _ string) {
	printOutcome(o.w, "snapshot", record.Outcome{})
}

func init() {
	recordCmd.Flags().StringVarP(&recordService, "service", "s", "", "ID сервиса")
	recordCmd.Flags().StringVarP(&recordType, "type", "t", "", "тип документа")
	recordCmd.Flags().StringVar(&recordMime, "mime", "", "MIME тип (по умолчанию по расширению файла)")
	recordCmd.Flags().StringVar(&recordDate, "date", "", "дата получения, RFC3339 или YYYY-MM-DD (по умолчанию сейчас)")
	recordCmd.Flags().StringSliceVar(&recordSnapshotIDs, "snapshot-id", nil, "ID исходных снимков; записывает версию")
	_ = recordCmd.MarkFlagRequired("service")
	_ = recordCmd.MarkFlagRequired("type")
}
