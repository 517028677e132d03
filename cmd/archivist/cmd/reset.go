package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var resetYes bool

var errResetNotConfirmed = errors.New("reset not confirmed")

// isTerminal подменяется в тестах
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var resetCmd = &cobra.Command{
	Use:   "reset snapshots|versions",
	Short: "Удалить все записи коллекции",
	Long: `Удаляет все записи коллекции и заново инициализирует хранилище.
Без --yes запрашивает подтверждение; вне терминала без --yes отказывается.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{collectionSnapshots, collectionVersions},
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := repository(args[0])
		if err != nil {
			return err
		}

		if err := confirmReset(cmd.InOrStdin(), cmd.OutOrStdout(), args[0], resetYes, isTerminal()); err != nil {
			return err
		}

		if err := repo.RemoveAll(cmd.Context()); err != nil {
			return fmt.Errorf("reset %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Коллекция %s очищена\n", args[0])
		return nil
	},
}

func confirmReset(in io.Reader, out io.Writer, collection string, yes, interactive bool) error {
	if yes {
		return nil
	}
	if !interactive {
		return fmt.Errorf("%w: pass --yes to reset %s non-interactively", errResetNotConfirmed, collection)
	}

	fmt.Fprintf(out, "Все записи %s будут удалены. Введите yes для подтверждения: ", collection)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(answer) != "yes" {
		return errResetNotConfirmed
	}
	return nil
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "не запрашивать подтверждение")
}
