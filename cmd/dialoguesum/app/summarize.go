package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localrivet/dialoguesum/internal/textclean"
)

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [DIALOGUE...]",
		Short: "Summarize a dialogue from the arguments or stdin",
		Example: `  # Summarize from arguments
  dialoguesum summarize "Amanda: I baked cookies. Do you want some? Jerry: Sure!"

  # Summarize a file
  dialoguesum summarize < chat.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialogue, err := readDialogue(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if textclean.IsBlank(dialogue) {
				return errors.New("please enter a dialogue to summarize")
			}

			env, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.close()

			summary, err := env.server.Summarize(cmd.Context(), dialogue)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

// readDialogue joins args, or reads all of in when there are none.
func readDialogue(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read dialogue from stdin: %w", err)
	}
	return string(data), nil
}
