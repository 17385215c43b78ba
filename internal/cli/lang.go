package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var langCmd = &cobra.Command{
	Use:       "lang [en|vi]",
	Short:     "Show or set the interface language",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"en", "vi"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if err := deskClient.SetLanguage(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("set language: %w", err)
			}
		}
		lang, err := deskClient.Language(cmd.Context())
		if err != nil {
			return fmt.Errorf("get language: %w", err)
		}
		fmt.Println(lang)
		return nil
	},
}
