package conductor

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/api/pkg/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version.String())
		},
	}
}
