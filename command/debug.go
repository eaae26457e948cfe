package command

import (
	"fmt"
	"text/tabwriter"

	"github.com/blingmoon/state-workflow/workflow"
	"github.com/spf13/cobra"
)

func newDebugCommand(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "List registered workflow definitions",
		Long: `Debug lists every registered workflow definition with the context type
it accepts and the Go type implementing the definition. Definitions are not built.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(cmd, r.manager)
		},
	}
}

func runDebug(cmd *cobra.Command, manager *workflow.WorkflowManager) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tContext\tDefinition")
	for _, definition := range manager.Definitions() {
		contextType := "*"
		if t := definition.ContextType(); t != nil {
			contextType = t.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%T\n", definition.Name(), contextType, definition)
	}
	return w.Flush()
}
