package cli

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var (
		sf    storeFlags
		worst int
	)

	cmd := &cobra.Command{
		Use:   "inspect [mesh-file|id]",
		Short: "Browse mesh elements by quality",
		Long: `Browse the elements of a mesh file or stored mesh, worst quality first.

Without an argument, pick one of the stored meshes interactively. With
--worst, print the N worst elements instead of opening the browser.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeMeshes,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				rec, err := pickRecord(ctx, sf)
				if err != nil || rec == nil {
					return err
				}
				input = rec.ID
			}

			res, name, err := loadResult(ctx, input, sf)
			if err != nil {
				return err
			}
			if worst > 0 {
				printInspect(name, res, worst)
				return nil
			}

			model := NewElementListModel(fmt.Sprintf("%s · %d elements", name, res.Mesh.NumElements()), res.Mesh)
			_, err = tea.NewProgram(model, tea.WithContext(ctx)).Run()
			return err
		},
	}

	cmd.Flags().IntVar(&worst, "worst", 0, "print the N worst elements and exit")
	sf.register(cmd, "store directory to look IDs up in (default: the data dir)")

	return cmd
}

// printInspect prints the summary and the n worst elements of res.
func printInspect(name string, res *pipeline.Result, n int) {
	printInfo("%s", StyleHighlight.Render(name))
	printStats(res.Stats, false)
	rows := elements(res.Mesh)
	if n < len(rows) {
		rows = rows[:n]
	}
	fmt.Fprintln(stdout, elementTable(rows, -1))
}

// pickRecord lets the user choose a stored mesh. It returns nil when the
// user quits without choosing.
func pickRecord(ctx context.Context, sf storeFlags) (*store.Record, error) {
	s, err := sf.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	recs, err := s.List(ctx, 50)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		printWarning("No stored meshes")
		printNextStep("Store one", "quadmesh mesh <file> --store default")
		return nil, nil
	}

	final, err := tea.NewProgram(NewRecordListModel(recs), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	return final.(RecordListModel).Selected, nil
}

// meshesCommand creates the meshes command for managing stored meshes.
func (c *CLI) meshesCommand() *cobra.Command {
	var (
		sf    storeFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "meshes",
		Short: "List stored meshes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := sf.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				printInfo("No stored meshes")
				return nil
			}
			fmt.Fprintln(stdout, recordTable(recs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of meshes to list (0 = all)")
	sf.register(cmd, "store directory (default: the data dir)")

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete stored meshes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := sf.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, id := range args {
				if err := s.Delete(ctx, id); err != nil {
					return err
				}
				printSuccess("Deleted %s", id)
			}
			return nil
		},
	}
	sf.register(rm, "store directory (default: the data dir)")
	cmd.AddCommand(rm)

	return cmd
}

// recordTable renders a listing of stored meshes.
func recordTable(recs []*store.Record) string {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{r.ID, r.Name, strconv.Itoa(r.Vertices), strconv.Itoa(r.Triangles), strconv.Itoa(r.Quads), formatRelativeTime(r.CreatedAt)}
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Name", "Vertices", "Tris", "Quads", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 0 || col == 5:
				return StyleDim
			case col >= 2:
				return StyleNumber
			}
			return StyleValue
		}).
		Render()
}

// optionsCommand creates the options command listing recognized options.
func (c *CLI) optionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List recognized option names and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := pipeline.DefaultOptions().Map()
			rows := make([][]string, 0, len(defaults))
			for _, name := range pipeline.OptionNames() {
				rows = append(rows, []string{name, pipeline.FormatValue(defaults[name])})
			}
			headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
				Headers("Option", "Default").
				Rows(rows...).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == -1 {
						return headerStyle
					}
					if col == 1 {
						return StyleNumber
					}
					return StyleValue
				})
			fmt.Fprintln(stdout, t.Render())
			return nil
		},
	}
}
