package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/quadmesh/pkg/pipeline"
)

// completionCommand creates the completion command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for quadmesh.

Besides commands and flags, the scripts complete output formats, option
names for --set, and the IDs of meshes in the default store.

  bash:        source <(quadmesh completion bash)
  zsh:         quadmesh completion zsh > "${fpath[1]}/_quadmesh"
  fish:        quadmesh completion fish | source
  powershell:  quadmesh completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(stdout, true)
			case "zsh":
				return root.GenZshCompletion(stdout)
			case "fish":
				return root.GenFishCompletion(stdout, true)
			default:
				return root.GenPowerShellCompletionWithDesc(stdout)
			}
		},
	}
}

// completeFormats completes a comma-separated --format value.
func completeFormats(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	prefix := ""
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		prefix = toComplete[:i+1]
	}
	var out []string
	for f := range pipeline.ValidFormats {
		out = append(out, prefix+f)
	}
	sort.Strings(out)
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completeOptions completes the Name= part of a --set value.
func completeOptions(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	names := pipeline.OptionNames()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + "="
	}
	return out, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completeMeshes completes the IDs of meshes in the default store, falling
// back to file names.
func completeMeshes(_ *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := context.Background()
	s, err := storeFlags{}.open(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	defer s.Close()
	recs, err := s.List(ctx, 0)
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	out := make([]cobra.Completion, 0, len(recs))
	for _, r := range recs {
		out = append(out, cobra.CompletionWithDesc(r.ID, r.Name))
	}
	return out, cobra.ShellCompDirectiveDefault
}

// registerRenderCompletions wires the --format completion of commands that
// write artifacts.
func registerRenderCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormats)
}
