package cmd

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/spf13/cobra"
)

func modulesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "show the chain modules linked into the relayer",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		showModulesCmd(ctx),
	)

	return cmd
}

type moduleInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version"`
	Chains  int    `json:"chains"`
}

func showModulesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Shows every module with its version and the number of configured chains it serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				return fmt.Errorf("could not read build info")
			}

			infos := make([]moduleInfo, 0, len(ctx.Modules))
			for _, m := range ctx.Modules {
				path, version, err := moduleVersion(bi, m)
				if err != nil {
					return err
				}
				infos = append(infos, moduleInfo{
					Name:    m.Name(),
					Path:    path,
					Version: version,
					Chains:  countChains(ctx.Config, m.Name()),
				})
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODULE\tVERSION\tCHAINS")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", info.Name, info.Path, info.Version, info.Chains)
			}
			return w.Flush()
		},
	}
	return cmd
}

// moduleVersion finds the go module that provides the package of m.
func moduleVersion(bi *debug.BuildInfo, m config.ModuleI) (string, string, error) {
	pkgPath := reflect.TypeOf(m).PkgPath()
	if strings.HasPrefix(pkgPath, bi.Main.Path) {
		return bi.Main.Path, bi.Main.Version, nil
	}
	i := slices.IndexFunc(bi.Deps, func(dm *debug.Module) bool {
		return strings.HasPrefix(pkgPath, dm.Path)
	})
	if i == -1 {
		return "", "", fmt.Errorf("could not find module info for %s", m.Name())
	}
	return bi.Deps[i].Path, bi.Deps[i].Version, nil
}

func countChains(c *config.Config, chainType string) int {
	n := 0
	for _, ch := range c.Chains {
		if ch.Type == chainType {
			n++
		}
	}
	return n
}
