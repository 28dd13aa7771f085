package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-console/internal/roles"
)

// NewRolesCommand groups offline role hierarchy commands.
func NewRolesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect a role hierarchy file",
	}
	cmd.AddCommand(newRolesTreeCommand(rootOpts))
	cmd.AddCommand(newRolesEffectiveCommand(rootOpts))
	return cmd
}

func newRolesTreeCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the role forest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _, err := LoadRoles(file)
			if err != nil {
				return err
			}
			forest := roles.BuildForest(list)
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), treeView(forest))
			}
			renderTree(cmd.OutOrStdout(), forest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "roles YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRolesEffectiveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		file        string
		catalogFile string
		roleID      int64
	)
	cmd := &cobra.Command{
		Use:   "effective",
		Short: "Resolve the permissions of one role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, catalog, err := LoadRoles(file)
			if err != nil {
				return err
			}
			if catalogFile != "" {
				if catalog, err = LoadCatalog(catalogFile); err != nil {
					return err
				}
			}
			var role *roles.Role
			for i := range list {
				if list[i].ID == roleID {
					role = &list[i]
					break
				}
			}
			if role == nil {
				return fmt.Errorf("role %d not found in %s", roleID, file)
			}
			res := roles.Resolve(*role, list, catalog)
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderResolution(cmd.OutOrStdout(), *role, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "roles YAML file")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "permission catalog YAML file (defaults to the roles file)")
	cmd.Flags().Int64Var(&roleID, "role", 0, "role id")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

type treeNode struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Level    int        `json:"level"`
	Depth    int        `json:"depth"`
	Children []treeNode `json:"children"`
}

func treeView(nodes []*roles.RoleTreeNode) []treeNode {
	out := make([]treeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treeNode{
			ID:       n.Role.ID,
			Name:     n.Role.Name,
			Level:    n.Role.Level,
			Depth:    n.Depth,
			Children: treeView(n.Children),
		})
	}
	return out
}

func renderTree(w io.Writer, forest []*roles.RoleTreeNode) {
	for _, node := range roles.FlattenForest(forest) {
		var flags []string
		if node.Role.IsSystem {
			flags = append(flags, "system")
		}
		if node.Role.ParentRoleID != nil && !node.Role.InheritanceEnabled {
			flags = append(flags, "inheritance off")
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = " (" + strings.Join(flags, ", ") + ")"
		}
		_, _ = fmt.Fprintf(w, "%s%s [#%d] level %d%s\n",
			strings.Repeat("  ", node.Depth), node.Role.Name, node.Role.ID, node.Role.Level, suffix)
	}
}

func renderResolution(w io.Writer, role roles.Role, res roles.Resolution) {
	field(w, "role", fmt.Sprintf("%s [#%d]", role.Name, role.ID))
	field(w, "direct", joinList(res.Direct))
	field(w, "inherited", joinList(res.Inherited))
	field(w, "effective", joinList(res.Effective))
	field(w, "high risk", res.HighRiskCount)
	if res.UnresolvedParent != nil {
		field(w, "unresolved parent", fmt.Sprintf("#%d", *res.UnresolvedParent))
	}
	if res.CyclePath != nil {
		field(w, "cycle", joinIDs(res.CyclePath))
	}
}
