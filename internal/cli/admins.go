package cli

import (
	"fmt"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/spf13/cobra"
)

var (
	grantRole        string
	grantPermissions []string
)

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage who may review reports",
}

var adminsGrantCmd = &cobra.Command{
	Use:   "grant EMAIL",
	Short: "Grant review rights to a registered user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := services.NewAdminService(db).Grant(ctx, args[0], grantRole, grantPermissions)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s (%s)\n", a.Role, a.Email, a.UserID)
		return nil
	},
}

func init() {
	adminsGrantCmd.Flags().StringVar(&grantRole, "role", models.AdminRoleAdmin, "admin or moderator")
	adminsGrantCmd.Flags().StringSliceVar(&grantPermissions, "permission", nil, "extra permission tag (repeatable)")
	adminsCmd.AddCommand(adminsGrantCmd)
}
