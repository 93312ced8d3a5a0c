package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/accountfile"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/registry"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Work with stored leads",
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's stored leads to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		userID, _ := cmd.Flags().GetString("user")
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.GetStoredLeads(ctx, userID, limit)
		if err != nil {
			return eris.Wrap(err, "leads export")
		}
		if err := accountfile.WriteLeads(out, leads); err != nil {
			return err
		}
		zap.L().Info("leads exported", zap.String("user_id", userID), zap.Int("leads", len(leads)), zap.String("out", out))
		return nil
	},
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Manage watch and do-not-contact lists",
}

var listsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create a list from a CSV or XLSX file of domains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		typ, _ := cmd.Flags().GetString("type")
		file, _ := cmd.Flags().GetString("file")

		lt := model.ListType(typ)
		if lt != model.ListTypeWatch && lt != model.ListTypeDoNotContact {
			return eris.Errorf("unknown list type %q (watch or dnc)", typ)
		}

		accounts, err := accountfile.Read(file)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.CreateList(ctx, userID, name, lt)
		if err != nil {
			return eris.Wrap(err, "lists import: create list")
		}
		added, err := st.AddListAccounts(ctx, list.ID, accounts)
		if err != nil {
			return eris.Wrap(err, "lists import: add accounts")
		}

		zap.L().Info("list imported",
			zap.String("list_id", list.ID),
			zap.String("type", typ),
			zap.Int("accounts", added),
		)
		fmt.Fprintln(os.Stdout, list.ID)
		return nil
	},
}

var listsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List a user's watch or do-not-contact lists",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		userID, _ := cmd.Flags().GetString("user")
		typ, _ := cmd.Flags().GetString("type")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lists, err := st.GetLists(ctx, userID, model.ListType(typ))
		if err != nil {
			return eris.Wrap(err, "lists show")
		}
		for _, l := range lists {
			accounts, err := st.GetListAccounts(ctx, l.ID)
			if err != nil {
				return eris.Wrapf(err, "lists show: accounts for %s", l.ID)
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%d\n", l.ID, l.Type, l.Name, len(accounts))
		}
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user configs",
}

var usersSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a user config (ICP, signals, modes) from YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		uc, err := registry.LoadUserConfigFromFile(file)
		if err != nil {
			return err
		}
		if uc.UserID == "" {
			return eris.New("user config has no user_id")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveUserConfig(ctx, uc); err != nil {
			return eris.Wrap(err, "users set")
		}
		zap.L().Info("user config saved", zap.String("user_id", uc.UserID), zap.Int("signals", len(uc.Signals)))
		return nil
	},
}

func init() {
	leadsExportCmd.Flags().String("user", "", "user id (required)")
	leadsExportCmd.Flags().String("out", "leads.xlsx", "output XLSX path")
	leadsExportCmd.Flags().Int("limit", 1000, "max leads to export")
	_ = leadsExportCmd.MarkFlagRequired("user")
	leadsCmd.AddCommand(leadsExportCmd)
	rootCmd.AddCommand(leadsCmd)

	listsImportCmd.Flags().String("user", "", "user id (required)")
	listsImportCmd.Flags().String("name", "", "list name (required)")
	listsImportCmd.Flags().String("type", string(model.ListTypeWatch), "list type: watch or dnc")
	listsImportCmd.Flags().String("file", "", "CSV or XLSX file of domains (required)")
	_ = listsImportCmd.MarkFlagRequired("user")
	_ = listsImportCmd.MarkFlagRequired("name")
	_ = listsImportCmd.MarkFlagRequired("file")
	listsCmd.AddCommand(listsImportCmd)

	listsShowCmd.Flags().String("user", "", "user id (required)")
	listsShowCmd.Flags().String("type", string(model.ListTypeWatch), "list type: watch or dnc")
	_ = listsShowCmd.MarkFlagRequired("user")
	listsCmd.AddCommand(listsShowCmd)
	rootCmd.AddCommand(listsCmd)

	usersSetCmd.Flags().String("file", "", "user config YAML (required)")
	_ = usersSetCmd.MarkFlagRequired("file")
	usersCmd.AddCommand(usersSetCmd)
	rootCmd.AddCommand(usersCmd)
}
