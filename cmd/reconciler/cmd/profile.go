package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/profiles"
	"statement-reconciler/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newProfileCmd(v *viper.Viper) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage column mapping profiles",
		Long: `Profiles store the column names and the report layout of a recurring pair of
exports, so that later runs only need --profile NAME.

Examples:
  reconciler profile save itau --statement-date Data --statement-amount Valor \
    --report-layout split --report-credit Credito --report-debit Debito
  reconciler profile list
  reconciler profile show itau
  reconciler profile delete itau`,
	}

	profileCmd.AddCommand(
		newProfileSaveCmd(v),
		newProfileListCmd(v),
		newProfileShowCmd(v),
		newProfileDeleteCmd(v),
	)

	return profileCmd
}

func profileStore(v *viper.Viper) (*profiles.Store, error) {
	settings, err := config.Load(v)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil, err)
	}
	return profiles.NewStore(settings.ProfilesDir)
}

func newProfileSaveCmd(v *viper.Viper) *cobra.Command {
	saveCmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the given column mapping as a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(v)
			if err != nil {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "flags", nil, err)
			}
			store, err := profiles.NewStore(settings.ProfilesDir)
			if err != nil {
				return err
			}

			var base *profiles.Profile
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				if base, err = store.Get(from); err != nil {
					return err
				}
			}

			statement, report, err := settings.Mappings(base)
			if err != nil {
				return errors.ProfileError(errors.CodeProfileInvalid, args[0], err)
			}

			description, _ := cmd.Flags().GetString("description")
			profile := &profiles.Profile{
				Name:        args[0],
				Description: description,
				Statement:   *statement,
				Report:      *report,
				Account:     settings.Account,
			}
			if base != nil {
				if profile.Description == "" {
					profile.Description = base.Description
				}
				if profile.Account == "" {
					profile.Account = base.Account
				}
			}

			if err := store.Save(profile); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %q in %s\n", profile.Name, store.Dir())
			return nil
		},
	}

	config.RegisterMappingFlags(saveCmd.Flags())
	saveCmd.Flags().String("from", "", "start from this saved or built-in profile")
	saveCmd.Flags().String("description", "", "free-text description")

	return saveCmd
}

func newProfileListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved and built-in profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profileStore(v)
			if err != nil {
				return err
			}

			list, err := store.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tLAYOUT\tSTATEMENT COLUMNS\tREPORT COLUMNS\tSOURCE\tDESCRIPTION")
			for _, p := range list {
				source := "saved"
				if p.Builtin {
					source = "built-in"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Name,
					p.Report.Layout,
					strings.Join(p.Statement.RequiredColumns(), ","),
					strings.Join(p.Report.RequiredColumns(), ","),
					source,
					p.Description,
				)
			}
			return tw.Flush()
		},
	}
}

func newProfileShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a profile as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profileStore(v)
			if err != nil {
				return err
			}

			profile, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if profile.Report.Layout == "" {
				profile.Report.Layout = parsers.LayoutNature
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(profile); err != nil {
				return errors.ProfileError(errors.CodeProfileStore, args[0], err)
			}
			return encoder.Close()
		},
	}
}

func newProfileDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profileStore(v)
			if err != nil {
				return err
			}

			if err := store.Delete(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %q\n", args[0])
			return nil
		},
	}
}
