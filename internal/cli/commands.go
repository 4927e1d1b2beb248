package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// NewRoot constructs the streamctl root command. Persistent flags are bound
// to v, so every flag can also come from a STREAMCTL_* environment variable.
func NewRoot(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "streamctl",
		Short:         "Inspect and manage streams in a stream catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("server", "http://localhost:8080", "stream catalog HTTP address")
	root.PersistentFlags().String("org", "default", "organization id")
	root.PersistentFlags().StringP("type", "t", "logs", "stream type: logs, metrics, traces")
	root.PersistentFlags().StringP("output", "o", OutputTable, "output format: table, json")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")

	v.SetEnvPrefix("STREAMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindPFlags(root.PersistentFlags())

	root.AddCommand(
		newListCommand(v),
		newGetCommand(v),
		newDeleteCommand(v),
		newSettingsCommand(v),
	)
	return root
}

func clientFrom(v *viper.Viper) *Client {
	return NewClient(v.GetString("server"), v.GetDuration("timeout"))
}

func streamTypeFrom(v *viper.Viper) (types.StreamType, error) {
	return types.ParseStreamType(v.GetString("type"))
}

// newListCommand constructs the `list` subcommand.
func newListCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List streams of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all-types")
			fetchSchema, _ := cmd.Flags().GetBool("schema")

			var filter *types.StreamType
			if !all {
				st, err := streamTypeFrom(v)
				if err != nil {
					return err
				}
				filter = &st
			}

			list, err := clientFrom(v).ListStreams(cmd.Context(), v.GetString("org"), filter, fetchSchema)
			if err != nil {
				return err
			}
			if v.GetString("output") == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			renderStreams(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().Bool("all-types", false, "list streams of every type")
	cmd.Flags().Bool("schema", false, "include schema fields")
	return cmd
}

// newGetCommand constructs the `get` subcommand.
func newGetCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show one stream with schema, stats and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := streamTypeFrom(v)
			if err != nil {
				return err
			}
			desc, err := clientFrom(v).GetStream(cmd.Context(), v.GetString("org"), args[0], st)
			if err != nil {
				return err
			}
			if v.GetString("output") == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), desc)
			}
			renderStream(cmd.OutOrStdout(), desc)
			return nil
		},
	}
}

// newDeleteCommand constructs the `delete` subcommand.
func newDeleteCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := streamTypeFrom(v)
			if err != nil {
				return err
			}
			if err := clientFrom(v).DeleteStream(cmd.Context(), v.GetString("org"), args[0], st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stream [%s] deleted\n", args[0])
			return nil
		},
	}
}

// newSettingsCommand constructs the `settings` command group.
func newSettingsCommand(v *viper.Viper) *cobra.Command {
	settingsCmd := &cobra.Command{Use: "settings", Short: "Stream settings operations"}

	setCmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Replace the settings of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := streamTypeFrom(v)
			if err != nil {
				return err
			}
			partitionKeys, _ := cmd.Flags().GetStringSlice("partition-keys")
			ftsKeys, _ := cmd.Flags().GetStringSlice("full-text-search-keys")
			skip, _ := cmd.Flags().GetBool("skip-schema-validation")
			retention, _ := cmd.Flags().GetInt64("data-retention")

			settings := types.StreamSettings{
				PartitionKeys:        partitionKeys,
				FullTextSearchKeys:   ftsKeys,
				SkipSchemaValidation: skip,
				DataRetention:        retention,
			}
			if err := clientFrom(v).SaveSettings(cmd.Context(), v.GetString("org"), args[0], st, settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stream [%s] settings saved\n", args[0])
			return nil
		},
	}
	setCmd.Flags().StringSlice("partition-keys", nil, "partition keys, in order")
	setCmd.Flags().StringSlice("full-text-search-keys", nil, "full text search keys")
	setCmd.Flags().Bool("skip-schema-validation", false, "skip schema validation on ingest")
	setCmd.Flags().Int64("data-retention", 0, "data retention in days (0 = server default)")

	settingsCmd.AddCommand(setCmd)
	return settingsCmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStreams(w io.Writer, list []types.StreamDescriptor) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Type", "Storage", "Docs", "Files", "Size (MiB)", "Compressed (MiB)"})
	for _, d := range list {
		table.Append([]string{
			d.Name,
			string(d.StreamType),
			d.StorageType,
			strconv.FormatInt(d.Stats.DocNum, 10),
			strconv.FormatInt(d.Stats.FileNum, 10),
			strconv.FormatFloat(d.Stats.StorageSize, 'f', 2, 64),
			strconv.FormatFloat(d.Stats.CompressedSize, 'f', 2, 64),
		})
	}
	table.Render()
}

func renderStream(w io.Writer, d types.StreamDescriptor) {
	renderStreams(w, []types.StreamDescriptor{d})

	if len(d.Schema) > 0 {
		fields := tablewriter.NewWriter(w)
		fields.SetHeader([]string{"Field", "Type"})
		for _, p := range d.Schema {
			fields.Append([]string{p.Name, p.Type})
		}
		fields.Render()
	}

	fmt.Fprintf(w, "partition keys:        %s\n", strings.Join(d.Settings.PartitionKeys, ", "))
	fmt.Fprintf(w, "full text search keys: %s\n", strings.Join(d.Settings.FullTextSearchKeys, ", "))
	fmt.Fprintf(w, "skip schema validation: %t\n", d.Settings.SkipSchemaValidation)
	fmt.Fprintf(w, "data retention:        %d\n", d.Settings.DataRetention)
}
