package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/database"
	"github.com/go-arcade/guild/pkg/log"
	"github.com/go-arcade/guild/pkg/version"
)

/**
 * @file: main.go
 * @description: guild command line, runs engine operations against the configured store
 */

var (
	configFile string
	as         string
	fields     []string
)

var rootCmd = &cobra.Command{
	Use:           "guild",
	Short:         "guild is the authorization and consistency engine for orgs, teams and events",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the engine tables",
	RunE: withApp(func(ctx context.Context, a *app, _ model.Caller, _ []string) error {
		if err := database.Migrate(a.db, model.Models()...); err != nil {
			return err
		}
		log.Infow("tables migrated", "models", len(model.Models()))
		return nil
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <kind> <id>",
	Short: "Print the caller's view of a record",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, args []string) error {
		view, err := a.engine.Get(ctx, caller, model.Kind(args[0]), args[1], fieldList())
		if err != nil {
			return err
		}
		return printJSON(view)
	}),
}

var listCmd = &cobra.Command{
	Use:   "list <kind> [column=value...]",
	Short: "Print the caller's view of every matching record",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, args []string) error {
		where, err := parseFilters(args[1:])
		if err != nil {
			return err
		}
		views, err := a.engine.List(ctx, caller, model.Kind(args[0]), where, fieldList())
		if err != nil {
			return err
		}
		return printJSON(views)
	}),
}

var managersCmd = &cobra.Command{
	Use:   "managers <organisation>",
	Short: "Print the managers of an organisation, inherited ones first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, args []string) error {
		view, err := a.engine.Get(ctx, caller, model.KindOrganisation, args[0], []string{"managers"})
		if err != nil {
			return err
		}
		return printJSON(view["managers"])
	}),
}

var acceptCmd = &cobra.Command{
	Use:   "accept <invite>",
	Short: "Accept an invite as the calling user",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, args []string) error {
		edge, err := a.engine.AcceptInvite(ctx, caller, args[0])
		if err != nil {
			return err
		}
		return printJSON(edge)
	}),
}

var logsCmd = &cobra.Command{
	Use:   "logs <record>",
	Short: "Print the audit trail of a record",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, args []string) error {
		logs, err := a.engine.Logs(ctx, caller, args[0])
		if err != nil {
			return err
		}
		return printJSON(logs)
	}),
}

var (
	reportActor string
	reportEvent string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report whether an actor can register for an event",
	RunE: withApp(func(ctx context.Context, a *app, caller model.Caller, _ []string) error {
		kind, id, ok := strings.Cut(reportActor, ":")
		if !ok {
			return fmt.Errorf("invalid actor %q, want user:<id> or team:<id>", reportActor)
		}
		report, err := a.engine.EligibilityReport(ctx, caller, model.Kind(kind), id, reportEvent)
		if err != nil {
			return err
		}
		return printJSON(report)
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "conf", "c", "conf.d/config.toml", "conf file path, e.g. -c ./conf.d/config.toml")
	rootCmd.PersistentFlags().StringVar(&as, "as", "anonymous", "caller identity: anonymous, user:<id> or admin:<id>")
	for _, cmd := range []*cobra.Command{getCmd, listCmd} {
		cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to print, all visible fields when empty")
	}
	reportCmd.Flags().StringVar(&reportActor, "actor", "", "registering actor, user:<id> or team:<id>")
	reportCmd.Flags().StringVar(&reportEvent, "event", "", "event id")
	_ = reportCmd.MarkFlagRequired("actor")
	_ = reportCmd.MarkFlagRequired("event")

	rootCmd.AddCommand(migrateCmd, getCmd, listCmd, managersCmd, acceptCmd, logsCmd, reportCmd, version.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runFunc func(ctx context.Context, a *app, caller model.Caller, args []string) error

// withApp parses the caller, builds the engine from the config file and
// releases it once fn returns.
func withApp(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		caller, err := model.ParseCaller(as)
		if err != nil {
			return err
		}
		a, cleanup, err := initApp(configFile)
		if err != nil {
			return err
		}
		defer func() {
			cleanup()
			_ = log.Sync()
		}()
		return fn(cmd.Context(), a, caller, args)
	}
}

func fieldList() []string {
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// parseFilters turns column=value arguments into a filter. The values true
// and false match boolean columns.
func parseFilters(args []string) (repo.Where, error) {
	where := make(repo.Where, len(args))
	for _, arg := range args {
		col, val, ok := strings.Cut(arg, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid filter %q, want column=value", arg)
		}
		switch val {
		case "true":
			where[col] = true
		case "false":
			where[col] = false
		default:
			where[col] = val
		}
	}
	return where, nil
}

func printJSON(v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
