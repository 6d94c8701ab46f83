package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"addrstore/internal/app"
	"addrstore/internal/config"
	"addrstore/internal/database"
	"addrstore/internal/database/migrations"
	"addrstore/internal/encryption"
	"addrstore/internal/model"
)

func main() {
	// Ctrl-C cancels a sync between records; the partial round is still recorded.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// readConfig loads the config file named by the defaults.
func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults.ConfigPath, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(cmd *cobra.Command, operation string, args []string) (*app.App, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	a, err := app.NewApp(cfg, operation, strings.Join(args, " "), app.Options{Verbose: verbose, Quiet: quiet})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "addrstore",
	Short:        "Address book with multi-device sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID, _ := cmd.Flags().GetString("device-id")
		if deviceID == "" {
			deviceID = defaults.DeviceID + "-" + uuid.New().String()[:8]
		}

		cfg := config.NewConfig(deviceID, defaults.BaseDir)
		if remoteDir, _ := cmd.Flags().GetString("remote-dir"); remoteDir != "" {
			cfg.Remotes = []config.RemoteConfig{{Type: "filesystem", Name: "default", FSRoot: remoteDir}}
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Fprintf(out, "Device ID: %s\n", deviceID)
		fmt.Fprintf(out, "Base Dir:  %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", path)
		fmt.Fprintf(out, "Device ID:  %s\n", cfg.DeviceID)
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:    %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Fprintf(out, "Dedupe:     %s (include synced: %v)\n", strings.Join(cfg.Dedupe.Fields, ", "), cfg.Dedupe.IncludeSynced)
		fmt.Fprintf(out, "Retries:    %d\n", cfg.Sync.MaxRetries)
		for _, r := range cfg.Remotes {
			fmt.Fprintf(out, "Remote:     %s (%s)\n", r.Name, r.Type)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(out, "\nProblems:\n%v\n", err)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage sync encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt sync payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PrivateKeyPath)
		}

		pw, err := newPassphrase(cmd.ErrOrStderr(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := enc.Setup(pw); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var keysPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the passphrase protecting the private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		rekeyer, ok := enc.(interface{ Rekey(oldPass, newPass string) error })
		if !ok {
			return fmt.Errorf("encryption type %q has no passphrase", cfg.Encryption.Type)
		}

		in := cmd.InOrStdin()
		old, err := promptPassphrase(cmd.ErrOrStderr(), in, "Current passphrase: ")
		if err != nil {
			return err
		}
		pw, err := newPassphrase(cmd.ErrOrStderr(), in)
		if err != nil {
			return err
		}
		if err := rekeyer.Rekey(old, pw); err != nil {
			return fmt.Errorf("changing passphrase: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase changed")
		return nil
	},
}

// address commands
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Add", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Add(cmd.Context(), addressFromFlags(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.GUID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update GUID",
	Short: "Change fields of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update")
		}

		a, err := newApp(cmd, "Update", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Update(cmd.Context(), args[0], patch)
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete GUID",
	Short: "Delete an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Delete", args)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "No address %s\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch GUID",
	Short: "Record that an address was used",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Touch", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Touch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s used %d time(s)\n", rec.GUID, rec.TimesUsed)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get GUID",
	Short: "Show one address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Get", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List addresses, most recently used first",
	RunE: func(cmd *cobra.Command, args []string) error {
		unsynced, _ := cmd.Flags().GetBool("unsynced")

		a, err := newApp(cmd, "List", args)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.List(cmd.Context(), unsynced)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No addresses.")
			return nil
		}
		for _, rec := range recs {
			marker := " "
			if rec.Unsynced() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", marker, rec.GUID, summary(rec.Address))
		}
		return nil
	},
}

// sync commands
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Exchange changes with a remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteName, _ := cmd.Flags().GetString("remote")

		a, err := newApp(cmd, "Sync", args)
		if err != nil {
			return err
		}
		defer a.Close()

		pw, err := promptPassphrase(cmd.ErrOrStderr(), cmd.InOrStdin(), "Passphrase: ")
		if err != nil {
			return err
		}

		report, err := a.Sync(cmd.Context(), remoteName, pw)
		if report != nil && report.Round != nil {
			r := report.Round
			fmt.Fprintf(cmd.OutOrStdout(),
				"Downloaded %d (%d malformed), applied %d (merged %d, deduped %d), unchanged %d, failed %d; uploaded %d, deleted %d\n",
				report.Downloaded, report.Malformed, r.Applied, r.Merged, r.Deduped, r.NoOps, r.Failed,
				report.Uploaded, report.Deleted)
		}
		return err
	},
}

var resetSyncCmd = &cobra.Command{
	Use:   "reset-sync",
	Short: "Forget all sync state; every address is uploaded again on the next sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ResetSync", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResetSync(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Sync state reset")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync round history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", args)
		if err != nil {
			return err
		}
		defer a.Close()

		rounds, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(rounds) == 0 {
			fmt.Fprintln(out, "No sync rounds recorded.")
			return nil
		}
		for _, r := range rounds {
			fmt.Fprintf(out, "%s  %-8s  in:%-4d applied:%-4d merged:%-3d deduped:%-3d conflicts:%-3d failed:%-3d  %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Incoming, r.Applied, r.Merged, r.Deduped, r.Conflicts, r.Failed,
				r.Duration().Truncate(time.Millisecond),
			)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Backup", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database copied to %s\n", args[0])
		return nil
	},
}

// migrate commands
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect the database schema",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version of this device's database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		path, err := database.PathFromConfig(cfg.Database, cfg.DeviceID)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no database at %s", path)
		}

		db, err := database.OpenConnection(path)
		if err != nil {
			return err
		}
		defer db.Close()

		version, dirty, err := migrations.Version(db)
		if err != nil {
			return err
		}
		latest, err := migrations.LatestVersion()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\nVersion:  %d (latest %d)\n", path, version, latest)
		if dirty {
			fmt.Fprintln(out, "State:    dirty (a migration was interrupted)")
		}
		if err := migrations.CheckStatus(db); err != nil {
			fmt.Fprintf(out, "Status:   %v\n", err)
		} else {
			fmt.Fprintln(out, "Status:   up to date")
		}
		return nil
	},
}

var migrateSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the current schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.OpenConnection(":memory:")
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.EnsureCurrent(db); err != nil {
			return err
		}
		schema, err := migrations.DumpSchema(db)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), schema)
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run one JSON request from stdin through the host interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}

		a, err := newApp(cmd, "Call", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), string(a.Call(cmd.Context(), req)))
		return nil
	},
}

func printRecord(w io.Writer, rec *model.LocalRecord) {
	fmt.Fprintf(w, "guid:          %s\n", rec.GUID)
	for _, f := range model.AllFields {
		if v := rec.Get(f); v != nil {
			fmt.Fprintf(w, "%-15s%s\n", string(f)+":", *v)
		}
	}
	fmt.Fprintf(w, "created:       %s\n", rec.TimeCreated.Time().Local().Format(time.DateTime))
	fmt.Fprintf(w, "last used:     %s (%d times)\n", rec.TimeLastUsed.Time().Local().Format(time.DateTime), rec.TimesUsed)
	fmt.Fprintf(w, "last modified: %s\n", rec.TimeLastModified.Time().Local().Format(time.DateTime))
	fmt.Fprintf(w, "unsynced:      %v\n", rec.Unsynced())
}

func summary(addr model.Address) string {
	var parts []string
	for _, f := range []model.FieldName{model.FieldFullName, model.FieldStreetAddress, model.FieldAddressLevel2, model.FieldCountry} {
		if v := addr.Get(f); !model.IsBlank(v) {
			parts = append(parts, *v)
		}
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug detail")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Do not echo log lines to stderr")

	configCmd.AddCommand(configInitCmd, configListCmd)
	configInitCmd.Flags().String("device-id", "", "Device id (default: hostname plus a random suffix)")
	configInitCmd.Flags().String("remote-dir", "", "Configure a filesystem remote at this directory")

	keysCmd.AddCommand(keysInitCmd, keysPasswdCmd)
	migrateCmd.AddCommand(migrateStatusCmd, migrateSchemaCmd)

	addFieldFlags(addCmd)
	addFieldFlags(updateCmd)
	updateCmd.Flags().StringSlice("clear", nil, "Fields to remove (repeatable)")
	listCmd.Flags().Bool("unsynced", false, "Only show addresses with changes not yet uploaded")
	syncCmd.Flags().String("remote", "", "Remote name (default: the first configured)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of rounds to show")

	rootCmd.AddCommand(
		configCmd,
		keysCmd,
		addCmd,
		updateCmd,
		deleteCmd,
		touchCmd,
		getCmd,
		listCmd,
		syncCmd,
		resetSyncCmd,
		historyCmd,
		backupCmd,
		migrateCmd,
		callCmd,
	)
}
