package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verbose bool

// Config holds CLI configuration
type Config struct {
	AdminURL      string `mapstructure:"admin_url"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

type options struct {
	cfgFile   string
	outputFmt string
	v         *viper.Viper
	cfg       Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	root := &cobra.Command{
		Use:   "relay-admin",
		Short: "Mail relay admin CLI",
		Long: `relay-admin manages clients, sending domains, settings and delivery logs
of a running mail relay through its admin API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "config file (default is $HOME/.relay-admin.yaml)")
	pf.String("url", "", "relay base URL")
	pf.String("user", "", "admin user")
	pf.String("password", "", "admin password")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&o.outputFmt, "output", "o", "table", "output format (table, json)")

	_ = o.v.BindPFlag("admin_url", pf.Lookup("url"))
	_ = o.v.BindPFlag("admin_user", pf.Lookup("user"))
	_ = o.v.BindPFlag("admin_password", pf.Lookup("password"))

	root.AddCommand(
		clientCmd(o),
		domainCmd(o),
		logsCmd(o),
		settingsCmd(o),
		dashboardCmd(o),
		healthCmd(o),
		configCmd(o),
	)
	return root
}

func (o *options) load() error {
	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		o.v.AddConfigPath(home)
		o.v.SetConfigType("yaml")
		o.v.SetConfigName(".relay-admin")
	}

	o.v.SetEnvPrefix("RELAY")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	o.v.SetDefault("admin_url", "http://localhost:8080")

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		logVerbose("Using config file: %s", o.v.ConfigFileUsed())
	}
	if err := o.v.Unmarshal(&o.cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	logVerbose("Admin URL: %s", o.cfg.AdminURL)
	return nil
}

func (o *options) client() *AdminClient {
	return NewAdminClient(o.cfg.AdminURL, o.cfg.AdminUser, o.cfg.AdminPassword)
}

// Client management commands
func clientCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Client management commands",
		Long:  "Create, list, inspect and delete API clients",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := o.client().ListClients(cmd.Context())
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), items)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s %-24s %-20s\n", "ID", "NAME", "CREATED")
			fmt.Fprintln(w, strings.Repeat("-", 82))
			for _, c := range items {
				fmt.Fprintf(w, "%-36s %-24s %-20s\n", c.ID, c.Name, c.CreatedAt)
			}
			fmt.Fprintf(w, "\nTotal: %d clients\n", len(items))
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a client and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client().CreateClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), c)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Client created successfully:\n")
			fmt.Fprintf(w, "ID: %s\n", c.ID)
			fmt.Fprintf(w, "Name: %s\n", c.Name)
			fmt.Fprintf(w, "API key: %s\n", c.APIKey)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get [client-id]",
		Short: "Get client details including domains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client().GetClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), c)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID: %s\nName: %s\nAPI key: %s\nCreated: %s\n", c.ID, c.Name, c.APIKey, c.CreatedAt)
			printDomains(w, c.Domains)
			return nil
		},
	}

	var yes bool
	del := &cobra.Command{
		Use:   "delete [client-id]",
		Short: "Delete a client",
		Long:  "Delete a client together with its domains and delivery logs (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd, fmt.Sprintf("Are you sure you want to delete client '%s'? This action cannot be undone.", args[0])) {
				fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled.")
				return nil
			}
			if err := o.client().DeleteClient(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client %s deleted successfully\n", args[0])
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	cmd.AddCommand(list, create, get, del)
	return cmd
}

// Domain commands
func domainCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Sending domain commands",
	}

	list := &cobra.Command{
		Use:   "list [client-id]",
		Short: "List a client's domains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := o.client().ListDomains(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), items)
			}
			printDomains(cmd.OutOrStdout(), items)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add [client-id] [domain]",
		Short: "Register an unverified domain for a client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.client().AddDomain(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), d)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Domain %s added (id %s)\n", d.Name, d.ID)
			fmt.Fprintf(w, "Publish this TXT record, then run 'relay-admin domain verify %s %s':\n", args[0], d.ID)
			fmt.Fprintf(w, "  my-email-service-verification=%s\n", d.Name)
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify [client-id] [domain-id]",
		Short: "Check the domain's TXT record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := o.client().VerifyDomain(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), r)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Domain: %s\nOutcome: %s\n", r.Domain.Name, r.Outcome)
			if !r.Verified {
				fmt.Fprintf(w, "Expected TXT: %s\n", r.ExpectedTXT)
			}
			if r.Detail != "" {
				fmt.Fprintf(w, "Detail: %s\n", r.Detail)
			}
			return nil
		},
	}

	cmd.AddCommand(list, add, verify)
	return cmd
}

// Log commands
func logsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Delivery log commands",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent delivered emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := o.client().RecentLogs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), items)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-8s %-20s %-20s %-28s %-28s %s\n", "ID", "SENT", "CLIENT", "FROM", "TO", "SUBJECT")
			fmt.Fprintln(w, strings.Repeat("-", 130))
			for _, l := range items {
				fmt.Fprintf(w, "%-8d %-20s %-20s %-28s %-28s %s\n", l.ID, l.SentAt, l.ClientName, l.From, l.To, l.Subject)
			}
			return nil
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")

	get := &cobra.Command{
		Use:   "get [log-id]",
		Short: "Show one log entry including its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid log id %q", args[0])
			}
			l, err := o.client().GetLog(cmd.Context(), id)
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), l)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ID: %d\nSent: %s\nClient: %s\nFrom: %s\nTo: %s\nSubject: %s\n\n%s\n",
				l.ID, l.SentAt, l.ClientID, l.From, l.To, l.Subject, l.Body)
			return nil
		},
	}

	var olderThan time.Duration
	var yes bool
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete delivery logs",
		Long:  "Delete every delivery log, or only those older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "ALL delivery logs"
			if olderThan > 0 {
				what = "delivery logs older than " + olderThan.String()
			}
			if !yes && !confirm(cmd, "Are you sure you want to delete "+what+"?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled.")
				return nil
			}
			n, err := o.client().PurgeLogs(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log entries\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "only purge entries older than this (e.g. 720h)")
	purge.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	cmd.AddCommand(recent, get, purge)
	return cmd
}

// Settings commands
func settingsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Transport settings commands",
	}
	var clientID string
	set := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a global value or a per-client override",
		Long: `Set a transport setting. Known keys:
  email.provider, email.smtp.host, email.smtp.port, email.smtp.username,
  email.smtp.password, email.send_timeout`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client().SetSetting(cmd.Context(), args[0], args[1], clientID); err != nil {
				return err
			}
			scope := "globally"
			if clientID != "" {
				scope = "for client " + clientID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Setting %s updated %s\n", args[0], scope)
			return nil
		},
	}
	set.Flags().StringVar(&clientID, "client", "", "client ID for a per-client override")

	var listClient string
	list := &cobra.Command{
		Use:   "list",
		Short: "List global settings, or a client's overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := o.client().ListSettings(cmd.Context(), listClient)
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), items)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-24s %s\n", "KEY", "VALUE")
			fmt.Fprintln(w, strings.Repeat("-", 60))
			for _, s := range items {
				fmt.Fprintf(w, "%-24s %s\n", s.Key, s.Value)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listClient, "client", "", "client ID to list overrides for")
	cmd.AddCommand(set, list)
	return cmd
}

func dashboardCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show delivery totals and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.client().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), d)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Total emails:    %d\n", d.TotalEmails)
			fmt.Fprintf(w, "Last 24 hours:   %d\n", d.EmailsLast24h)
			fmt.Fprintf(w, "Clients:         %d\n", d.TotalClients)
			if p, ok := d.Queue["pending"]; ok {
				fmt.Fprintf(w, "Queue pending:   %v\n", p)
			}
			return nil
		},
	}
}

func healthCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check relay health",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			if o.outputFmt != "table" {
				return o.print(cmd.OutOrStdout(), h)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status: %s\nDatabase: %s\nCache: %s\nQueue pending: %d\n", h.Status, h.DB, h.Cache, h.QueuePending)
			return nil
		},
	}
}

// Configuration commands
func configCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from the current flags and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.cfgFile
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".relay-admin.yaml")
			}
			if err := o.v.WriteConfigAs(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if err := os.Chmod(path, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", path)
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Admin URL:      %s\n", o.cfg.AdminURL)
			fmt.Fprintf(w, "Admin user:     %s\n", o.cfg.AdminUser)
			fmt.Fprintf(w, "Admin password: %s\n", maskSecret(o.cfg.AdminPassword))
			if f := o.v.ConfigFileUsed(); f != "" {
				fmt.Fprintf(w, "Config file:    %s\n", f)
			}
			return nil
		},
	}
	cmd.AddCommand(initCmd, show)
	return cmd
}

func printDomains(w io.Writer, ds []DomainResponse) {
	fmt.Fprintf(w, "%-36s %-32s %-9s %s\n", "DOMAIN ID", "DOMAIN", "VERIFIED", "VERIFIED AT")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, d := range ds {
		fmt.Fprintf(w, "%-36s %-32s %-9t %s\n", d.ID, d.Name, d.Verified, d.VerifiedAt)
	}
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	fmt.Fprint(cmd.OutOrStdout(), "Type 'yes' to confirm: ")
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func (o *options) print(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func logVerbose(format string, args ...any) {
	if verbose {
		log.Printf("[VERBOSE] "+format, args...)
	}
}
