package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/victoriawisdom39-code/involvement-ledger/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Involvement ledger CLI",
	Long: `ledgerctl is the command-line interface for the involvement ledger.

It lets parents and educators log activities, verify or dispute entries,
and lets administrators manage activity types and the pause switch.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token for authenticated commands")

	rootCmd.AddCommand(registerTypeCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(disputeCmd)
	rootCmd.AddCommand(amendCmd)
	rootCmd.AddCommand(evidenceCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an API client from the persistent flags. Commands that
// mutate the ledger refuse to run without a token rather than round-tripping
// a guaranteed 401.
func newClient(requireToken bool) (*client.Client, error) {
	if requireToken && authToken == "" {
		return nil, fmt.Errorf("this command requires authentication; set --token or 'token' in the config file")
	}
	opts := []client.Option{}
	if authToken != "" {
		opts = append(opts, client.WithBearerToken(authToken))
	}
	return client.New(serverURL, opts...)
}

func parseLogID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid log id %q: must be a positive integer", arg)
	}
	return id, nil
}

// ── register-type ────────────────────────────────────────────────────────────

var registerTypeDescription string

var registerTypeCmd = &cobra.Command{
	Use:   "register-type <name>",
	Short: "Register a new activity type (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.RegisterType(context.Background(), args[0], registerTypeDescription); err != nil {
			return fmt.Errorf("register type: %w", err)
		}
		fmt.Printf("✓ Activity type registered: %s\n", args[0])
		return nil
	},
}

func init() {
	registerTypeCmd.Flags().StringVar(&registerTypeDescription, "description", "", "Human-readable description of the type")
}

// ── log ──────────────────────────────────────────────────────────────────────

var (
	logSubjectID   uint64
	logType        string
	logDescription string
	logEvidence    []string
	logMetadata    string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a new involvement activity",
	Long: `Log appends a new activity entry to the ledger.

The caller identity comes from the Bearer token and is recorded as the
submitter. Evidence hashes are hex-encoded SHA-256 digests:

  ledgerctl log --subject 42 --type meeting --description "Q2 parent-teacher conference" \
    --evidence 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		id, err := c.LogActivity(context.Background(), client.LogActivityRequest{
			SubjectID:    logSubjectID,
			ActivityType: logType,
			Description:  logDescription,
			Evidence:     logEvidence,
			Metadata:     logMetadata,
		})
		if err != nil {
			return fmt.Errorf("log activity: %w", err)
		}
		fmt.Printf("✓ Activity logged\n\n")
		fmt.Printf("  Log ID: %d\n", id)
		return nil
	},
}

func init() {
	logCmd.Flags().Uint64Var(&logSubjectID, "subject", 0, "Subject (student) identifier")
	logCmd.Flags().StringVar(&logType, "type", "", "Registered activity type name")
	logCmd.Flags().StringVar(&logDescription, "description", "", "What the activity was")
	logCmd.Flags().StringSliceVar(&logEvidence, "evidence", nil, "Hex-encoded SHA-256 evidence hash (repeatable)")
	logCmd.Flags().StringVar(&logMetadata, "metadata", "", "Optional free-form metadata")

	_ = logCmd.MarkFlagRequired("subject")
	_ = logCmd.MarkFlagRequired("type")
	_ = logCmd.MarkFlagRequired("description")
}

// ── verify / dispute ─────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <log-id>",
	Short: "Verify an activity entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLogID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.VerifyActivity(context.Background(), id); err != nil {
			return fmt.Errorf("verify activity %d: %w", id, err)
		}
		fmt.Printf("✓ Activity %d verified\n", id)
		return nil
	},
}

var disputeNotes string

var disputeCmd = &cobra.Command{
	Use:   "dispute <log-id>",
	Short: "Dispute an activity entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLogID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.DisputeActivity(context.Background(), id, disputeNotes); err != nil {
			return fmt.Errorf("dispute activity %d: %w", id, err)
		}
		fmt.Printf("✓ Activity %d disputed\n", id)
		return nil
	},
}

func init() {
	disputeCmd.Flags().StringVar(&disputeNotes, "notes", "", "Reason for the dispute")
	_ = disputeCmd.MarkFlagRequired("notes")
}

// ── amend / evidence ─────────────────────────────────────────────────────────

var amendDescription string

var amendCmd = &cobra.Command{
	Use:   "amend <log-id>",
	Short: "Replace the description of an unverified entry you submitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLogID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.UpdateDescription(context.Background(), id, amendDescription); err != nil {
			return fmt.Errorf("amend activity %d: %w", id, err)
		}
		fmt.Printf("✓ Activity %d description updated\n", id)
		return nil
	},
}

func init() {
	amendCmd.Flags().StringVar(&amendDescription, "description", "", "New description")
	_ = amendCmd.MarkFlagRequired("description")
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence <log-id> <sha256-hex>",
	Short: "Attach an evidence hash to an unverified entry you submitted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLogID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.AddEvidence(context.Background(), id, args[1]); err != nil {
			return fmt.Errorf("add evidence to activity %d: %w", id, err)
		}
		fmt.Printf("✓ Evidence attached to activity %d\n", id)
		return nil
	},
}

// ── get / list ───────────────────────────────────────────────────────────────

var getFormat string

var getCmd = &cobra.Command{
	Use:   "get <log-id>",
	Short: "Show a single activity entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLogID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		entry, err := c.GetEntry(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get activity %d: %w", id, err)
		}

		if getFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		}

		fmt.Printf("Log ID:      %d\n", entry.LogID)
		fmt.Printf("Submitter:   %s\n", entry.Submitter)
		fmt.Printf("Subject:     %d\n", entry.SubjectID)
		fmt.Printf("Type:        %s\n", entry.ActivityType)
		fmt.Printf("Description: %s\n", entry.Description)
		if entry.Metadata != "" {
			fmt.Printf("Metadata:    %s\n", entry.Metadata)
		}
		fmt.Printf("Logged at:   %d\n", entry.CreatedAt)
		fmt.Printf("State:       %s\n", entryState(entry))
		if entry.Verified {
			fmt.Printf("Verifier:    %s\n", entry.Verifier)
		}
		if entry.Disputed && entry.DisputeNotes != "" {
			fmt.Printf("Notes:       %s\n", entry.DisputeNotes)
		}
		for i, h := range entry.Evidence {
			fmt.Printf("Evidence[%d]: %s\n", i, h)
		}
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getFormat, "format", "text", "Output format: text or json")
}

// entryState renders the verify/dispute flags as a single word for display.
func entryState(e *client.Entry) string {
	switch {
	case e.Verified && e.Disputed:
		return "verified+disputed"
	case e.Verified:
		return "verified"
	case e.Disputed:
		return "disputed"
	default:
		return "pending"
	}
}

var (
	listSubmitter string
	listSubject   uint64
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List activity entries by submitter or subject",
	Long: `List shows the log IDs indexed under a submitter or a subject, in the
order they were logged, then fetches each entry for display:

  ledgerctl list --submitter parent-17
  ledgerctl list --subject 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (listSubmitter == "") == (listSubject == 0) {
			return fmt.Errorf("exactly one of --submitter or --subject is required")
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		ctx := context.Background()

		var ids []uint64
		if listSubmitter != "" {
			ids, err = c.ActivitiesBySubmitter(ctx, listSubmitter)
		} else {
			ids, err = c.ActivitiesBySubject(ctx, listSubject)
		}
		if err != nil {
			return fmt.Errorf("list activities: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("no activities found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSUBJECT\tSUBMITTER\tSTATE\tDESCRIPTION")
		for _, id := range ids {
			entry, err := c.GetEntry(ctx, id)
			if err != nil {
				fmt.Fprintf(w, "%d\t\t\t\terror\t%s\n", id, err.Error())
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
				entry.LogID, entry.ActivityType, entry.SubjectID, entry.Submitter,
				entryState(entry), entry.Description)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listSubmitter, "submitter", "", "Submitter identity to list")
	listCmd.Flags().Uint64Var(&listSubject, "subject", 0, "Subject identifier to list")
}

// ── pause / status ───────────────────────────────────────────────────────────

var pauseOff bool

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause or resume ledger mutations (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		paused := !pauseOff
		if err := c.SetPaused(context.Background(), paused); err != nil {
			return fmt.Errorf("set paused: %w", err)
		}
		if paused {
			fmt.Println("✓ Ledger paused")
		} else {
			fmt.Println("✓ Ledger resumed")
		}
		return nil
	},
}

func init() {
	pauseCmd.Flags().BoolVar(&pauseOff, "off", false, "Resume instead of pausing")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		st, err := c.Status(context.Background())
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		fmt.Printf("Server:              %s\n", serverURL)
		fmt.Printf("Paused:              %t\n", st.Paused)
		fmt.Printf("Entries:             %d\n", st.Entries)
		fmt.Printf("Max entries per key: %d\n", st.MaxEntriesPerKey)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledgerctl %s\n", version)
	},
}
