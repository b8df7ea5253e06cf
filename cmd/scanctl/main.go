package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/signalforge/signalforge/internal/config"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/notifications"
	"github.com/signalforge/signalforge/internal/scanning"
	"github.com/signalforge/signalforge/internal/scheduler"
	"github.com/signalforge/signalforge/internal/sources"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/signalforge/signalforge/internal/trends"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

var (
	verbose bool
	orgID   int64
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "scanctl",
	Short:        "Operate the signal scanner",
	Long:         "scanctl runs scans, inspects ideas and manages per-organization schedules against the local database.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.WarnLevel)
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		if err := godotenv.Load(); err != nil {
			logrus.Debug("No .env file found, using environment variables")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Int64Var(&orgID, "org", 1, "Organization id")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(ideasCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(archiveCmd)
}

// --- scan command ---

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan for the organization now",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signalContext()
		defer stop()

		res, err := newScanService(ctx, store).TriggerScan(ctx, orgID)
		if err != nil {
			return err
		}

		fmt.Printf("Scan %s completed\n", res.ScanID)
		fmt.Printf("  Matched items: %d\n", res.Matched)
		fmt.Printf("  Ideas: %d\n", res.Ideas)
		printReports(res.Sources)
		printWarnings(res.Warnings)
		return nil
	},
}

// --- ideas command ---

var (
	sortBy      string
	minMentions int
	sourceName  string
)

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Show enriched ideas of the latest scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		svc := scanning.NewService(store, nil, scanning.Options{})
		view, err := svc.LatestIdeas(cmd.Context(), orgID, trends.ParseSortKey(sortBy),
			trends.Filter{MinMentions: minMentions, Source: sourceName})
		if err != nil {
			return err
		}
		if view.Scan == nil {
			fmt.Println("No scans yet. Run 'scanctl scan' first.")
			return nil
		}

		fmt.Printf("Scan %s (%s), lookback %d days\n", view.Scan.ID, view.Scan.CreatedAt.Local().Format(time.DateTime), view.LookbackDays)
		if view.PreviousScanID != "" {
			fmt.Printf("Compared with scan %s\n", view.PreviousScanID)
		}
		for i, idea := range view.Ideas {
			fmt.Printf("\n%d. %s [%s, %s]\n", i+1, idea.IdeaKey, idea.Signal, idea.Momentum)
			fmt.Printf("   Mentions: %d (%.2f/day), pay: %d (%.1f%%)", idea.Mentions, idea.MentionsPerDay, idea.PayMentions, idea.PayRatio)
			if idea.DeltaMentions != nil {
				fmt.Printf(", delta %+d", *idea.DeltaMentions)
			}
			fmt.Println()
			fmt.Printf("   Sources: %s\n", strings.Join(idea.Sources, ", "))
			fmt.Printf("   %s\n", idea.Brief)
			fmt.Printf("   MVP: %s\n", idea.MVPAngle)
			fmt.Printf("   Pricing: %s\n", idea.PricingHypothesis)
			if idea.SampleURL != "" {
				fmt.Printf("   Sample: %s\n", idea.SampleURL)
			}
		}
		return nil
	},
}

func init() {
	ideasCmd.Flags().StringVar(&sortBy, "sort", "mentions", "Sort by mentions, pay_ratio, pay_mentions, momentum or signal")
	ideasCmd.Flags().IntVar(&minMentions, "min-mentions", 0, "Hide ideas with fewer mentions")
	ideasCmd.Flags().StringVar(&sourceName, "source", "", "Only ideas seen on this source")
}

// --- due command ---

var runDue bool

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List organizations whose scheduled scan is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signalContext()
		defer stop()

		states, err := store.ListSchedules(ctx)
		if err != nil {
			return err
		}

		now := time.Now()
		due := 0
		for _, state := range states {
			if !scheduler.IsDue(state, now) {
				continue
			}
			due++
			last := "never"
			if state.LastRun != nil {
				last = state.LastRun.Local().Format(time.DateTime)
			}
			fmt.Printf("org %d: %s, last run %s\n", state.OrgID, scheduler.DescribeInterval(state.IntervalHours), last)
		}
		if due == 0 {
			fmt.Println("No scans due.")
			return nil
		}

		if runDue {
			ran := scheduler.NewService(cfg.SchedulerSpec, store, newScanService(ctx, store), nil).RunDueScans(ctx)
			fmt.Printf("Ran %d of %d due scans\n", ran, due)
		}
		return nil
	},
}

func init() {
	dueCmd.Flags().BoolVar(&runDue, "run", false, "Run the due scans")
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Check connectivity of every enabled source",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signalContext()
		defer stop()

		scanCfg, err := store.GetScanConfiguration(ctx, orgID)
		if err != nil {
			return err
		}

		for _, src := range scanning.DefaultSources(cfg) {
			fmt.Printf("%-9s ", src.GetName())
			if !src.IsEnabled(scanCfg) {
				fmt.Println("disabled")
				continue
			}
			res, err := src.FetchSignals(ctx, scanCfg)
			if err != nil {
				fmt.Printf("FAILED (%s) %s\n", sources.KindOf(err), sources.Warning(src.GetName(), err))
				continue
			}
			fmt.Printf("ok, %d fetched, %d matched\n", res.Fetched, res.Matched)
			for _, rl := range res.RateLimits {
				fmt.Printf("          %s: remaining %s, reset %s\n", rl.Query, orDash(rl.Remaining), orDash(rl.Reset))
			}
		}
		return nil
	},
}

// --- schedule command ---

var every string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the scan interval of the organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var state *models.ScheduleState
		if cmd.Flags().Changed("every") {
			hours, err := scheduler.ParseInterval(every)
			if err != nil {
				return err
			}
			state, err = store.SetScheduleInterval(cmd.Context(), orgID, hours)
			if err != nil {
				return err
			}
		} else {
			state, err = store.GetSchedule(cmd.Context(), orgID)
			if err != nil {
				return err
			}
		}

		fmt.Printf("org %d: %s\n", state.OrgID, scheduler.DescribeInterval(state.IntervalHours))
		if state.LastRun != nil {
			fmt.Printf("  Last run: %s\n", state.LastRun.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&every, "every", "", "off, daily, weekly or a number of hours")
}

// --- config command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the organization's scan configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		scanCfg, err := store.GetScanConfiguration(cmd.Context(), orgID)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(scanCfg)
	},
}

func openStore() (*storage.SQLiteStore, error) {
	defaults, err := config.LoadScanDefaults(cfg.ScanDefaultsFile)
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.DatabasePath, defaults)
}

func newScanService(ctx context.Context, store storage.ScanStore) *scanning.Service {
	opts := scanning.Options{
		ArchiveKeep:    cfg.ArchiveKeep,
		DigestTopIdeas: cfg.DigestTopIdeas,
		ScanTimeout:    cfg.ScanTimeout,
	}
	if cfg.ArchiveEnabled() {
		if archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer); err != nil {
			logrus.Warnf("Archive disabled: %v", err)
		} else {
			opts.Archive = archive
		}
	}
	if cfg.NotificationsEnabled() {
		opts.Notifier = notifications.NewService(cfg)
	}
	return scanning.NewService(store, scanning.DefaultSources(cfg), opts)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printReports(reports []models.SourceReport) {
	fmt.Println("\nSources:")
	for _, r := range reports {
		switch {
		case !r.Attempted:
			fmt.Printf("  %s: not enabled\n", r.Source)
		case r.Failed:
			fmt.Printf("  %s: failed\n", r.Source)
		default:
			fmt.Printf("  %s: %d fetched, %d matched\n", r.Source, r.Fetched, r.Matched)
		}
	}
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Println("\nWarnings:")
	for _, w := range warnings {
		fmt.Printf("  %s\n", w)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
