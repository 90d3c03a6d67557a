package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/newsrank/internal/classify"
	"github.com/TobiSchelling/newsrank/internal/config"
	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/ledger"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/pipeline"
	"github.com/TobiSchelling/newsrank/internal/recommend"
	"github.com/TobiSchelling/newsrank/internal/server"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	tax        *taxonomy.Taxonomy
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsrank",
	Short:   "News ingestion, classification and recommendation",
	Long:    "newsrank scrapes news sources, classifies articles against a keyword taxonomy, and builds per-user reading lists from preferences and similar readers.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})

		tax, err = taxonomy.Resolve(cfg.Taxonomy.Path)
		if err != nil {
			return fmt.Errorf("loading taxonomy: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reclassifyCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(taxonomyCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsrank", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsrank/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, retry policy, and recommendation weights.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Articles:")
		fmt.Printf("  Stored: %d\n", stats.Articles)
		fmt.Printf("  Classified: %d\n", stats.ClassifiedArticles)
		fmt.Println("\nReaders:")
		fmt.Printf("  With preferences: %d (%d scores)\n", stats.UsersWithPreferences, stats.Preferences)
		fmt.Printf("  With interactions: %d (%d interactions)\n", stats.UsersWithInteractions, stats.Interactions)
		fmt.Printf("\nTaxonomy: %d categories\n", tax.Len())
		return nil
	},
}

// --- ingest command ---

var (
	dryRun      bool
	sourceNames []string
	reclassify  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scrape configured sources, classify and store new articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := selectSources(sourceNames)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipe := pipeline.New(cfg, db, tax)
		opts := pipeline.Options{Reclassify: reclassify}

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(ctx, sources, opts)
		} else {
			result = pipe.Run(ctx, sources, opts)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
				continue
			}
			fmt.Printf("  %s\n", step.Summary)
			if step.Ingest != nil && verbose {
				for _, f := range step.Ingest.Failures {
					fmt.Printf("    failed: %v\n", f)
				}
			}
		}

		if result.Failed() {
			return errors.New("ingest finished with errors")
		}
		if !dryRun {
			fmt.Println("\nIngest complete! Run 'newsrank serve' to browse reading lists.")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	ingestCmd.Flags().StringSliceVarP(&sourceNames, "source", "s", nil, "Only ingest the named sources")
	ingestCmd.Flags().BoolVar(&reclassify, "reclassify", false, "Reclassify all stored articles after ingesting")
}

func selectSources(names []string) ([]config.Source, error) {
	if len(names) == 0 {
		if len(cfg.Sources) == 0 {
			return nil, errors.New("no sources configured")
		}
		return cfg.Sources, nil
	}
	sources := make([]config.Source, 0, len(names))
	for _, name := range names {
		src, ok := cfg.FindSource(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Recompute category counts for every stored article",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := pipeline.Reclassify(cmd.Context(), db, classify.New(tax, db))
		if err != nil {
			return err
		}
		fmt.Printf("Reclassified %d articles against %d categories\n", n, tax.Len())
		return nil
	},
}

// --- recommend command ---

var (
	recommendUser int64
	recommendMode string
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print a user's reading list",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		opts := recommend.OptionsFromConfig(cfg.Recommend)
		if opts.TopN <= 0 {
			opts.TopN = recommend.DefaultTopN
		}
		engine := recommend.New(db, tax, opts)

		var titles []string
		switch recommendMode {
		case "hybrid":
			scored, err := engine.RecommendScored(ctx, recommendUser)
			if err != nil {
				return err
			}
			for _, s := range scored {
				titles = append(titles, fmt.Sprintf("%s (%.2f)", s.Title, s.Score))
			}
		case "content":
			titles, err = engine.RankContent(ctx, recommendUser)
		case "collaborative":
			titles, err = engine.RankCollaborative(ctx, recommendUser, opts.TopN)
		default:
			return fmt.Errorf("unknown mode %q (want hybrid, content or collaborative)", recommendMode)
		}
		if err != nil {
			return err
		}

		if len(titles) == 0 {
			fmt.Printf("No recommendations for user %d yet. All articles:\n", recommendUser)
			titles, err = db.ListTitles(ctx)
			if err != nil {
				return err
			}
		} else {
			fmt.Printf("Reading list for user %d:\n", recommendUser)
		}
		for i, t := range titles {
			fmt.Printf("  %d. %s\n", i+1, t)
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int64VarP(&recommendUser, "user", "u", 0, "User ID")
	recommendCmd.Flags().StringVarP(&recommendMode, "mode", "m", "hybrid", "Ranking: hybrid, content or collaborative")
	_ = recommendCmd.MarkFlagRequired("user")
}

// --- feedback command ---

var feedbackUser int64

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record reader feedback on an article",
}

func feedbackSubcommand(kind ledger.Kind, short string) *cobra.Command {
	use := string(kind) + " [article-id]"
	args := cobra.ExactArgs(1)
	if kind == ledger.KindRate {
		use = string(kind) + " [article-id] [rating]"
		args = cobra.ExactArgs(2)
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article ID: %s", args[0])
			}
			var rating int
			if kind == ledger.KindRate {
				rating, err = strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid rating: %s", args[1])
				}
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			l := ledger.New(db)
			if err := l.Apply(ctx, kind, feedbackUser, articleID, rating); err != nil {
				return err
			}
			interaction, err := l.Interaction(ctx, feedbackUser, articleID)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %s for user %d on article %d (interaction now %.1f)\n", kind, feedbackUser, articleID, interaction)
			return nil
		},
	}
}

func init() {
	feedbackCmd.PersistentFlags().Int64VarP(&feedbackUser, "user", "u", 0, "User ID")
	_ = feedbackCmd.MarkPersistentFlagRequired("user")

	feedbackCmd.AddCommand(feedbackSubcommand(ledger.KindView, "Record that the user opened an article"))
	feedbackCmd.AddCommand(feedbackSubcommand(ledger.KindLike, "Like an article"))
	feedbackCmd.AddCommand(feedbackSubcommand(ledger.KindDislike, "Dislike an article"))
	feedbackCmd.AddCommand(feedbackSubcommand(ledger.KindSkip, "Skip an article"))
	feedbackCmd.AddCommand(feedbackSubcommand(ledger.KindRate, "Rate an article from 1 to 10"))
}

// --- taxonomy command ---

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "List categories and their keywords",
	Run: func(cmd *cobra.Command, args []string) {
		tax.Each(func(name string, keywords []string) {
			fmt.Printf("%s (%d)\n", name, len(keywords))
			fmt.Printf("  %s\n", strings.Join(keywords, ", "))
		})
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, tax, recommend.OptionsFromConfig(cfg.Recommend), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "newsrank.db")
	return database.Open(dbPath)
}
