package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nwestf/chatclass/internal/config"
	"github.com/nwestf/chatclass/internal/database"
	"github.com/nwestf/chatclass/internal/llm"
	"github.com/nwestf/chatclass/internal/pipeline"
	"github.com/nwestf/chatclass/internal/server"
	"github.com/nwestf/chatclass/internal/taxonomy"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfgPath    string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chatclass",
	Short:   "LLM-based classification of support conversations",
	Long:    "chatclass incrementally classifies customer support conversations, at session and message level, into a configurable category taxonomy.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

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
		cfgPath = path
		cfg.Instructions.Session = cfg.ResolveInstructionRef(path, cfg.Instructions.Session)
		cfg.Instructions.Message = cfg.ResolveInstructionRef(path, cfg.Instructions.Message)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("chatclass", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/chatclass/",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.ConfigDir()
		target := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(filepath.Join(dir, "prompts"), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		files := map[string][]byte{
			"config.yaml":                                        config.DefaultConfigYAML,
			"categories.yaml":                                    config.DefaultCategoriesYAML,
			filepath.Join("prompts", "session_instructions.txt"): config.DefaultSessionInstructions,
			filepath.Join("prompts", "message_instructions.txt"): config.DefaultMessageInstructions,
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the database path, model, and categories.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and classification status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Store:")
		fmt.Printf("  Sessions: %d\n", stats.Sessions)
		fmt.Printf("  Messages: %d\n", stats.Messages)
		fmt.Println("\nClassified:")
		fmt.Printf("  Sessions: %d\n", stats.ClassifiedSessions)
		fmt.Printf("  Messages: %d\n", stats.ClassifiedMessages)
		fmt.Printf("\nSessions due: %d\n", stats.SessionsDue)

		counts, err := db.CategoryCounts()
		if err != nil {
			return err
		}
		if len(counts) > 0 {
			fmt.Println("\nCategories:")
			for _, c := range counts {
				fmt.Printf("  %s: %d\n", c.Category, c.Sessions)
			}
		}
		return nil
	},
}

// --- run command ---

var (
	runRoles      []string
	runSince      string
	runLimit      int
	runNoSession  bool
	runNoMessages bool
	runReclassify bool
	runBatchSize  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one incremental classification pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.APIKey() == "" {
			return fmt.Errorf("no API key found; set %s (e.g. in .env.local)", cfg.OpenAI.APIKeyEnv)
		}
		if runNoSession && runNoMessages {
			return fmt.Errorf("nothing to do: both session and message classification disabled")
		}

		cats, err := taxonomy.Load(cfg.ResolveTaxonomyPath(cfgPath))
		if err != nil {
			return fmt.Errorf("loading taxonomy: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		provider := llm.NewOpenAIProvider(
			cfg.APIKey(), cfg.OpenAI.BaseURL, cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature,
		)
		pipe := pipeline.New(cfg, db, provider, cats)

		result, err := pipe.Run(context.Background(), pipeline.Options{
			Roles:              runRoles,
			Since:              runSince,
			Limit:              runLimit,
			ClassifySessions:   !runNoSession,
			ClassifyMessages:   !runNoMessages,
			ReclassifyExisting: runReclassify,
			BatchSize:          runBatchSize,
		})
		if err != nil {
			return err
		}

		fmt.Println("\nPass complete:")
		fmt.Printf("  Sessions classified: %d\n", result.SessionsProcessed)
		fmt.Printf("  Messages classified: %d\n", result.MessagesProcessed)
		if result.SessionsFailed > 0 {
			fmt.Printf("  Sessions failed: %d (will retry next pass)\n", result.SessionsFailed)
		}
		fmt.Println("\nRun 'chatclass serve' to browse the results.")
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runRoles, "roles", []string{"user"}, "Message roles to classify")
	runCmd.Flags().StringVar(&runSince, "since", "", "Only consider messages at or after this RFC3339 timestamp")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Maximum number of sessions to process (0 = all)")
	runCmd.Flags().BoolVar(&runNoSession, "no-session", false, "Skip session-level classification")
	runCmd.Flags().BoolVar(&runNoMessages, "no-messages", false, "Skip message-level classification")
	runCmd.Flags().BoolVar(&runReclassify, "reclassify", false, "Reclassify messages that already have results")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 20, "Messages per model call")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local results server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- import command ---

// importedMessage is the JSONL row shape accepted by the import command.
type importedMessage struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id"`
	UserID     *string `json:"user_id"`
	Role       string  `json:"role"`
	Content    *string `json:"content"`
	Timestamp  string  `json:"timestamp"`
	ToolCallID *string `json:"tool_call_id"`
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import messages from a JSONL export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening export: %w", err)
		}
		defer f.Close()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var imported, skipped int
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Bytes()
			if len(text) == 0 {
				continue
			}
			var m importedMessage
			if err := json.Unmarshal(text, &m); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if m.SessionID == "" || m.Role == "" || m.Timestamp == "" {
				log.Printf("line %d: missing session_id, role, or timestamp, skipping", line)
				skipped++
				continue
			}
			err := db.InsertMessage(database.Message{
				ID: m.ID, SessionID: m.SessionID, UserID: m.UserID, Role: m.Role,
				Content: m.Content, Timestamp: m.Timestamp, ToolCallID: m.ToolCallID,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			imported++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading export: %w", err)
		}

		fmt.Printf("Imported %d messages", imported)
		if skipped > 0 {
			fmt.Printf(" (%d skipped)", skipped)
		}
		fmt.Println()
		return nil
	},
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Database.Path)
}
