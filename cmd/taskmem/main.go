package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/taskmem/taskmem/internal/config"
	"github.com/taskmem/taskmem/internal/deps"
	"github.com/taskmem/taskmem/internal/exchange"
	"github.com/taskmem/taskmem/internal/output"
	"github.com/taskmem/taskmem/internal/storage"
	"github.com/taskmem/taskmem/internal/task"
)

//nolint:gochecknoglobals // CLI flags and formatter are package-level by design
var (
	jsonOutput bool
	formatter  output.Formatter
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskmem",
		Short: "A file-based task memory with dependency tracking",
		Long:  "taskmem - A file-based task memory with dependency analysis and JSONL interchange.",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if jsonOutput {
				formatter = output.NewJSONFormatter()
			} else {
				formatter = output.NewHumanFormatter()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		initCmd(),
		createCmd(),
		listCmd(),
		showCmd(),
		updateCmd(),
		rmCmd(),
		depCmd(),
		undepCmd(),
		readyCmd(),
		blockedCmd(),
		cyclesCmd(),
		orderCmd(),
		criticalCmd(),
		impactCmd(),
		exportCmd(),
		importCmd(),
		syncCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*storage.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	store.SetStrict(cfg.Strict)
	if cfg.MaxDependsOn > 0 {
		store.SetMaxDependsOn(cfg.MaxDependsOn)
	}
	return store, cfg, nil
}

func printOutput(s string) {
	os.Stdout.WriteString(s) //nolint:gosec // stdout write errors are unrecoverable
}

func printError(err error) {
	os.Stdout.WriteString(formatter.FormatError(err)) //nolint:gosec // stdout write errors are unrecoverable
	os.Exit(1)
}

// initCmd implements 'taskmem init'.
func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the task database and config",
		Run: func(_ *cobra.Command, _ []string) {
			cfgPath := filepath.Join(config.DirName, config.FileName)
			if _, err := os.Stat(cfgPath); err == nil && !force {
				printError(fmt.Errorf("already initialized at %s (use --force to rewrite)", config.DirName))
			}
			cfg := config.Default()
			if err := cfg.Write(cfgPath); err != nil {
				printError(err)
			}
			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				printError(err)
			}
			defer store.Close()
			printOutput(formatter.FormatMessage(fmt.Sprintf("Initialized taskmem at %s", config.DirName)))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinitialize even if already exists")
	return cmd
}

// createCmd implements 'taskmem create'.
func createCmd() *cobra.Command {
	var (
		description, priority, status, assignee string
		tags, dependsOn                         []string
		contextJSON, due                        string
		estimate                                float64
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			draft := &task.Task{
				Title:       args[0],
				Description: description,
				Assignee:    assignee,
				Tags:        tags,
				DependsOn:   dependsOn,
			}
			if status != "" {
				if !task.IsValidStatus(task.Status(status)) {
					printError(InvalidStatusError{Value: status})
				}
				draft.Status = task.Status(status)
			}
			if priority != "" {
				if !task.IsValidPriority(task.Priority(priority)) {
					printError(InvalidPriorityError{Value: priority})
				}
				draft.Priority = task.Priority(priority)
			}
			if contextJSON != "" {
				if !json.Valid([]byte(contextJSON)) {
					printError(InvalidContextError{Err: fmt.Errorf("malformed JSON")})
				}
				draft.Context = json.RawMessage(contextJSON)
			}
			if cmd.Flags().Changed("estimate") {
				draft.EstimatedHours = &estimate
			}
			if due != "" {
				d, err := task.ParseTimestamp(due)
				if err != nil {
					printError(InvalidTimestampError{Flag: "due date", Value: due})
				}
				draft.DueDate = &d
			}

			t, err := store.Create(context.Background(), draft)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority (urgent, high, medium, low)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Initial status")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "Assignee")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Dependency task id (repeatable)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Arbitrary context as a JSON value")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "Estimated hours")
	cmd.Flags().StringVar(&due, "due", "", "Due date")
	return cmd
}

// listCmd implements 'taskmem list'.
func listCmd() *cobra.Command {
	var (
		statuses, tags     []string
		assignee, priority string
		sortBy             string
		reverse            bool
		limit              int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			opts := storage.ListOptions{
				Assignee: assignee,
				Tags:     tags,
				SortBy:   sortBy,
				Reverse:  reverse,
				Limit:    limit,
			}
			for _, s := range statuses {
				if !task.IsValidStatus(task.Status(s)) {
					printError(InvalidStatusError{Value: s})
				}
				opts.Statuses = append(opts.Statuses, task.Status(s))
			}
			if priority != "" {
				if !task.IsValidPriority(task.Priority(priority)) {
					printError(InvalidPriorityError{Value: priority})
				}
				opts.Priority = task.Priority(priority)
			}

			tasks, err := store.List(context.Background(), opts)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTaskList(tasks))
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "Filter by assignee")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Filter by tag (repeatable, any match)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Filter by priority")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort key (created_at, updated_at, title, priority, status)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Reverse sort order")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks")
	return cmd
}

// showCmd implements 'taskmem show'.
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			t, err := store.Get(context.Background(), args[0])
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
}

// updateCmd implements 'taskmem update'.
func updateCmd() *cobra.Command {
	var (
		title, description, priority, status, assignee string
		tags, dependsOn                                []string
		contextJSON, due                               string
		estimate, actual                               float64
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			var patch storage.Patch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("status") {
				if !task.IsValidStatus(task.Status(status)) {
					printError(InvalidStatusError{Value: status})
				}
				s := task.Status(status)
				patch.Status = &s
			}
			if cmd.Flags().Changed("priority") {
				if !task.IsValidPriority(task.Priority(priority)) {
					printError(InvalidPriorityError{Value: priority})
				}
				p := task.Priority(priority)
				patch.Priority = &p
			}
			if cmd.Flags().Changed("assignee") {
				patch.Assignee = &assignee
			}
			if cmd.Flags().Changed("tag") {
				patch.Tags = &tags
			}
			if cmd.Flags().Changed("depends-on") {
				patch.DependsOn = &dependsOn
			}
			if cmd.Flags().Changed("context") {
				if contextJSON != "" && !json.Valid([]byte(contextJSON)) {
					printError(InvalidContextError{Err: fmt.Errorf("malformed JSON")})
				}
				raw := json.RawMessage(contextJSON)
				patch.Context = &raw
			}
			if cmd.Flags().Changed("estimate") {
				patch.EstimatedHours = &estimate
			}
			if cmd.Flags().Changed("actual") {
				patch.ActualHours = &actual
			}
			if cmd.Flags().Changed("due") {
				d, err := task.ParseTimestamp(due)
				if err != nil {
					printError(InvalidTimestampError{Flag: "due date", Value: due})
				}
				patch.DueDate = &d
			}

			t, err := store.Update(context.Background(), args[0], patch)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(t))
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVarP(&status, "status", "s", "", "New status")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "New assignee")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Replace dependencies (repeatable)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Replace context JSON")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "Estimated hours")
	cmd.Flags().Float64Var(&actual, "actual", 0, "Actual hours")
	cmd.Flags().StringVar(&due, "due", "", "Due date")
	return cmd
}

// rmCmd implements 'taskmem rm'.
func rmCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			if err := store.Delete(context.Background(), args[0], force); err != nil {
				printError(err)
			}
			printOutput(formatter.FormatMessage(fmt.Sprintf("Removed task %s", args[0])))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete even if other tasks depend on it")
	return cmd
}

// depCmd implements 'taskmem dep'.
func depCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dep <id> <depends-on-id>",
		Short: "Add a dependency",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()
			ctx := context.Background()

			taskID, depID := args[0], args[1]

			tasks, err := store.Snapshot(ctx)
			if err != nil {
				printError(err)
			}
			graph := deps.NewGraph(tasks)
			if err = graph.ValidateAddDep(taskID, depID); err != nil {
				printError(err)
			}

			t := graph.Get(taskID)
			if slices.Contains(t.DependsOn, depID) {
				printOutput(formatter.FormatMessage("Dependency already exists"))
				return
			}
			next := append(slices.Clone(t.DependsOn), depID)
			updated, err := store.Update(ctx, taskID, storage.Patch{DependsOn: &next})
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(updated))
		},
	}
}

// undepCmd implements 'taskmem undep'.
func undepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undep <id> <depends-on-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2), //nolint:mnd // CLI takes 2 positional args
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()
			ctx := context.Background()

			t, err := store.Get(ctx, args[0])
			if err != nil {
				printError(err)
			}

			depID := args[1]
			next := slices.DeleteFunc(slices.Clone(t.DependsOn), func(d string) bool {
				return d == depID
			})
			if len(next) == len(t.DependsOn) {
				printOutput(formatter.FormatMessage("Dependency not found"))
				return
			}
			updated, err := store.Update(ctx, args[0], storage.Patch{DependsOn: &next})
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTask(updated))
		},
	}
}

// readyCmd implements 'taskmem ready'.
func readyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List tasks whose dependencies are all done",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			tasks, err := store.ReadyTasks(context.Background())
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTaskList(tasks))
		},
	}
}

// blockedCmd implements 'taskmem blocked'.
func blockedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List tasks with unmet dependencies",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			tasks, err := store.BlockedTasks(context.Background())
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatTaskList(tasks))
		},
	}
}

// cyclesCmd implements 'taskmem cycles'.
func cyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "Detect dependency cycles",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			tasks, err := store.Snapshot(context.Background())
			if err != nil {
				printError(err)
			}
			cycles := deps.NewGraph(tasks).DetectCycles()
			printOutput(formatter.FormatCycles(cycles))
		},
	}
}

// orderCmd implements 'taskmem order'.
func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print a dependency-respecting execution order",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			tasks, err := store.Snapshot(context.Background())
			if err != nil {
				printError(err)
			}
			order, err := deps.NewGraph(tasks).TopologicalSort()
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatOrder(order))
		},
	}
}

// criticalCmd implements 'taskmem critical'.
func criticalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "critical",
		Short: "Show the longest dependency chain by estimated hours",
		Run: func(_ *cobra.Command, _ []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			tasks, err := store.Snapshot(context.Background())
			if err != nil {
				printError(err)
			}
			graph := deps.NewGraph(tasks)
			path, err := graph.CriticalPath()
			if err != nil {
				printError(err)
			}
			total := 0.0
			for _, id := range path {
				if t := graph.Get(id); t != nil && t.EstimatedHours != nil {
					total += *t.EstimatedHours
				}
			}
			printOutput(formatter.FormatCriticalPath(path, total))
		},
	}
}

// impactCmd implements 'taskmem impact'.
func impactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "impact <id>",
		Short: "Show tasks affected if a task slips",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()
			ctx := context.Background()

			if _, err := store.Get(ctx, args[0]); err != nil {
				printError(err)
			}
			tasks, err := store.Snapshot(ctx)
			if err != nil {
				printError(err)
			}
			im := deps.NewGraph(tasks).ImpactAnalysis(args[0])
			printOutput(formatter.FormatImpact(args[0], im))
		},
	}
}

// exportCmd implements 'taskmem export'.
func exportCmd() *cobra.Command {
	var (
		out      string
		exclude  []string
		compress bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as JSONL",
		Run: func(cmd *cobra.Command, _ []string) {
			store, cfg, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			opts := exchange.ExportOptions{
				ExcludeFields: cfg.Export.ExcludeFields,
				Compress:      cfg.Export.Compress,
			}
			if cmd.Flags().Changed("exclude") {
				opts.ExcludeFields = exclude
			}
			if cmd.Flags().Changed("gzip") {
				opts.Compress = compress
			}

			engine := exchange.NewEngine(store)
			if out == "" || out == "-" {
				if _, err := engine.Export(context.Background(), os.Stdout, opts); err != nil {
					printError(err)
				}
				return
			}
			report, err := engine.ExportFile(context.Background(), out, opts)
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatExportReport(report))
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Field to drop from records (repeatable)")
	cmd.Flags().BoolVar(&compress, "gzip", false, "Gzip the output")
	return cmd
}

// importCmd implements 'taskmem import'.
func importCmd() *cobra.Command {
	var (
		strategy         string
		validate, strict bool
		dryRun           bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from a JSONL file",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			strat, err := exchange.ParseStrategy(strategy)
			if err != nil {
				printError(err)
			}
			opts := exchange.ImportOptions{
				Strategy: strat,
				Validate: validate,
				Strict:   strict,
				DryRun:   dryRun,
			}

			engine := exchange.NewEngine(store)
			var report *exchange.ImportReport
			if args[0] == "-" {
				report, err = engine.Import(context.Background(), os.Stdin, opts)
			} else {
				report, err = engine.ImportFile(context.Background(), args[0], opts)
			}
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatImportReport(report))
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "skip", "Conflict strategy (skip, overwrite, merge, create-new)")
	cmd.Flags().BoolVar(&validate, "validate", true, "Validate records before writing")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject records with unresolved dependencies")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would happen without writing")
	return cmd
}

// syncCmd implements 'taskmem sync'.
func syncCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "sync <file>",
		Short: "Merge-import a JSONL file, then re-export the store to it",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			store, _, err := getStore()
			if err != nil {
				printError(err)
			}
			defer store.Close()

			strat, err := exchange.ParseStrategy(strategy)
			if err != nil {
				printError(err)
			}

			engine := exchange.NewEngine(store)
			report, err := engine.Sync(context.Background(), args[0], exchange.ImportOptions{
				Strategy: strat,
				Validate: true,
			})
			if err != nil {
				printError(err)
			}
			printOutput(formatter.FormatSyncReport(report))
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "merge", "Conflict strategy for the import half")
	return cmd
}
