package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/shieldview/access"
	"github.com/shieldview/access/logger"
	"github.com/shieldview/access/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "simulate":
		handleSimulate()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("access-config - Configuration tool for the access engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  access-config convert <input> <output>             - Convert between formats")
	fmt.Println("  access-config validate <file>                      - Validate configuration")
	fmt.Println("  access-config stats <file>                         - Show configuration statistics")
	fmt.Println("  access-config simulate <file> <user> <res> <act>   - Evaluate one request and print the trace")
	fmt.Println("  access-config apply <file> [sqlite-dsn]            - Apply configuration to an engine")
	fmt.Println()
	fmt.Println("Supported formats: .dsl, .txt, .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: access-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg := mustLoad(inputFile)
	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config validate <file>")
		os.Exit(1)
	}

	cfg := mustLoad(os.Args[2])
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Version:     %d\n", cfg.Version)
	fmt.Printf("  Users:       %d\n", len(cfg.Users))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Resources:   %d\n", len(cfg.Resources))
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg := mustLoad(filename)

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Users:       %d\n", len(cfg.Users))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Resources:   %d\n", len(cfg.Resources))
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
	fmt.Printf("  Memberships: %d\n", len(cfg.Memberships))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allowRules, denyRules, conditions := 0, 0, 0
		for _, p := range cfg.Policies {
			for _, r := range p.Rules {
				if r.Effect == access.EffectAllow {
					allowRules++
				} else {
					denyRules++
				}
				conditions += len(r.Conditions)
			}
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow rules: %d\n", allowRules)
		fmt.Printf("  Deny rules:  %d\n", denyRules)
		fmt.Printf("  Conditions:  %d\n", conditions)
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		withParent := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
			if r.ParentRole != "" {
				withParent++
			}
		}
		fmt.Println("Role Details:")
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Printf("  With parent role:  %d\n", withParent)
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Decision cache TTL: %dms\n", cfg.Engine.DecisionCacheTTL)
	fmt.Printf("  Audit buffer:       %d\n", cfg.Engine.AuditBuffer)
}

func handleSimulate() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: access-config simulate <file> <user> <resource> <action>")
		os.Exit(1)
	}

	cfg := mustLoad(os.Args[2])
	engine := buildEngine(nil)
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	req := &access.AccessRequest{UserID: os.Args[3], Resource: os.Args[4], Action: os.Args[5]}
	dec, err := engine.EvaluateAccess(ctx, req)
	if err != nil {
		fmt.Printf("Error evaluating request: %v\n", err)
		os.Exit(1)
	}

	verdict := "DENY"
	if dec.Allowed {
		verdict = "ALLOW"
	}
	fmt.Printf("%s: %s\n", verdict, dec.Reason)
	if dec.MatchedPolicy != "" {
		fmt.Printf("Matched: policy %s, rule %s\n", dec.MatchedPolicy, dec.MatchedRule)
	}
	fmt.Println()
	fmt.Println("Evaluation trace:")
	for _, step := range dec.EvaluationPath {
		fmt.Printf("  %2d. [%-4s] %-16s %s\n", step.Step, step.Result, step.Type, step.Description)
	}
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: access-config apply <file> [sqlite-dsn]")
		os.Exit(1)
	}

	cfg := mustLoad(os.Args[2])

	var db *squealx.DB
	if len(os.Args) > 3 {
		sqlDB, err := sql.Open("sqlite", os.Args[3])
		if err != nil {
			fmt.Printf("Error opening database: %v\n", err)
			os.Exit(1)
		}
		db = squealx.NewDb(sqlDB, "sqlite", "access")
		if err := stores.Migrate(db); err != nil {
			fmt.Printf("Error migrating database: %v\n", err)
			os.Exit(1)
		}
	}

	engine := buildEngine(db)
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration applied successfully")
	fmt.Printf("  Users loaded:     %d\n", len(cfg.Users))
	fmt.Printf("  Roles loaded:     %d\n", len(cfg.Roles))
	fmt.Printf("  Resources loaded: %d\n", len(cfg.Resources))
	fmt.Printf("  Policies loaded:  %d\n", len(cfg.Policies))
}

// buildEngine wires an engine over SQL stores when a database is given and
// memory stores otherwise. Engine logs go to stderr, errors only, so they do
// not mix with the command output on stdout.
func buildEngine(db *squealx.DB) *access.Engine {
	var (
		engine *access.Engine
		err    error
	)
	ctx := context.Background()
	log := logger.NewSLogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))
	if db != nil {
		var audit *stores.SQLAuditStore
		audit, err = stores.NewSQLAuditStore(db)
		if err == nil {
			engine, err = access.NewEngine(ctx,
				stores.NewSQLUserStore(db),
				stores.NewSQLRoleStore(db),
				stores.NewSQLPolicyStore(db),
				stores.NewSQLResourceStore(db),
				audit,
				access.WithLogger(log),
				access.WithRoleMembershipStore(stores.NewSQLRoleMembershipStore(db)),
			)
		}
	} else {
		engine, err = access.NewEngine(ctx,
			stores.NewMemoryUserStore(),
			stores.NewMemoryRoleStore(),
			stores.NewMemoryPolicyStore(),
			stores.NewMemoryResourceStore(),
			stores.NewMemoryAuditStore(),
			access.WithLogger(log),
			access.WithRoleMembershipStore(stores.NewMemoryRoleMembershipStore()),
		)
	}
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	return engine
}

func mustLoad(filename string) *access.Config {
	loader := access.NewConfigLoader()
	cfg, err := loader.LoadFile(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func saveConfig(cfg *access.Config, filename string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".dsl", ".txt":
		data = cfg.ToDSL()
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filename))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
