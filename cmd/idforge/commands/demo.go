package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/idforge/idforge/pkg/config"
	"github.com/idforge/idforge/pkg/connector"
	"github.com/idforge/idforge/pkg/expr"
	"github.com/idforge/idforge/pkg/identity"
	"github.com/idforge/idforge/pkg/mapping"
	"github.com/idforge/idforge/pkg/password"
	"github.com/idforge/idforge/pkg/propagation"
	"github.com/idforge/idforge/pkg/provisioning"
	"github.com/idforge/idforge/pkg/stores"
	"github.com/idforge/idforge/pkg/telemetry"
)

func newDemoCommand() *cobra.Command {
	var (
		username string
		email    string
		pwd      string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted provisioning round against in-memory connectors",
		Long: `Run a scripted provisioning round against in-memory connectors.

The demo creates a user, propagates it to every configured resource,
then suspends and finally deletes it, printing the per-resource
statuses after each step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), username, email, pwd)
		},
	}

	cmd.Flags().StringVar(&username, "username", "jdoe", "username of the demo user")
	cmd.Flags().StringVar(&email, "email", "jdoe@example.com", "email of the demo user")
	cmd.Flags().StringVar(&pwd, "password", "Demo-Passw0rd", "clear-text password of the demo user")

	return cmd
}

func runDemo(ctx context.Context, username, email, pwd string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	user := identity.NewUser("u-demo-1", username,
		identity.WithUniquePlainAttr("email", email),
		identity.WithResources(engine.catalog.Names()...),
	)

	fmt.Printf("== create %s\n", username)
	key, statuses, err := engine.manager.Create(ctx, user, pwd, boolPtr(true))
	if err != nil {
		return err
	}
	printStatuses(statuses)

	fmt.Printf("== suspend %s\n", username)
	_, statuses, err = engine.manager.Status(ctx, &identity.StatusPatch{
		Key:         key,
		Type:        identity.StatusSuspend,
		OnCanonical: true,
	})
	if err != nil {
		return err
	}
	printStatuses(statuses)

	fmt.Printf("== delete %s\n", username)
	statuses, err = engine.manager.Delete(ctx, identity.KindUser, key)
	if err != nil {
		return err
	}
	printStatuses(statuses)

	return nil
}

// engine bundles the fully wired provisioning stack.
type engine struct {
	catalog *mapping.Catalog
	manager *provisioning.Manager
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *telemetry.Logger, metrics *telemetry.Metrics) (*engine, func(), error) {
	cleanup := func() {}

	transformers := mapping.NewTransformerRegistry()
	if err := cfg.CheckTransformers(transformers); err != nil {
		return nil, cleanup, err
	}
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return nil, cleanup, err
	}
	schemas := cfg.BuildSchemas()

	secret := cfg.Password.Secret
	if secret == "" {
		secret = "idforge-demo-secret"
	}
	encryptor, err := password.NewEncryptor([]byte(secret))
	if err != nil {
		return nil, cleanup, err
	}
	generator := password.NewGenerator(password.Policy{
		MinLength:    cfg.Password.Policy.MinLength,
		Digits:       cfg.Password.Policy.Digits,
		Uppercase:    cfg.Password.Policy.Uppercase,
		Special:      cfg.Password.Policy.Special,
		SpecialChars: cfg.Password.Policy.SpecialChars,
	})

	dir := identity.NewMemDirectory()
	eval := expr.NewEvaluator(time.Second)
	virCache := mapping.NewVirAttrCache()
	resolver := mapping.NewResolver(schemas, transformers, eval, virCache, logger)
	assembler := mapping.NewAssembler(dir, schemas, resolver, eval, encryptor, generator, virCache, metrics, logger)

	connectors := connector.NewRegistry()
	for _, res := range cfg.Resources {
		if connectors.Has(res.Connector) {
			continue
		}
		if err := connectors.Register(res.Connector, connector.NewMemConnector()); err != nil {
			return nil, cleanup, err
		}
	}

	var audit propagation.AuditSink
	if cfg.Audit.Path != "" {
		store, err := stores.NewSQLiteAuditStore(stores.Config{Path: cfg.Audit.Path})
		if err != nil {
			return nil, cleanup, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = store.Close() }
		audit = store
	}

	factory := propagation.NewFactory(catalog, assembler, propagation.Policy{
		RefreshOnMembershipChange: cfg.RefreshOnMembershipChange(),
	}, logger)
	executor := propagation.NewExecutor(connectors, propagation.ExecutorOptions{
		MaxParallel: cfg.Executor.MaxParallel,
		MaxRetries:  cfg.Executor.MaxRetries,
		Timeout:     cfg.Executor.Timeout,
	}, audit, metrics, logger)

	workflow := provisioning.NewMemWorkflow(dir, encryptor, password.CipherAlgorithm(cfg.Password.Cipher))
	workflow.SetLinkResolver(factory)
	manager := provisioning.NewManager(dir, workflow, factory, executor, metrics, logger)

	return &engine{catalog: catalog, manager: manager}, cleanup, nil
}

func printStatuses(statuses []propagation.Status) {
	for _, s := range statuses {
		if s.FailureReason != "" {
			fmt.Printf("  %-20s %-13s %s (%s)\n", s.Resource, s.Status, s.ConnObjectKey, s.FailureReason)
		} else {
			fmt.Printf("  %-20s %-13s %s\n", s.Resource, s.Status, s.ConnObjectKey)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
