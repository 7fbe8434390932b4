package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/client"
	"github.com/Aashish23092/invoice-flow/config"
	"github.com/Aashish23092/invoice-flow/handler"
	"github.com/Aashish23092/invoice-flow/service"
	"github.com/Aashish23092/invoice-flow/store"
)

// backend is everything the services read from or write to persistence.
type backend interface {
	service.InvoiceStore
	service.HistoryReader
	service.UserDirectory
	service.ServiceDirectory
	service.RuleSource
	service.TemplateCatalog
}

// appEnv holds the wired services shared by every command.
type appEnv struct {
	Store      backend
	Processor  *service.InvoiceProcessor
	Anomaly    *service.AnomalyDetector
	Priority   *service.PriorityScorer
	Delay      *service.DelayPredictor
	Engine     *service.RuleEngine
	Automation *service.AutomationService
	Reminders  *service.ReminderService

	closers []func()
}

// Close releases connections in reverse order of creation.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *appEnv) handler() *handler.InvoiceHandler {
	return handler.NewInvoiceHandler(handler.Deps{
		Store:      e.Store,
		Rules:      e.Store,
		Processor:  e.Processor,
		Anomaly:    e.Anomaly,
		Priority:   e.Priority,
		Delay:      e.Delay,
		Engine:     e.Engine,
		Automation: e.Automation,
		Reminders:  e.Reminders,
		UploadDir:  cfg.Server.UploadDir,
		MaxUpload:  cfg.Server.MaxUploadBytes(),
		Logger:     zap.L(),
	})
}

// initApp connects the configured backends and wires the services.
func initApp(ctx context.Context) (*appEnv, error) {
	env := &appEnv{}
	log := zap.L()

	st, err := initStore(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st

	locker, ledger, err := initCoordination(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	dispatcher, err := initDispatcher(env)
	if err != nil {
		env.Close()
		return nil, err
	}

	recognizer := initRecognizer(env)

	notifier := service.NewNotificationService(dispatcher, st, time.Now, log)
	env.Anomaly = service.NewAnomalyDetector(st, time.Now, log)
	env.Priority = service.NewPriorityScorer(cfg.Scoring.StrategicVendors, time.Now, log)
	env.Delay = service.NewDelayPredictor(nil, st, time.Now, log)
	env.Engine = service.NewRuleEngine(st, st, st, notifier, time.Now, log)
	env.Automation = service.NewAutomationService(st, st, env.Engine, cfg.Workflow.AutomationConcurrency, log)
	env.Reminders = service.NewReminderService(st, st, notifier, ledger,
		cfg.Workflow.ReminderDays, cfg.Workflow.EscalationDays, time.Now, log)
	env.Processor = service.NewInvoiceProcessor(service.ProcessorDeps{
		Store:              st,
		Templates:          st,
		Pipeline:           service.NewOCRPipeline(recognizer, cfg.OCR.PreprocessOptions(), log),
		PDF:                service.NewPDFProcessor(),
		QR:                 service.NewQRReader(),
		Anomaly:            env.Anomaly,
		Priority:           env.Priority,
		Delay:              env.Delay,
		Router:             service.NewWorkflowRouter(st, st, st, notifier, time.Now, log),
		Locker:             locker,
		MergeMinConfidence: cfg.OCR.MergeMinConfidence,
		Now:                time.Now,
		Logger:             log,
	})
	return env, nil
}

func initStore(ctx context.Context, env *appEnv) (backend, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := store.ConnectPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, pool.Close)
		pg := store.NewPostgresStore(pool, time.Now)
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return pg, nil
	case "memory":
		catalog := config.DefaultCatalog()
		if cfg.Store.CatalogFile != "" {
			var err error
			catalog, err = config.LoadCatalog(cfg.Store.CatalogFile)
			if err != nil {
				return nil, err
			}
		}
		mem := store.NewMemoryStore(time.Now)
		if err := catalog.Apply(mem); err != nil {
			return nil, err
		}
		zap.L().Info("using in-memory store",
			zap.Int("templates", len(catalog.Templates)),
			zap.Int("rules", len(catalog.Rules)),
		)
		return mem, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCoordination returns the invoice lock and reminder ledger, shared
// through Redis when configured and in process otherwise.
func initCoordination(ctx context.Context, env *appEnv) (service.Locker, service.ReminderLedger, error) {
	if cfg.Redis.URL == "" {
		return store.NewKeyedMutex(), store.NewMemoryLedger(time.Now), nil
	}
	rdb, err := store.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	env.closers = append(env.closers, func() { _ = rdb.Close() })
	return store.NewRedisLocker(rdb, cfg.Redis.KeyPrefix), store.NewRedisLedger(rdb, cfg.Redis.KeyPrefix), nil
}

func initDispatcher(env *appEnv) (service.Dispatcher, error) {
	if cfg.NATS.URL == "" {
		return client.NewLogDispatcher(zap.L()), nil
	}
	nc, err := client.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = nc.Drain() })
	return client.NewNATSDispatcher(nc, cfg.NATS.Subject, zap.L()), nil
}

func initRecognizer(env *appEnv) service.Recognizer {
	if cfg.OCR.Provider == "paddle" {
		return client.NewPaddleClient(cfg.OCR.PaddleURL, time.Duration(cfg.OCR.PaddleTimeoutSecs)*time.Second, zap.L())
	}
	tc := client.NewTesseractClient(cfg.OCR.TessdataPrefix, cfg.OCR.Languages, zap.L())
	env.closers = append(env.closers, tc.Close)
	return tc
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}
