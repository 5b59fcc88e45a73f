package cmd

import (
	"fmt"

	"github.com/demewebsolutions/truai/internal/audit"
	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/config"
	"github.com/demewebsolutions/truai/internal/llm"
	"github.com/demewebsolutions/truai/internal/orchestrator"
	"github.com/demewebsolutions/truai/internal/task"
)

// engineDeps bundles everything a command needs to run the governance
// pipeline locally. Close must be called when done.
type engineDeps struct {
	cfg        *config.Config
	engine     *orchestrator.Orchestrator
	taskStore  *task.Store
	auditStore *audit.Store
}

func (d *engineDeps) Close() {
	if d.taskStore != nil {
		_ = d.taskStore.Close()
	}
	if d.auditStore != nil {
		_ = d.auditStore.Close()
	}
}

// buildEngine loads config and wires the classifier, provider, invoker,
// and stores into an orchestrator.
func buildEngine() (*engineDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.WarnIfDefaultKeys()
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	markers := classifier.DefaultMarkers()
	if cfg.MarkersFile != "" {
		mf, err := classifier.LoadMarkerFile(cfg.MarkersFile)
		if err != nil {
			return nil, err
		}
		markers = mf.Merge(markers)
	}

	provider, err := llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	if err != nil {
		return nil, err
	}
	invoker := llm.NewInvoker(provider, llm.InvokerConfig{
		Timeout:     cfg.GenerateTimeout,
		MaxAttempts: cfg.MaxAttempts,
	})

	taskStore, err := task.NewStore(cfg.TaskDBPath())
	if err != nil {
		return nil, err
	}
	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		_ = taskStore.Close()
		return nil, err
	}

	engine := orchestrator.New(orchestrator.Config{
		Classifier: classifier.NewFromMarkers(markers),
		Models:     cfg.Models,
		Invoker:    invoker,
		Tasks:      taskStore,
		Audit:      auditStore,
	})

	return &engineDeps{
		cfg:        cfg,
		engine:     engine,
		taskStore:  taskStore,
		auditStore: auditStore,
	}, nil
}
