// Package doctor provides installation health checks for the governor.
// Used by `truai doctor` to validate configuration, state databases, and
// provider reachability before serving traffic.
package doctor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fmt"

	"github.com/demewebsolutions/truai/internal/audit"
	"github.com/demewebsolutions/truai/internal/classifier"
	"github.com/demewebsolutions/truai/internal/config"
	"github.com/demewebsolutions/truai/internal/task"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls optional check categories.
type Options struct {
	SkipProvider bool // skip provider connectivity checks (for CI/offline)
	ProviderURL  string
}

const defaultProviderURL = "https://api.openai.com"

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check TRUAI_* env vars and truai.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkSigningKey(cfg))
		report.Checks = append(report.Checks, checkProviderKey(cfg))
		report.Checks = append(report.Checks, checkMarkers(cfg))
		report.Checks = append(report.Checks, checkTaskDB(cfg))
		report.Checks = append(report.Checks, checkAuditDB(cfg))
		if !opts.SkipProvider {
			report.Checks = append(report.Checks, checkProviderReachable(ctx, opts.ProviderURL))
		}
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: "warn",
			Message: "Using generated default",
			Fix:     "Set TRUAI_SIGNING_KEY for production",
		}
	}
	return CheckResult{Name: "signing_key", Category: "config", Status: "pass", Message: "Configured"}
}

func checkProviderKey(cfg *config.Config) CheckResult {
	if cfg.OpenAIAPIKey == "" {
		return CheckResult{
			Name: "provider_key", Category: "config", Status: "fail",
			Message: "No OpenAI API key found",
			Fix:     "Set TRUAI_OPENAI_API_KEY or OPENAI_API_KEY",
		}
	}
	return CheckResult{Name: "provider_key", Category: "config", Status: "pass", Message: "Configured"}
}

func checkMarkers(cfg *config.Config) CheckResult {
	if cfg.MarkersFile == "" {
		return CheckResult{
			Name: "risk_markers", Category: "config", Status: "pass",
			Message: "Built-in marker tables",
		}
	}
	mf, err := classifier.LoadMarkerFile(cfg.MarkersFile)
	if err != nil {
		return CheckResult{
			Name: "risk_markers", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.MarkersFile, err),
			Fix:     "Fix the marker YAML or unset TRUAI_MARKERS_FILE",
		}
	}
	if mf == nil {
		return CheckResult{
			Name: "risk_markers", Category: "config", Status: "warn",
			Message: fmt.Sprintf("%s — file not found, using built-ins", cfg.MarkersFile),
		}
	}
	return CheckResult{
		Name: "risk_markers", Category: "config", Status: "pass",
		Message: cfg.MarkersFile,
	}
}

func checkTaskDB(cfg *config.Config) CheckResult {
	store, err := task.NewStore(cfg.TaskDBPath())
	if err != nil {
		return CheckResult{
			Name: "task_db", Category: "state", Status: "fail",
			Message: err.Error(),
		}
	}
	_ = store.Close()
	return CheckResult{Name: "task_db", Category: "state", Status: "pass", Message: cfg.TaskDBPath()}
}

func checkAuditDB(cfg *config.Config) CheckResult {
	store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "state", Status: "fail",
			Message: err.Error(),
		}
	}
	_ = store.Close()
	return CheckResult{Name: "audit_db", Category: "state", Status: "pass", Message: cfg.AuditDBPath()}
}

func checkProviderReachable(ctx context.Context, baseURL string) CheckResult {
	if baseURL == "" {
		baseURL = defaultProviderURL
	}
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return CheckResult{
			Name: "provider_reachable", Category: "provider", Status: "fail",
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name: "provider_reachable", Category: "provider", Status: "fail",
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity",
		}
	}
	resp.Body.Close()

	status := "pass"
	fix := ""
	if latency > time.Second {
		status = "warn"
		fix = "High latency to the provider; generation timeouts may need raising"
	}
	return CheckResult{
		Name: "provider_reachable", Category: "provider", Status: status,
		Message: fmt.Sprintf("%s — %dms", baseURL, latency.Milliseconds()),
		Fix:     fix,
	}
}
