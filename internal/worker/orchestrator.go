// Package worker implements the rendering worker: it leases dispatch
// messages, expands them into payloads through the internal gateway, drives
// the external rendering runner, and uploads the produced documents. Logs
// carry identifiers only, never client fields.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"docpack/internal/config"
	"docpack/internal/errs"
	"docpack/internal/gateway"
	"docpack/internal/queue"
	"docpack/internal/telemetry"
)

// Storage is the slice of object storage the worker needs.
type Storage interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Orchestrator drives the worker execution loop.
type Orchestrator struct {
	cfg      config.Config
	queue    *queue.DispatchQueue
	storage  Storage
	gw       *GatewayClient
	renderer Renderer
}

// NewOrchestrator wires the worker loop.
func NewOrchestrator(cfg config.Config, q *queue.DispatchQueue, st Storage, gw *GatewayClient, r Renderer) *Orchestrator {
	return &Orchestrator{cfg: cfg, queue: q, storage: st, gw: gw, renderer: r}
}

// Run polls the dispatch queue until context cancellation. Each pass
// reclaims expired leases, reports queue depth, and processes at most one
// message.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := o.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && reclaimed > 0 {
			log.Printf("requeued %d expired dispatch messages", reclaimed)
			telemetry.InFlightGauge.Sub(float64(reclaimed))
		}
		if depth, err := o.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		msg, ok, err := o.queue.DequeueWithLease(ctx)
		if err != nil {
			log.Printf("dequeue: %v", err)
			time.Sleep(o.cfg.WorkerPollInterval)
			continue
		}
		if !ok {
			time.Sleep(o.cfg.WorkerPollInterval)
			continue
		}

		telemetry.InFlightGauge.Inc()
		o.handle(ctx, msg)
		telemetry.InFlightGauge.Dec()
	}
}

// handle runs one job and settles the dispatch message. A message is acked
// only once an outcome has been recorded; if the failure report itself
// cannot be delivered the lease is left to expire and the message is
// redelivered.
func (o *Orchestrator) handle(ctx context.Context, msg queue.Message) {
	log.Printf("job %s start package=%s", msg.JobID, msg.PackageID)

	err := o.processJob(ctx, msg)
	switch {
	case err == nil:
		log.Printf("job %s done", msg.JobID)
		if aerr := o.queue.Ack(ctx, msg); aerr != nil {
			log.Printf("job %s ack: %v", msg.JobID, aerr)
		}
	case errs.IsCode(err, errs.CodeInvalidTransition), errs.IsCode(err, errs.CodeNotFound):
		// Redelivery of an already settled job; nothing left to do.
		log.Printf("job %s already settled: %v", msg.JobID, err)
		_ = o.queue.Ack(ctx, msg)
	default:
		log.Printf("job %s failed: %v", msg.JobID, err)
		if ferr := o.gw.ReportFail(ctx, msg.JobID, err.Error()); ferr != nil {
			log.Printf("job %s fail report not delivered, leaving lease: %v", msg.JobID, ferr)
			return
		}
		if aerr := o.queue.Ack(ctx, msg); aerr != nil {
			log.Printf("job %s ack: %v", msg.JobID, aerr)
		}
	}
}

// runnerPayload is what the rendering runner reads from disk: the gateway
// payload with storage keys swapped for local file paths.
type runnerPayload struct {
	TemplatePath string `json:"template_path"`
	WorkDir      string `json:"work_dir"`

	Client  gateway.ClientBlock `json:"client"`
	Job     gateway.JobBlock    `json:"job"`
	Company struct {
		Name   string      `json:"selected_company_name"`
		Assets LocalAssets `json:"assets"`
	} `json:"company"`
	Export gateway.ExportBlock `json:"export"`
}

func (o *Orchestrator) processJob(ctx context.Context, msg queue.Message) error {
	payload, err := o.gw.FetchPayload(ctx, msg.JobID)
	if err != nil {
		return err
	}

	workDir, err := filepath.Abs(filepath.Join(o.cfg.WorkRoot, msg.JobID))
	if err != nil {
		return fmt.Errorf("resolve work dir: %w", err)
	}
	// A stale directory means a previous attempt died mid-render.
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("clean work dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(workDir, "output"), 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	template, err := o.storage.Download(ctx, payload.TemplateKey)
	if err != nil {
		return fmt.Errorf("download template %q: %w", payload.TemplateKey, err)
	}
	templatePath := filepath.Join(workDir, "template.xlsm")
	if err := os.WriteFile(templatePath, template, 0o644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}

	assets, err := PrepareAssets(ctx, o.storage, payload.Company.Assets, filepath.Join(workDir, "assets"))
	if err != nil {
		return err
	}

	rp := runnerPayload{
		TemplatePath: templatePath,
		WorkDir:      workDir,
		Client:       payload.Client,
		Job:          payload.Job,
		Export:       payload.Export,
	}
	rp.Company.Name = payload.Company.Name
	rp.Company.Assets = assets

	raw, err := json.MarshalIndent(rp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runner payload: %w", err)
	}
	payloadPath := filepath.Join(workDir, "payload.json")
	if err := os.WriteFile(payloadPath, raw, 0o644); err != nil {
		return fmt.Errorf("write runner payload: %w", err)
	}

	result, err := o.renderer.Render(ctx, payloadPath)
	if err != nil {
		return err
	}

	files, err := o.uploadArtifacts(ctx, payload, result)
	if err != nil {
		return err
	}

	return o.gw.ReportComplete(ctx, msg.JobID, files)
}

// uploadArtifacts pushes every export target plus the zip bundle to storage
// and builds the completion report. Targets the runner did not produce are
// an error; extra files in the output directory are ignored.
func (o *Orchestrator) uploadArtifacts(ctx context.Context, payload gateway.Payload, result RenderResult) ([]gateway.ReportedFile, error) {
	produced := make(map[string]bool, len(result.PDFFiles))
	for _, name := range result.PDFFiles {
		produced[name] = true
	}

	files := make([]gateway.ReportedFile, 0, len(payload.Export.Targets)+1)
	for _, target := range payload.Export.Targets {
		if !produced[target.OutputFile] {
			return nil, fmt.Errorf("runner did not produce %s", target.OutputFile)
		}
		body, err := os.ReadFile(filepath.Join(result.OutputDir, target.OutputFile))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", target.OutputFile, err)
		}
		if err := o.storage.Upload(ctx, target.StorageKey, body, "application/pdf"); err != nil {
			return nil, fmt.Errorf("upload %s: %w", target.OutputFile, err)
		}
		files = append(files, gateway.ReportedFile{
			DocType:     target.DocType,
			Version:     payload.Job.TargetVersion,
			Filename:    target.OutputFile,
			StorageKey:  target.StorageKey,
			ContentType: "application/pdf",
		})
	}

	zipPath := filepath.Join(result.OutputDir, "bundle.zip")
	if err := makeBundle(result.OutputDir, result.PDFFiles, zipPath); err != nil {
		return nil, err
	}
	bundle, err := os.ReadFile(zipPath)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	if err := o.storage.Upload(ctx, payload.Export.BundleKey, bundle, "application/zip"); err != nil {
		return nil, fmt.Errorf("upload bundle: %w", err)
	}
	files = append(files, gateway.ReportedFile{
		DocType:     "bundle",
		Version:     payload.Job.TargetVersion,
		Filename:    "bundle.zip",
		StorageKey:  payload.Export.BundleKey,
		ContentType: "application/zip",
	})

	return files, nil
}
