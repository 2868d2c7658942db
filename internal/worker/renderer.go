package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// RenderResult is the runner's report: where the PDFs landed and what they
// are called.
type RenderResult struct {
	Status    string   `json:"status"`
	OutputDir string   `json:"output_dir"`
	PDFFiles  []string `json:"pdf_files"`
}

// Renderer turns a payload file into a directory of PDFs.
type Renderer interface {
	Render(ctx context.Context, payloadPath string) (RenderResult, error)
}

// ExecRenderer shells out to the rendering runner. The runner owns the
// workbook automation; this side only hands it the payload path and reads
// the JSON result from stdout.
type ExecRenderer struct {
	command string
	args    []string
}

// NewExecRenderer splits the configured command line into program and
// leading arguments.
func NewExecRenderer(commandLine string) (*ExecRenderer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("runner command is empty")
	}
	return &ExecRenderer{command: fields[0], args: fields[1:]}, nil
}

// Render runs the runner with --payload and parses its result.
func (r *ExecRenderer) Render(ctx context.Context, payloadPath string) (RenderResult, error) {
	args := append(append([]string{}, r.args...), "--payload", payloadPath)
	cmd := exec.CommandContext(ctx, r.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Runner output can contain local paths; report the exit only.
		return RenderResult{}, fmt.Errorf("runner failed: %w", err)
	}

	result, err := parseRunnerOutput(stdout.Bytes())
	if err != nil {
		return RenderResult{}, err
	}
	if result.Status != "ok" {
		return RenderResult{}, fmt.Errorf("runner returned status %q", result.Status)
	}
	if len(result.PDFFiles) == 0 {
		return RenderResult{}, fmt.Errorf("runner produced no documents")
	}
	return result, nil
}

// parseRunnerOutput decodes the runner's JSON result. Automation layers
// sometimes print noise before the result, so when the whole of stdout is
// not valid JSON the last top-level object is tried.
func parseRunnerOutput(out []byte) (RenderResult, error) {
	out = bytes.TrimSpace(out)

	var result RenderResult
	if err := json.Unmarshal(out, &result); err == nil {
		return result, nil
	}

	if idx := bytes.LastIndexByte(out, '{'); idx >= 0 {
		if err := json.Unmarshal(out[idx:], &result); err == nil {
			return result, nil
		}
	}
	return RenderResult{}, fmt.Errorf("runner returned non-JSON output")
}
