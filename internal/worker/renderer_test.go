package worker

import (
	"testing"
)

func TestParseRunnerOutput(t *testing.T) {
	out := []byte(`{"status":"ok","output_dir":"/tmp/work/output","pdf_files":["Contract.pdf","Insurance.pdf"]}`)
	result, err := parseRunnerOutput(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Status != "ok" || result.OutputDir != "/tmp/work/output" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.PDFFiles) != 2 || result.PDFFiles[0] != "Contract.pdf" {
		t.Fatalf("unexpected pdf files: %v", result.PDFFiles)
	}
}

func TestParseRunnerOutputWithNoisePrefix(t *testing.T) {
	out := []byte("launching automation host...\nworkbook opened\n" +
		`{"status":"ok","output_dir":"out","pdf_files":["Salary_Certificate.pdf"]}`)
	result, err := parseRunnerOutput(out)
	if err != nil {
		t.Fatalf("parse noisy output: %v", err)
	}
	if result.OutputDir != "out" || len(result.PDFFiles) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseRunnerOutputNonJSON(t *testing.T) {
	if _, err := parseRunnerOutput([]byte("Traceback (most recent call last)")); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}

func TestNewExecRendererEmptyCommand(t *testing.T) {
	if _, err := NewExecRenderer("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestNewExecRendererSplitsArgs(t *testing.T) {
	r, err := NewExecRenderer("python runner.py --headless")
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if r.command != "python" || len(r.args) != 2 || r.args[1] != "--headless" {
		t.Fatalf("unexpected split: command=%q args=%v", r.command, r.args)
	}
}
