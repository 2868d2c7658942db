package worker

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// makeBundle zips the named PDFs from outputDir into zipPath, keeping the
// exact file names inside the archive. Every named file must exist.
func makeBundle(outputDir string, pdfNames []string, zipPath string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range pdfNames {
		src, err := os.Open(filepath.Join(outputDir, name))
		if err != nil {
			zw.Close()
			return fmt.Errorf("missing expected document %s: %w", name, err)
		}
		w, err := zw.Create(name)
		if err != nil {
			src.Close()
			zw.Close()
			return fmt.Errorf("bundle entry %s: %w", name, err)
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			zw.Close()
			return fmt.Errorf("bundle entry %s: %w", name, err)
		}
		src.Close()
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize bundle: %w", err)
	}
	return nil
}
