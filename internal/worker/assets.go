package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"docpack/internal/gateway"
)

// maxAssetDimension caps logo and signature images before they reach the
// renderer. Oversized uploads otherwise blow up workbook embedding time.
const maxAssetDimension = 1600

// Downloader fetches objects from package storage.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// LocalAssets holds the on-disk paths of the prepared company assets.
type LocalAssets struct {
	LogoPath         string `json:"logo_png"`
	SealPath         string `json:"seal_png"`
	DirectorSignPath string `json:"director_sign_png"`
	ClientSignPath   string `json:"client_sign_png"`
}

// PrepareAssets downloads the company assets into assetsDir under fixed
// names, validating and normalizing each one. A missing or undecodable
// asset is a job failure, not something to paper over with a placeholder.
func PrepareAssets(ctx context.Context, dl Downloader, assets gateway.AssetBlock, assetsDir string) (LocalAssets, error) {
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return LocalAssets{}, fmt.Errorf("create assets dir: %w", err)
	}

	type item struct {
		name string
		key  string
		file string
	}
	items := []item{
		{name: "logo", key: assets.LogoKey, file: "logo.png"},
		{name: "seal", key: assets.SealKey, file: "seal.png"},
		{name: "director sign", key: assets.DirectorSignKey, file: "director_sign.png"},
		{name: "client sign", key: assets.ClientSignKey, file: "client_sign.png"},
	}

	paths := make([]string, len(items))
	for i, it := range items {
		if it.key == "" {
			return LocalAssets{}, fmt.Errorf("company asset %s has no storage key", it.name)
		}
		raw, err := dl.Download(ctx, it.key)
		if err != nil {
			return LocalAssets{}, fmt.Errorf("download %s asset %q: %w", it.name, it.key, err)
		}
		normalized, err := normalizePNG(raw)
		if err != nil {
			return LocalAssets{}, fmt.Errorf("asset %s (%q): %w", it.name, it.key, err)
		}
		dst := filepath.Join(assetsDir, it.file)
		if err := os.WriteFile(dst, normalized, 0o644); err != nil {
			return LocalAssets{}, fmt.Errorf("write %s asset: %w", it.name, err)
		}
		paths[i] = dst
	}

	return LocalAssets{
		LogoPath:         paths[0],
		SealPath:         paths[1],
		DirectorSignPath: paths[2],
		ClientSignPath:   paths[3],
	}, nil
}

// normalizePNG decodes the asset, downscales anything past the dimension
// cap, and re-encodes as PNG so the renderer always sees one format.
func normalizePNG(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxAssetDimension || bounds.Dy() > maxAssetDimension {
		img = imaging.Fit(img, maxAssetDimension, maxAssetDimension, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
