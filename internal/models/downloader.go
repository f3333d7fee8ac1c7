package models

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrInvalidModel is returned when a directory or archive does not hold a
// saved model.
var ErrInvalidModel = errors.New("invalid model")

// A saved model directory needs the config plus one weights file.
var (
	modelConfigFile  = "config.json"
	modelWeightFiles = []string{"model.safetensors", "pytorch_model.bin", "model.onnx"}
)

type Progress struct {
	Downloaded int64
	Total      int64
	SpeedMBps  float64
	ETA        time.Duration
}

type ProgressCallback func(Progress)

type Downloader struct {
	Client    *resty.Client
	Retries   int
	RetryWait time.Duration

	mu sync.Mutex
}

func NewDownloader() *Downloader {
	return &Downloader{
		Client:    resty.New().SetDoNotParseResponse(true),
		Retries:   2,
		RetryWait: 500 * time.Millisecond,
	}
}

// DownloadAndInstall fetches the model archive, verifies its checksum and
// swaps it into root/<name>. Installs are serialized per downloader.
func (d *Downloader) DownloadAndInstall(ctx context.Context, model ModelSpec, modelsRoot string, onProgress ProgressCallback) error {
	if !model.Archived() {
		return fmt.Errorf("model %s has no archive to install; it is fetched by the engine on first load", model.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(modelsRoot, 0o755); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(modelsRoot, model.Name+"-download-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, model.Name+".tar.gz")
	if err := d.downloadWithRetry(ctx, model.URL, archivePath, onProgress); err != nil {
		return err
	}
	if err := VerifyChecksum(archivePath, model.Checksum); err != nil {
		return err
	}
	return InstallArchive(archivePath, modelsRoot, model.Name, model.Checksum)
}

// InstallArchive extracts a tar.gz holding a saved model into root/<name>,
// replacing any previous install.
func InstallArchive(archivePath, modelsRoot, name, checksum string) error {
	extractDir, err := os.MkdirTemp(modelsRoot, name+"-extract-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(extractDir)

	if err := ExtractTarGz(archivePath, extractDir); err != nil {
		return err
	}
	modelDir, err := findModelDir(extractDir)
	if err != nil {
		return err
	}

	finalPath := ModelInstallPath(modelsRoot, name)
	oldPath := finalPath + ".bak"
	_ = os.RemoveAll(oldPath)
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Rename(finalPath, oldPath); err != nil {
			return err
		}
	}
	if err := os.Rename(modelDir, finalPath); err != nil {
		_ = os.Rename(oldPath, finalPath)
		return err
	}
	if checksum != "" {
		if err := os.WriteFile(filepath.Join(finalPath, ".checksum"), []byte(checksum+"\n"), 0o644); err != nil {
			return err
		}
	}
	_ = os.RemoveAll(oldPath)
	return nil
}

func (d *Downloader) downloadWithRetry(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.RetryWait):
			}
		}
		lastErr = d.download(ctx, url, dest, onProgress)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("download failed after retries: %w", lastErr)
}

func (d *Downloader) download(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	resp, err := d.Client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("download status %d", resp.StatusCode())
	}

	buf := make([]byte, 32*1024)
	start := time.Now()
	var downloaded int64
	total := resp.RawResponse.ContentLength
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(progress(downloaded, total, time.Since(start)))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	return out.Sync()
}

func progress(downloaded, total int64, elapsed time.Duration) Progress {
	p := Progress{Downloaded: downloaded, Total: total}
	if s := elapsed.Seconds(); s > 0 {
		p.SpeedMBps = float64(downloaded) / s / 1024 / 1024
	}
	if total > 0 && p.SpeedMBps > 0 {
		remainingMB := float64(total-downloaded) / 1024 / 1024
		p.ETA = time.Duration(remainingMB / p.SpeedMBps * float64(time.Second))
	}
	return p
}

func VerifyChecksum(file, expected string) error {
	if strings.TrimSpace(expected) == "" {
		return fmt.Errorf("checksum missing")
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	actual := "sha256:" + hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func ExtractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		clean := filepath.Clean(hdr.Name)
		clean = strings.TrimPrefix(clean, "./")
		if clean == "." || strings.HasPrefix(clean, "../") {
			continue
		}
		target := filepath.Join(dest, clean)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateModelDir checks that dir holds a saved model.
func ValidateModelDir(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, modelConfigFile)); err != nil {
		return fmt.Errorf("%w: %s has no %s", ErrInvalidModel, dir, modelConfigFile)
	}
	for _, w := range modelWeightFiles {
		if _, err := os.Stat(filepath.Join(dir, w)); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no weights (%s)", ErrInvalidModel, dir, strings.Join(modelWeightFiles, ", "))
}

// findModelDir accepts archives with the model at the top level or inside a
// single wrapping directory.
func findModelDir(base string) (string, error) {
	if ValidateModelDir(base) == nil {
		return base, nil
	}
	entries, _ := os.ReadDir(base)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c := filepath.Join(base, e.Name())
		if ValidateModelDir(c) == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: archive is missing required files", ErrInvalidModel)
}
