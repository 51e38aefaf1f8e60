package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-live-translate/internal/engine"
	"github.com/nupi-ai/plugin-live-translate/internal/logging"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
)

const defaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

func main() {
	var (
		variant = flag.String("variant", "base", "whisper.cpp model variant (tiny, base, small, medium, large-v3, ...)")
		output  = flag.String("dir", "models", "directory where ggml-<variant>.bin will be stored")
		baseURL = flag.String("base-url", defaultBaseURL, "location the ggml files are fetched from")
		wantSum = flag.String("sha256", "", "expected SHA-256 of the model file; empty skips the check")
		force   = flag.Bool("force", false, "download even when the file already exists")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := logging.New("info")

	dir := filepath.Clean(*output)
	target := filepath.Join(dir, engine.ModelFilename(*variant))
	if !*force {
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Model %q already present at %s\n", *variant, target)
			return
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "download_model: create %s: %v\n", dir, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	url := strings.TrimRight(*baseURL, "/") + "/" + engine.ModelFilename(*variant)
	logger.Info("downloading model", "variant", *variant, "url", url)

	client := &http.Client{Timeout: 15 * time.Minute}
	size, sum, err := download(ctx, client, url, target, *wantSum, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: %s: %v\n", *variant, err)
		os.Exit(1)
	}

	fmt.Printf("Model %q ready at %s (size=%d sha256=%s)\n", *variant, target, size, sum)
}

// download streams url into a temp file beside dest. dest only appears once
// the transfer and the optional checksum succeed.
func download(ctx context.Context, client *http.Client, url, dest, wantSum string, logger *slog.Logger) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", moduleinfo.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, "", fmt.Errorf("write model: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if wantSum = strings.ToLower(strings.TrimSpace(wantSum)); wantSum != "" && wantSum != sum {
		return 0, "", fmt.Errorf("checksum mismatch: got %s, want %s", sum, wantSum)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, "", fmt.Errorf("install model: %w", err)
	}
	logger.Info("model stored", "path", dest, "size", written, "sha256", sum)
	return written, sum, nil
}
