package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"
)

const remoteFetchTimeout = 120 * time.Second

// IsRemote reports whether src needs to be downloaded before it can be read.
func IsRemote(src string) bool {
	for _, prefix := range []string{"http://", "https://", "git::", "s3::", "github.com/", "git@"} {
		if strings.HasPrefix(src, prefix) {
			return true
		}
	}
	return false
}

// FetchRemote downloads a single chain file from src into dst and returns the local
// path. src uses go-getter syntax, so http(s), git and s3 sources all work.
func FetchRemote(ctx context.Context, src, dst string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare %s: %w", dst, err)
	}

	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
			&getter.GitDetector{},
			&getter.S3Detector{},
		},
		Getters: map[string]getter.Getter{
			"http":  &getter.HttpGetter{},
			"https": &getter.HttpGetter{},
			"git":   &getter.GitGetter{},
			"s3":    &getter.S3Getter{},
		},
	}

	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to download chain file from %s: %w", src, err)
	}
	return dst, nil
}
