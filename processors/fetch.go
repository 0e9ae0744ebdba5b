package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"videoChat/core"
	"videoChat/utils"
)

// Fetcher resolves a video URL to a local file plus provider metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) (string, core.VideoMetadata, error)
}

// YtDlpFetcher downloads through the yt-dlp binary. Local file paths are
// accepted as-is and copied into the working directory, so the pipeline can
// also process videos that are already on disk.
type YtDlpFetcher struct{}

type ytDlpInfo struct {
	Uploader  string `json:"uploader"`
	Title     string `json:"title"`
	ViewCount int64  `json:"view_count"`
	Ext       string `json:"ext"`
}

func (f YtDlpFetcher) Fetch(ctx context.Context, url, destDir string) (string, core.VideoMetadata, error) {
	if st, err := os.Stat(url); err == nil && !st.IsDir() {
		return f.fetchLocal(url, destDir)
	}

	outTmpl := filepath.Join(destDir, "input_vid.%(ext)s")
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", "best",
		"-o", outTmpl,
		"--no-progress",
		"--print-json",
		url,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", core.VideoMetadata{}, &core.FetchError{URL: url, Err: ctx.Err()}
		}
		return "", core.VideoMetadata{}, &core.FetchError{URL: url, Err: fmt.Errorf("yt-dlp: %v: %s", err, stderr.String())}
	}

	var info ytDlpInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		return "", core.VideoMetadata{}, &core.FetchError{URL: url, Err: fmt.Errorf("parse yt-dlp output: %w", err)}
	}
	if info.Ext == "" {
		return "", core.VideoMetadata{}, &core.FetchError{URL: url, Err: fmt.Errorf("yt-dlp reported no container extension")}
	}

	path := filepath.Join(destDir, "input_vid."+info.Ext)
	if _, err := os.Stat(path); err != nil {
		return "", core.VideoMetadata{}, &core.FetchError{URL: url, Err: fmt.Errorf("downloaded file missing: %w", err)}
	}

	meta := core.VideoMetadata{Author: info.Uploader, Title: info.Title, ViewCount: info.ViewCount}
	return path, meta, nil
}

func (f YtDlpFetcher) fetchLocal(path, destDir string) (string, core.VideoMetadata, error) {
	dst := filepath.Join(destDir, "input_vid"+filepath.Ext(path))
	if err := utils.CopyFile(path, dst); err != nil {
		return "", core.VideoMetadata{}, &core.FetchError{URL: path, Err: err}
	}
	name := filepath.Base(path)
	meta := core.VideoMetadata{Title: name[:len(name)-len(filepath.Ext(name))]}
	return dst, meta, nil
}
