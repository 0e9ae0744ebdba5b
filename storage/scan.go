package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"videoChat/core"
)

// chunkWords is the transcript chunk size. Large enough to keep a thought
// together, small enough that five chunks stay inside the prompt budget.
const chunkWords = 120

type imageDoc struct {
	path string
	// repText is the chunk of transcript that stands in for the frame when
	// computing similarity. Frames and chunks are aligned proportionally
	// along the video; the transcript blob carries no per-segment timing to
	// do better.
	repText string
}

type corpus struct {
	textDocs  []string
	imageDocs []imageDoc
}

// scanWorkingDir collects the indexable documents of one ingestion run: the
// transcript (chunked) and the sampled frames.
func scanWorkingDir(dir string) (*corpus, error) {
	c := &corpus{}

	if data, err := os.ReadFile(core.TranscriptPath(dir)); err == nil {
		c.textDocs = ChunkTranscript(string(data), chunkWords)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan working dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "frame_") && strings.HasSuffix(name, ".png") {
			names = append(names, name)
		}
	}
	// frame_%05d names sort lexicographically in sampling order
	sort.Strings(names)

	for i, name := range names {
		c.imageDocs = append(c.imageDocs, imageDoc{
			path:    filepath.Join(dir, name),
			repText: representativeText(c.textDocs, i, len(names), name),
		})
	}
	return c, nil
}

// representativeText maps frame j of m onto the transcript chunk at the
// same relative position. With an empty transcript the file name is all we
// have.
func representativeText(chunks []string, j, m int, fileName string) string {
	if len(chunks) == 0 || m == 0 {
		return strings.TrimSuffix(fileName, ".png")
	}
	k := j * len(chunks) / m
	if k >= len(chunks) {
		k = len(chunks) - 1
	}
	return chunks[k]
}

// ChunkTranscript splits the transcript blob into word windows of at most
// n words. Whitespace-only input yields no chunks.
func ChunkTranscript(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(words)+n-1)/n)
	for start := 0; start < len(words); start += n {
		end := start + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
