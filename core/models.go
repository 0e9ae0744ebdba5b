package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Frame is one sampled still image with its capture timestamp.
type Frame struct {
	FileName     string  `json:"file_name"`
	Path         string  `json:"path"`
	TimestampSec float64 `json:"timestamp_sec"`
}

// FrameName returns the canonical file name for the i-th sampled frame.
func FrameName(i int) string {
	return fmt.Sprintf("frame_%05d.png", i)
}

// VideoMetadata is the provider metadata captured once per ingestion.
type VideoMetadata struct {
	Author    string `json:"author,omitempty"`
	Title     string `json:"title,omitempty"`
	ViewCount int64  `json:"view_count,omitempty"`
}

// String renders the metadata block that goes into the prompt template.
func (m VideoMetadata) String() string {
	lines := []string{
		fmt.Sprintf("Author: %s", m.Author),
		fmt.Sprintf("Title: %s", m.Title),
		fmt.Sprintf("Views: %d", m.ViewCount),
	}
	return strings.Join(lines, "\n")
}

// IngestResult is what the pipeline hands back to the session.
type IngestResult struct {
	Metadata   VideoMetadata    `json:"metadata"`
	Frames     map[string]Frame `json:"frames"` // file name -> frame record
	Transcript string           `json:"transcript"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentPart is one piece of a multimodal message.
type ContentPart struct {
	Kind  string `json:"kind"` // "text" or "image"
	Value string `json:"value"`
}

// Turn is one entry of the conversation history. Content holds plain text;
// Parts is set instead when the message carries images.
type Turn struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// Working directory layout, kept byte-compatible with the original tool:
//
//	<root>/video_data/              downloaded video
//	<root>/mixed_data/output_audio.wav
//	<root>/frame_00000.png ...      sampled frames
//	<root>/output_text.txt          transcript

func VideoDataDir(root string) string { return filepath.Join(root, "video_data") }

func MixedDataDir(root string) string { return filepath.Join(root, "mixed_data") }

func AudioPath(root string) string {
	return filepath.Join(MixedDataDir(root), "output_audio.wav")
}

func TranscriptPath(root string) string { return filepath.Join(root, "output_text.txt") }
