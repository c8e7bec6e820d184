// Command gen-streams writes synthetic transport stream fixtures for manual
// testing of tsprobe, plus a manifest describing them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Manifest struct {
	Generated string         `json:"generated"`
	Streams   []StreamConfig `json:"streams"`
}

func main() {
	outDir := flag.String("o", "", "output directory (default <project root>/test/streams)")
	force := flag.Bool("f", false, "overwrite existing streams")
	flag.Parse()

	dir := *outDir
	if dir == "" {
		dir = filepath.Join(findProjectRoot(), "test", "streams")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fatal("create streams dir: %v", err)
	}

	fmt.Println("=== tsprobe fixture generator ===")
	for _, sc := range streams {
		outFile := filepath.Join(dir, streamFile(sc))
		if fileExists(outFile) && !*force {
			fmt.Printf("stream %d (%s): already exists, skipping\n", sc.Number, sc.Key)
			continue
		}
		data := generate(sc)
		if err := os.WriteFile(outFile, data, 0644); err != nil {
			fatal("write stream %d: %v", sc.Number, err)
		}
		fmt.Printf("stream %d (%s): %s, %d bytes\n", sc.Number, sc.Key, sc.Description, len(data))
	}

	if err := writeManifest(filepath.Join(dir, "manifest.json")); err != nil {
		fatal("write manifest: %v", err)
	}
	fmt.Printf("=== Done! %d streams in %s ===\n", len(streams), dir)
}

func streamFile(sc StreamConfig) string {
	return fmt.Sprintf("stream_%d_%s.ts", sc.Number, sc.Key)
}

func writeManifest(path string) error {
	m := Manifest{
		Generated: time.Now().UTC().Format(time.RFC3339),
		Streams:   streams,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			fatal("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
