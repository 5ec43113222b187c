package attention

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"attnroute/internal/logging"
)

// maxParallelReads bounds concurrent hot file reads.
const maxParallelReads = 8

// fallbackOutlineLines is the number of non-blank lines used when no outline
// source is available for a warm file.
const fallbackOutlineLines = 20

var strippedSpans = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<task-notification>.*?</task-notification>`),
	regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`),
}

// sanitize removes host-protocol spans from file content before inclusion,
// including spans embedded inside file bodies.
func sanitize(content string) string {
	for _, re := range strippedSpans {
		content = re.ReplaceAllString(content, "")
	}
	return content
}

// assemble builds the output blob from the tiered selection: hot files as
// full content, warm files as outlines, cold files as an eviction manifest.
// Missing files are logged, skipped, and their scores zeroed.
func (r *Router) assemble(state *State, result *RoutingResult) {
	timer := logging.StartTimer(logging.CategoryAssembly, "assemble")
	defer timer.Stop()

	contents := r.readFiles(result.Hot)

	var b strings.Builder
	budget := r.cfg.MaxContextChars
	pathOnly := false

	emit := func(section string, path string) {
		if pathOnly || section == "" {
			if path != "" {
				b.WriteString(fmt.Sprintf("[listed] %s\n", path))
			}
			return
		}
		remaining := budget - b.Len()
		if remaining <= 0 {
			pathOnly = true
			b.WriteString(fmt.Sprintf("[listed] %s\n", path))
			return
		}
		if len(section) > remaining {
			// Truncate the current file to fit; everything after goes
			// path-only.
			b.WriteString(section[:remaining])
			result.Stats.TruncatedFiles++
			pathOnly = true
			return
		}
		b.WriteString(section)
	}

	for _, file := range result.Hot {
		content, ok := contents[file]
		if !ok {
			r.markMissing(state, result, file)
			continue
		}
		content = sanitize(content)
		if len(content) > r.cfg.PerFileChars {
			content = content[:r.cfg.PerFileChars] +
				fmt.Sprintf("\n[truncated at %d chars]", r.cfg.PerFileChars)
			result.Stats.TruncatedFiles++
		}
		emit(fmt.Sprintf("[HOT] %s\n%s\n\n", file, content), file)
	}

	for _, file := range result.Warm {
		outline, ok := r.outlineFor(file)
		if !ok {
			r.markMissing(state, result, file)
			continue
		}
		if outline == "" {
			// No extractable outline: the entry is named without content.
			emit(fmt.Sprintf("[WARM] %s\n\n", file), file)
			continue
		}
		emit(fmt.Sprintf("[WARM] %s (outline)\n%s\n\n", file, sanitize(outline)), file)
	}

	if len(result.Cold) > 0 {
		manifest := fmt.Sprintf("evicted: %s\n", strings.Join(result.Cold, ", "))
		// The manifest is paths only and always fits or is cut hard.
		remaining := budget - b.Len()
		if remaining > 0 {
			if len(manifest) > remaining {
				manifest = manifest[:remaining]
			}
			b.WriteString(manifest)
		}
	}

	out := b.String()
	if len(out) > budget {
		// Path-only listings after a truncate-to-fit can nudge past the cap;
		// the blob budget is absolute.
		out = out[:budget]
	}
	result.Output = out
	result.Stats.OutputChars = len(result.Output)
}

// readFiles loads hot-tier file contents with bounded parallelism. Absent
// files are simply missing from the returned map.
func (r *Router) readFiles(files []string) map[string]string {
	contents := make(map[string]string, len(files))
	if len(files) == 0 {
		return contents
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallelReads)

	for _, file := range files {
		g.Go(func() error {
			data, err := os.ReadFile(r.abs(file))
			if err != nil {
				return nil // recorded as missing by the caller
			}
			mu.Lock()
			contents[file] = string(data)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return contents
}

// outlineFor produces the warm-tier outline: the RepoMap when available,
// else the first non-blank lines of the file. The second return is false
// when the file is unreadable.
func (r *Router) outlineFor(file string) (string, bool) {
	if r.repoMap != nil {
		outline, err := r.repoMap.Outline(file)
		if err == nil {
			return outline, true
		}
		logging.Get(logging.CategoryAssembly).Debugw("outline failed, falling back", "file", file, "err", err)
	}

	data, err := os.ReadFile(r.abs(file))
	if err != nil {
		return "", false
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= fallbackOutlineLines {
			break
		}
	}
	return strings.Join(lines, "\n"), true
}

func (r *Router) markMissing(state *State, result *RoutingResult, file string) {
	logging.Get(logging.CategoryAssembly).Warnw("scored file missing on disk", "file", file)
	state.Scores[file] = 0
	result.Stats.MissingFiles++
}

func (r *Router) abs(file string) string {
	if filepath.IsAbs(file) || r.projectRoot == "" {
		return file
	}
	return filepath.Join(r.projectRoot, file)
}
