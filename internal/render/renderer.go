package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"loom/internal/config"
	"loom/internal/logging"
)

// Renderer assembles segment clips, transitions, captions, and narration
// audio into the final MP4 via the ffmpeg binary.
type Renderer struct {
	ffmpeg      string
	width       int
	height      int
	fps         int
	parallelism int
	logger      *slog.Logger
}

// New builds a renderer from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Renderer {
	parallelism := cfg.Render.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &Renderer{
		ffmpeg:      cfg.FFmpegBinary(),
		width:       cfg.Render.Width,
		height:      cfg.Render.Height,
		fps:         cfg.Render.FPS,
		parallelism: parallelism,
		logger:      logging.NewComponentLogger(logger, "renderer"),
	}
}

// RenderSegments renders every plan entry into workDir as segment_NNN.mp4.
// Segments share no state, so they render concurrently up to the configured
// parallelism. The returned paths are in plan order.
func (r *Renderer) RenderSegments(ctx context.Context, segments []Segment, workDir string) ([]string, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("render segments: empty plan")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("render segments: %w", err)
	}

	paths := make([]string, len(segments))
	errs := make([]error, len(segments))
	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup

	sampler := logging.NewProgressSampler(10)
	var done int
	var progressMu sync.Mutex

	for i, segment := range segments {
		paths[i] = filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i+1))
		wg.Add(1)
		go func(idx int, seg Segment, out string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[idx] = r.renderSegment(ctx, seg, out)

			progressMu.Lock()
			done++
			percent := float64(done) / float64(len(segments)) * 100
			if sampler.ShouldLog(percent, "segments", "") {
				r.logger.Info("segment render progress",
					logging.Int("segments_rendered", done),
					logging.Int(logging.FieldSceneCount, len(segments)),
					logging.Float64(logging.FieldProgressPercent, percent),
				)
			}
			progressMu.Unlock()
		}(i, segment, paths[i])
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
	}
	return paths, nil
}

func (r *Renderer) renderSegment(ctx context.Context, segment Segment, outPath string) error {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%d,format=yuv420p",
		r.width, r.height, r.width, r.height, r.fps,
	)
	args := []string{
		"-y", "-loop", "1",
		"-i", segment.ImagePath,
		"-t", formatSeconds(segment.Duration),
		"-vf", filter,
		"-c:v", "libx264", "-preset", "medium", "-crf", "18",
		"-an",
		outPath,
	}
	return r.run(ctx, args)
}

// Composite chains the rendered clips into one video. All-cut plans use the
// concat demuxer; anything else builds the sequential xfade chain. A single
// clip is copied through untouched.
func (r *Renderer) Composite(ctx context.Context, clips []string, segments []Segment, workDir, outPath string) error {
	if len(clips) == 0 || len(clips) != len(segments) {
		return fmt.Errorf("composite: %d clips for %d segments", len(clips), len(segments))
	}

	if len(clips) == 1 {
		return copyFile(clips[0], outPath)
	}

	if AllCuts(segments) {
		return r.concat(ctx, clips, workDir, outPath)
	}

	steps := chainSteps(segments)
	current := clips[0]
	for i, step := range steps {
		next := clips[i+1]
		stepOut := filepath.Join(workDir, fmt.Sprintf("composite_%03d.mp4", i+1))
		if i == len(steps)-1 {
			stepOut = outPath
		}

		var err error
		if step.cut {
			err = r.concat(ctx, []string{current, next}, workDir, stepOut)
		} else {
			err = r.xfade(ctx, current, next, step, stepOut)
		}
		if err != nil {
			return fmt.Errorf("composite step %d: %w", i+1, err)
		}
		current = stepOut
	}
	return nil
}

func (r *Renderer) concat(ctx context.Context, clips []string, workDir, outPath string) error {
	listPath := filepath.Join(workDir, "concat.txt")
	var sb strings.Builder
	for _, clip := range clips {
		sb.WriteString("file '")
		sb.WriteString(strings.ReplaceAll(clip, "'", `'\''`))
		sb.WriteString("'\n")
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return r.run(ctx, []string{
		"-y", "-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	})
}

func (r *Renderer) xfade(ctx context.Context, first, second string, step xfadeStep, outPath string) error {
	filter := fmt.Sprintf("[0:v][1:v]xfade=transition=%s:duration=%s:offset=%s[v]",
		step.fade, formatSeconds(step.d), formatSeconds(step.offset))
	return r.run(ctx, []string{
		"-y",
		"-i", first,
		"-i", second,
		"-filter_complex", filter,
		"-map", "[v]",
		"-c:v", "libx264", "-preset", "medium", "-crf", "18", "-pix_fmt", "yuv420p",
		outPath,
	})
}

// BurnIn overlays the subtitle document onto the composited video.
func (r *Renderer) BurnIn(ctx context.Context, videoPath, subtitlePath, outPath string) error {
	filter := "ass=" + escapeFilterPath(subtitlePath)
	return r.run(ctx, []string{
		"-y",
		"-i", videoPath,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "medium", "-crf", "18",
		"-an",
		outPath,
	})
}

// Mux attaches the narration audio, trimming to the shorter stream to absorb
// rounding drift between computed durations and actual audio length.
func (r *Renderer) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	return r.run(ctx, []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		outPath,
	})
}

func (r *Renderer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", args[len(args)-1], err, tail(string(output), 800))
	}
	r.logger.Debug("ffmpeg completed", logging.String("command", r.ffmpeg+" "+strings.Join(args, " ")))
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter graph.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	return "'" + path + "'"
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max:]
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("copy clip: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("copy clip: %w", err)
	}
	return nil
}
