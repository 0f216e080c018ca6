package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (p *Provider) probeDuration(ctx context.Context, path string) (float64, error) {
	out, _, err := p.run.Run(ctx, p.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(out))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func (p *Provider) probeDimensions(ctx context.Context, path string) (int, int, error) {
	out, _, err := p.run.Run(ctx, p.ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}

	parts := strings.Split(strings.TrimSpace(string(out)), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(string(out)))
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	if w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("invalid source dimensions %dx%d", w, h)
	}
	return w, h, nil
}
