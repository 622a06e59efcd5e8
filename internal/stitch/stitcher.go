// Package stitch concatenates rendered video segments into one file without
// re-encoding.
//
// Segments are staged as uniquely named files in a work directory, listed in
// a concat manifest and joined by an external process. Everything staged by
// a call is removed before the call returns, whatever the outcome.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/config"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// StageName identifies the stage in logs and errors.
const StageName = "stitch"

// Concatenator joins the files listed in a concat manifest into outputPath.
type Concatenator interface {
	Concat(ctx context.Context, manifestPath, outputPath string) error
}

// Prober reports the stream layout of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (StreamInfo, error)
}

// Stitcher is the SegmentStitcher.
type Stitcher struct {
	concat  Concatenator
	prober  Prober
	workDir string
	logger  *slog.Logger
	now     func() time.Time
	remove  func(string) error
}

var _ core.Stage[[]models.VideoAsset, models.VideoAsset] = (*Stitcher)(nil)

// Option configures a Stitcher.
type Option func(*Stitcher)

// WithProber enables the codec compatibility check.
func WithProber(p Prober) Option {
	return func(s *Stitcher) { s.prober = p }
}

// WithWorkDir sets where staged files are written. Empty means os.TempDir().
func WithWorkDir(dir string) Option {
	return func(s *Stitcher) { s.workDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stitcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Stitcher around concat.
func New(concat Concatenator, opts ...Option) *Stitcher {
	s := &Stitcher{concat: concat, logger: slog.Default(), now: time.Now, remove: os.Remove}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates a Stitcher that shells out to ffmpeg, and to ffprobe
// when codec verification is enabled.
func NewFromConfig(cfg config.StitchConfig, logger *slog.Logger) *Stitcher {
	opts := []Option{WithWorkDir(cfg.WorkDir), WithLogger(logger)}
	if cfg.VerifyCodecs {
		opts = append(opts, WithProber(FFprobe{Path: cfg.FFprobePath}))
	}
	return New(FFmpeg{Path: cfg.FFmpegPath}, opts...)
}

// Name implements core.Stage.
func (s *Stitcher) Name() string { return StageName }

// Execute stitches rendered assets into one asset for the same candidate.
func (s *Stitcher) Execute(ctx context.Context, assets []models.VideoAsset) (models.VideoAsset, error) {
	segments := make([][]byte, len(assets))
	for i, a := range assets {
		if a.Status != models.AssetGenerated || len(a.Data) == 0 {
			return models.VideoAsset{}, core.Errorf(core.ErrInvalidInput, StageName, "segment %d is not a generated video", i+1)
		}
		segments[i] = a.Data
	}

	merged, err := s.Stitch(ctx, segments)
	if err != nil {
		return models.VideoAsset{}, err
	}
	return models.VideoAsset{
		CandidateID: assets[0].CandidateID,
		Data:        merged,
		MimeType:    assets[0].MimeType,
		Status:      models.AssetGenerated,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Stitch concatenates segments in the given order and returns the merged
// payload.
func (s *Stitcher) Stitch(ctx context.Context, segments [][]byte) (merged []byte, err error) {
	if len(segments) < 2 {
		return nil, core.Errorf(core.ErrInvalidInput, StageName, "need at least 2 segments, got %d", len(segments))
	}

	for i, seg := range segments {
		if len(seg) == 0 {
			return nil, core.Errorf(core.ErrInvalidInput, StageName, "segment %d is empty", i+1)
		}
	}

	callID := uuid.NewString()
	logger := s.logger.With(slog.String("stitch_id", callID))
	done := observability.TimedOperationWithError(ctx, logger, "stitch", &err)
	defer done()

	dir, err := s.stagingDir()
	if err != nil {
		return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "resolving work dir")
	}
	st := &staging{dir: dir, prefix: "stitch-" + callID, logger: logger, remove: s.remove}
	defer st.cleanup()

	paths := make([]string, len(segments))
	for i, seg := range segments {
		if paths[i], err = st.write(fmt.Sprintf("seg%03d-*.mp4", i+1), seg); err != nil {
			return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "staging segment")
		}
	}

	if s.prober != nil {
		if err := s.checkCompatible(ctx, paths); err != nil {
			return nil, err
		}
	}

	manifest, err := st.write("manifest-*.txt", []byte(buildManifest(paths)))
	if err != nil {
		return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "writing manifest")
	}
	output, err := st.write("out-*.mp4", nil)
	if err != nil {
		return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "reserving output file")
	}

	if err := s.concat.Concat(ctx, manifest, output); err != nil {
		return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "concatenation failed")
	}

	merged, err = os.ReadFile(output)
	if err != nil {
		return nil, core.Wrap(core.ErrExternalProcess, StageName, err, "reading merged output")
	}
	if len(merged) == 0 {
		return nil, core.Errorf(core.ErrExternalProcess, StageName, "concatenation produced an empty file")
	}

	logger.InfoContext(ctx, "segments stitched",
		slog.Int("segments", len(segments)),
		slog.Int("bytes", len(merged)),
	)
	return merged, nil
}

// stagingDir returns an absolute work directory. The concat demuxer resolves
// relative manifest entries against the manifest's own directory, so staged
// paths must not be relative.
func (s *Stitcher) stagingDir() (string, error) {
	dir := s.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Abs(dir)
}

func (s *Stitcher) checkCompatible(ctx context.Context, paths []string) error {
	var first StreamInfo
	for i, p := range paths {
		info, err := s.prober.Probe(ctx, p)
		if err != nil {
			return core.Wrap(core.ErrExternalProcess, StageName, err, fmt.Sprintf("probing segment %d", i+1))
		}
		if i == 0 {
			first = info
			continue
		}
		if !info.Compatible(first) {
			return core.Errorf(core.ErrExternalProcess, StageName,
				"segment %d streams [%s] differ from segment 1 [%s]; stream copy would corrupt the output", i+1, info, first)
		}
	}
	return nil
}

// buildManifest renders an ffmpeg concat demuxer list.
func buildManifest(paths []string) string {
	var sb strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	return sb.String()
}

// staging tracks files created for one call.
type staging struct {
	dir    string
	prefix string
	files  []string
	logger *slog.Logger
	remove func(string) error
}

func (st *staging) write(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(st.dir, st.prefix+"-"+pattern)
	if err != nil {
		return "", err
	}
	st.files = append(st.files, f.Name())

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// cleanup removes every staged file. Failures are logged only.
func (st *staging) cleanup() {
	for _, f := range st.files {
		if err := st.remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			st.logger.Warn("failed to remove staged file",
				slog.String("path", f),
				slog.String("error", err.Error()),
			)
		}
	}
}
