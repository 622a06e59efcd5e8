package stitch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/models"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/observability"
	"github.com/ricky22407-lang/YoutubeShort-sub000/internal/pipeline/core"
)

// catConcat reads the manifest and appends the listed files into the
// output, the way stream copy would for compatible inputs.
type catConcat struct {
	manifest string
	err      error
}

func (c *catConcat) Concat(_ context.Context, manifestPath, outputPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	c.manifest = string(raw)
	if c.err != nil {
		return c.err
	}
	return catFiles(manifestPath, raw, outputPath)
}

// statelessCat is safe for concurrent use.
type statelessCat struct{}

func (statelessCat) Concat(_ context.Context, manifestPath, outputPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	return catFiles(manifestPath, raw, outputPath)
}

// catFiles resolves relative entries against the manifest's directory, as
// the ffmpeg concat demuxer does.
func catFiles(manifestPath string, manifest []byte, outputPath string) error {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(manifest))
	for sc.Scan() {
		line := strings.TrimSuffix(strings.TrimPrefix(sc.Text(), "file '"), "'")
		path := strings.ReplaceAll(line, `'\''`, "'")
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(manifestPath), path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out.Write(data)
	}
	return os.WriteFile(outputPath, out.Bytes(), 0o600)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func newTestStitcher(dir string, c Concatenator, opts ...Option) *Stitcher {
	opts = append([]Option{WithWorkDir(dir), WithLogger(observability.Discard())}, opts...)
	return New(c, opts...)
}

func TestStitch_RequiresTwoSegments(t *testing.T) {
	dir := t.TempDir()
	concat := &catConcat{}

	for _, segs := range [][][]byte{nil, {[]byte("a")}} {
		_, err := newTestStitcher(dir, concat).Stitch(context.Background(), segs)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	}
	assert.Empty(t, concat.manifest)
	assert.Empty(t, listDir(t, dir))
}

func TestStitch_PreservesOrderAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	before := listDir(t, dir)

	segments := [][]byte{[]byte("first-"), []byte("second-"), []byte("third-"), []byte("second-")}
	merged, err := newTestStitcher(dir, &catConcat{}).Stitch(context.Background(), segments)
	require.NoError(t, err)

	assert.Equal(t, "first-second-third-second-", string(merged))
	assert.Equal(t, before, listDir(t, dir))
}

func TestStitch_ConcatFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	concat := &catConcat{err: errors.New("ffmpeg: exit status 1: Invalid data found when processing input")}

	_, err := newTestStitcher(dir, concat).Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExternalProcess)
	assert.Contains(t, err.Error(), "Invalid data found when processing input")
	assert.NotEmpty(t, concat.manifest, "concat should have been invoked")
	assert.Empty(t, listDir(t, dir))
}

func TestStitch_RelativeWorkDir(t *testing.T) {
	root := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Mkdir("work", 0o755))

	concat := &catConcat{}
	merged, err := newTestStitcher("work", concat).Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, "ab", string(merged))

	for _, line := range strings.Split(strings.TrimSpace(concat.manifest), "\n") {
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		assert.True(t, filepath.IsAbs(path), "manifest entry %q is relative", path)
	}
	assert.Empty(t, listDir(t, filepath.Join(root, "work")))
}

func TestStitch_CleanupFailureIsLoggedOnly(t *testing.T) {
	failRemove := func(string) error { return errors.New("device busy") }

	t.Run("success keeps payload", func(t *testing.T) {
		var logs bytes.Buffer
		s := New(&catConcat{}, WithWorkDir(t.TempDir()), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		s.remove = failRemove

		merged, err := s.Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})
		require.NoError(t, err)
		assert.Equal(t, "ab", string(merged))
		assert.Contains(t, logs.String(), "failed to remove staged file")
		assert.Contains(t, logs.String(), "device busy")
	})

	t.Run("concat error is kept", func(t *testing.T) {
		var logs bytes.Buffer
		concat := &catConcat{err: errors.New("ffmpeg: exit status 1: Invalid data found when processing input")}
		s := New(concat, WithWorkDir(t.TempDir()), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		s.remove = failRemove

		_, err := s.Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrExternalProcess)
		assert.Contains(t, err.Error(), "Invalid data found when processing input")
		assert.NotContains(t, err.Error(), "device busy")
		assert.Contains(t, logs.String(), "failed to remove staged file")
	})
}

type emptyConcat struct{}

func (emptyConcat) Concat(context.Context, string, string) error { return nil }

func TestStitch_EmptyOutput(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestStitcher(dir, emptyConcat{}).Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})

	assert.ErrorIs(t, err, core.ErrExternalProcess)
	assert.Empty(t, listDir(t, dir))
}

func TestStitch_ConcurrentCallsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	s := newTestStitcher(dir, statelessCat{})

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			want := strings.Repeat("x", i+1) + "|" + strings.Repeat("y", i+1)
			got, err := s.Stitch(context.Background(), [][]byte{[]byte(strings.Repeat("x", i+1) + "|"), []byte(strings.Repeat("y", i+1))})
			if err == nil && string(got) != want {
				err = errors.New("got " + string(got) + ", want " + want)
			}
			errs <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Empty(t, listDir(t, dir))
}

type fakeProber struct {
	infos map[int]StreamInfo
	calls int
}

func (f *fakeProber) Probe(context.Context, string) (StreamInfo, error) {
	info := f.infos[f.calls]
	f.calls++
	return info, nil
}

func TestStitch_IncompatibleCodecs(t *testing.T) {
	dir := t.TempDir()
	h264 := StreamInfo{{CodecType: "video", CodecName: "h264", Width: 720, Height: 1280, PixFmt: "yuv420p"}}
	hevc := StreamInfo{{CodecType: "video", CodecName: "hevc", Width: 720, Height: 1280, PixFmt: "yuv420p"}}
	concat := &catConcat{}

	_, err := newTestStitcher(dir, concat, WithProber(&fakeProber{infos: map[int]StreamInfo{0: h264, 1: hevc}})).
		Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExternalProcess)
	assert.Contains(t, err.Error(), "segment 2")
	assert.Empty(t, concat.manifest, "concat must not run on mismatched segments")
	assert.Empty(t, listDir(t, dir))
}

func TestStitch_CompatibleCodecs(t *testing.T) {
	dir := t.TempDir()
	h264 := StreamInfo{{CodecType: "video", CodecName: "h264", Width: 720, Height: 1280}}

	merged, err := newTestStitcher(dir, &catConcat{}, WithProber(&fakeProber{infos: map[int]StreamInfo{0: h264, 1: h264}})).
		Stitch(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, "ab", string(merged))
}

func TestExecute_Assets(t *testing.T) {
	dir := t.TempDir()
	s := newTestStitcher(dir, &catConcat{})

	asset, err := s.Execute(context.Background(), []models.VideoAsset{
		{CandidateID: "c1", Data: []byte("1"), MimeType: "video/mp4", Status: models.AssetGenerated},
		{CandidateID: "c1", Data: []byte("2"), MimeType: "video/mp4", Status: models.AssetGenerated},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", asset.CandidateID)
	assert.Equal(t, models.AssetGenerated, asset.Status)
	assert.Equal(t, "12", string(asset.Data))

	_, err = s.Execute(context.Background(), []models.VideoAsset{
		{Data: []byte("1"), Status: models.AssetGenerated},
		{Status: models.AssetFailed},
	})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBuildManifest(t *testing.T) {
	got := buildManifest([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	assert.Equal(t, "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n", got)
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	err := FFmpeg{Path: "/nonexistent/ffmpeg"}.Concat(context.Background(), "m.txt", "out.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/ffmpeg")
}

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams": [
		{"codec_type": "video", "codec_name": "h264", "width": 720, "height": 1280, "pix_fmt": "yuv420p"},
		{"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
	]}`))
	require.NoError(t, err)
	require.Len(t, info, 2)
	assert.True(t, info.Compatible(info))
	assert.Contains(t, info.String(), "video h264 720x1280")

	_, err = parseProbe([]byte(`{"streams": []}`))
	assert.Error(t, err)
}
