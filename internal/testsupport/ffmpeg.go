package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// FakeFFmpeg configures the shell script written by WriteFakeFFmpeg.
type FakeFFmpeg struct {
	// Segments is the number of 3 second segments written per run. Defaults to 3.
	Segments int
	// FailRuns makes the first N invocations exit with ExitCode.
	FailRuns int
	// FailAlways makes every invocation fail.
	FailAlways bool
	// ExitCode used on failure. Defaults to 1.
	ExitCode int
	// Diagnostic is written to stderr on failure.
	Diagnostic string
	// SleepSeconds delays output so tests can cancel mid-encode.
	SleepSeconds float64
}

// FakeFFmpegBinary is a fake encoder on disk.
type FakeFFmpegBinary struct {
	Path    string
	argsLog string
	counter string
}

// Calls returns how many times the script ran.
func (b FakeFFmpegBinary) Calls(t testing.TB) int {
	t.Helper()
	data, err := os.ReadFile(b.counter)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("read ffmpeg counter: %v", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse ffmpeg counter: %v", err)
	}
	return n
}

// Args returns the argument line of every invocation, oldest first.
func (b FakeFFmpegBinary) Args(t testing.TB) []string {
	t.Helper()
	data, err := os.ReadFile(b.argsLog)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read ffmpeg args: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

const fakeFFmpegScript = `#!/bin/sh
printf '%s\n' "$*" >> '{{ARGS}}'
n=0
if [ -f '{{COUNTER}}' ]; then n=$(cat '{{COUNTER}}'); fi
n=$((n + 1))
echo "$n" > '{{COUNTER}}'
sleep {{SLEEP}}
if [ {{FAIL_ALWAYS}} -eq 1 ] || [ "$n" -le {{FAIL_RUNS}} ]; then
  echo "frame=    0 fps=0.0 q=0.0 size=       0kB" >&2
  echo '{{DIAGNOSTIC}}' >&2
  exit {{EXIT}}
fi
seg=""
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-hls_segment_filename" ]; then seg="$a"; fi
  prev="$a"
  out="$a"
done
dir=$(dirname "$out")
pattern=$(basename "$seg")
tmp="$dir/.playlist.tmp"
printf '#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:3\n#EXT-X-MEDIA-SEQUENCE:0\n' > "$tmp"
i=0
while [ "$i" -lt {{SEGMENTS}} ]; do
  name=$(printf "$pattern" "$i")
  printf 'segment-%d-payload' "$i" > "$dir/$name"
  printf '#EXTINF:3.000000,\n%s\n' "$name" >> "$tmp"
  echo "out_time_ms=$(( (i + 1) * 3000000 ))"
  echo "progress=continue"
  i=$((i + 1))
done
echo '#EXT-X-ENDLIST' >> "$tmp"
mv "$tmp" "$out"
echo "progress=end"
exit 0
`

// WriteFakeFFmpeg writes an ffmpeg stand-in that emits a deterministic HLS
// package or fails with a diagnostic.
func WriteFakeFFmpeg(t testing.TB, dir string, spec FakeFFmpeg) FakeFFmpegBinary {
	t.Helper()
	if spec.Segments <= 0 {
		spec.Segments = 3
	}
	if spec.ExitCode == 0 {
		spec.ExitCode = 1
	}
	if spec.Diagnostic == "" {
		spec.Diagnostic = "Conversion failed!"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir fake ffmpeg dir: %v", err)
	}
	bin := FakeFFmpegBinary{
		Path:    filepath.Join(dir, "ffmpeg"),
		argsLog: filepath.Join(dir, "ffmpeg.args"),
		counter: filepath.Join(dir, "ffmpeg.count"),
	}
	failAlways := 0
	if spec.FailAlways {
		failAlways = 1
	}
	script := strings.NewReplacer(
		"{{ARGS}}", bin.argsLog,
		"{{COUNTER}}", bin.counter,
		"{{SLEEP}}", strconv.FormatFloat(spec.SleepSeconds, 'f', -1, 64),
		"{{FAIL_ALWAYS}}", strconv.Itoa(failAlways),
		"{{FAIL_RUNS}}", strconv.Itoa(spec.FailRuns),
		"{{DIAGNOSTIC}}", strings.ReplaceAll(spec.Diagnostic, "'", ""),
		"{{EXIT}}", strconv.Itoa(spec.ExitCode),
		"{{SEGMENTS}}", strconv.Itoa(spec.Segments),
	).Replace(fakeFFmpegScript)
	if err := os.WriteFile(bin.Path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return bin
}

// WriteFakeFFprobe writes an ffprobe stand-in reporting one video stream of
// the given size and an AAC audio stream. A height of 0 reports no video.
func WriteFakeFFprobe(t testing.TB, dir string, width, height int, durationSeconds float64) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir fake ffprobe dir: %v", err)
	}
	streams := `{"index":0,"codec_name":"aac","codec_type":"audio","channels":2}`
	if height > 0 {
		streams = fmt.Sprintf(`{"index":0,"codec_name":"h264","codec_type":"video","width":%d,"height":%d,"pix_fmt":"yuv420p"},{"index":1,"codec_name":"aac","codec_type":"audio","channels":2}`, width, height)
	}
	payload := fmt.Sprintf(`{"streams":[%s],"format":{"nb_streams":2,"duration":"%.3f","size":"1024","bit_rate":"800000","format_name":"mov,mp4,m4a,3gp,3g2,mj2"}}`, streams, durationSeconds)
	script := "#!/bin/sh\ncat <<'JSON'\n" + payload + "\nJSON\n"
	path := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	return path
}
