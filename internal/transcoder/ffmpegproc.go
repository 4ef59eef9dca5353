package transcoder

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/streamforge/live/internal/domain"
)

// ffmpegProcess is the scoped-acquisition wrapper around one connection's
// FFmpeg subprocess (§9, §4.2): construction starts the process and wires
// its pipes, Close always kills the whole process group and drains every
// pipe, and it is never shared or reused once Close has run.
type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *os.File

	outputs map[domain.Rendition]*renditionPipe
}

// renditionPipe is one ladder entry's fMP4 output: the read end the
// pipeline consumes, the write end handed to the child as an extra fd.
type renditionPipe struct {
	entry  domain.LadderEntry
	reader *os.File
	writer *os.File
}

// startFFmpegProcess spawns one FFmpeg instance reading FLV off stdin and
// emitting one fragmented-MP4 stream per ladder entry on a dedicated pipe,
// grounded on the teacher pack's FFmpeg-subprocess muxer
// (adarshm11-RapidRTMP/internal/muxer/ffmpeg.go) generalized from a single
// one-shot mux call to a long-lived multi-output encode ladder.
func startFFmpegProcess(ffmpegPath string, ladder []domain.LadderEntry) (proc *ffmpegProcess, err error) {
	p := &ffmpegProcess{outputs: make(map[domain.Rendition]*renditionPipe, len(ladder))}
	defer func() {
		if err != nil {
			p.closePipes()
		}
	}()

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "flv", "-i", "pipe:0",
	}

	extraFiles := make([]*os.File, 0, len(ladder))
	for _, entry := range ladder {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, fmt.Errorf("transcoder: open rendition pipe for %s: %w", entry.Rendition, perr)
		}
		p.outputs[entry.Rendition] = &renditionPipe{entry: entry, reader: r, writer: w}
		extraFiles = append(extraFiles, w)

		fd := 3 + len(extraFiles) - 1
		args = append(args, renditionArgs(entry)...)
		args = append(args, "-movflags", "frag_keyframe+empty_moov+separate_moof+default_base_moof",
			"-frag_duration", strconv.FormatInt(partMinDuration.Microseconds(), 10),
			"-f", "mp4", "pipe:"+strconv.Itoa(fd))
	}

	cmd := exec.Command(ffmpegPath, args...)
	cmd.ExtraFiles = extraFiles
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, perr := cmd.StdinPipe()
	if perr != nil {
		return nil, fmt.Errorf("transcoder: ffmpeg stdin pipe: %w", perr)
	}
	p.stdin = stdin

	stderrR, stderrW, perr := os.Pipe()
	if perr != nil {
		return nil, fmt.Errorf("transcoder: ffmpeg stderr pipe: %w", perr)
	}
	cmd.Stderr = stderrW
	p.stderr = stderrR

	if perr := cmd.Start(); perr != nil {
		stderrW.Close()
		return nil, fmt.Errorf("transcoder: start ffmpeg: %w", perr)
	}
	stderrW.Close()
	// The child owns its end of each rendition pipe and of stderr now;
	// our copies would otherwise keep the read side from ever seeing EOF.
	for _, w := range extraFiles {
		w.Close()
	}
	p.cmd = cmd
	return p, nil
}

// renditionArgs renders one ladder entry's video/audio filter+codec flags.
// RenditionSource (Width==0) and audio-only entries pass through encode
// parameters FFmpeg infers from the input.
func renditionArgs(e domain.LadderEntry) []string {
	if e.Rendition.IsAudio() {
		args := []string{"-map", "0:a:0?", "-c:a", "aac"}
		if e.BitrateBps > 0 {
			args = append(args, "-b:a", strconv.Itoa(e.BitrateBps))
		}
		return args
	}
	args := []string{"-map", "0:v:0?"}
	if e.Width > 0 && e.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", e.Width, e.Height))
	}
	if e.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(e.FPS))
	}
	args = append(args, "-c:v", "libx264", "-an")
	if e.BitrateBps > 0 {
		args = append(args, "-b:v", strconv.Itoa(e.BitrateBps))
	}
	return args
}

// Stdin is where demuxed FLV tags are written.
func (p *ffmpegProcess) Stdin() io.Writer { return p.stdin }

// Output returns the read end of one rendition's fMP4 stream.
func (p *ffmpegProcess) Output(r domain.Rendition) (io.Reader, bool) {
	out, ok := p.outputs[r]
	if !ok {
		return nil, false
	}
	return out.reader, true
}

// Wait blocks until the subprocess exits.
func (p *ffmpegProcess) Wait() error { return p.cmd.Wait() }

// Close kills the process group unconditionally and closes every pipe.
// It never returns an error: the caller's failure path (§9's infallible
// destructor) is "the connection drops," not "Close failed."
func (p *ffmpegProcess) Close() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		_ = p.cmd.Wait()
	}
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	p.closePipes()
}

func (p *ffmpegProcess) closePipes() {
	if p.stderr != nil {
		_ = p.stderr.Close()
	}
	for _, out := range p.outputs {
		_ = out.reader.Close()
	}
}
