package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"layeh.com/gopus"
)

const (
	CHANNELS   = 2
	FRAME_RATE = 48000
	FRAME_SIZE = 960
	MAX_BYTES  = (FRAME_SIZE * 2) * 2
)

var (
	ErrAlreadyPlaying = errors.New("song already playing")
	ErrVoiceNotReady  = errors.New("voice connection not ready for opus packets")
)

// Opener starts decoding url and returns a reader of s16le stereo PCM at
// FRAME_RATE. Closing pcm after the last read reports how the decoder
// exited. cleanup aborts the decoder and must unblock a pending read.
type Opener func(url string) (pcm io.ReadCloser, cleanup func(), err error)

// ffmpegOutput is ffmpeg's stdout. Close waits for the process, which also
// closes the pipe.
type ffmpegOutput struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (o *ffmpegOutput) Close() error {
	return o.cmd.Wait()
}

// FFmpegOpener decodes url with the ffmpeg binary at path.
func FFmpegOpener(path string) Opener {
	return func(url string) (io.ReadCloser, func(), error) {
		ffmpeg := exec.Command(path,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-i", url,
			"-vn",
			"-f", "s16le",
			"-ar", strconv.Itoa(FRAME_RATE),
			"-ac", strconv.Itoa(CHANNELS),
			"-loglevel", "warning",
			"pipe:1",
		)
		ffmpeg.Stderr = os.Stderr

		out, err := ffmpeg.StdoutPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("ffmpeg pipe: %w", err)
		}
		if err := ffmpeg.Start(); err != nil {
			return nil, nil, fmt.Errorf("ffmpeg start: %w", err)
		}

		cleanup := func() {
			_ = ffmpeg.Process.Kill()
		}
		return &ffmpegOutput{ReadCloser: out, cmd: ffmpeg}, cleanup, nil
	}
}

type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

var newEncoder = func() (frameEncoder, error) {
	return gopus.NewEncoder(FRAME_RATE, CHANNELS, gopus.Audio)
}

// Connection streams one track at a time into a voice connection.
type Connection struct {
	open     Opener
	sink     func() (chan<- []byte, bool)
	speaking func(bool)
	log      zerolog.Logger

	lock    sync.Mutex
	playing bool
	paused  bool
	resume  chan struct{} // closed on Resume
	stop    chan struct{} // closed on Stop
	exited  chan struct{} // closed when the frame loop returns
	kill    func()
}

func NewConnection(voiceConnection *discordgo.VoiceConnection, open Opener, logger zerolog.Logger) *Connection {
	sink := func() (chan<- []byte, bool) {
		voiceConnection.RLock()
		defer voiceConnection.RUnlock()
		if !voiceConnection.Ready || voiceConnection.OpusSend == nil {
			return nil, false
		}
		return voiceConnection.OpusSend, true
	}
	speaking := func(b bool) {
		if err := voiceConnection.Speaking(b); err != nil {
			logger.Debug().Err(err).Bool("speaking", b).Msg("speaking update failed")
		}
	}
	return newConnection(open, sink, speaking, logger)
}

func newConnection(open Opener, sink func() (chan<- []byte, bool), speaking func(bool), logger zerolog.Logger) *Connection {
	return &Connection{
		open:     open,
		sink:     sink,
		speaking: speaking,
		log:      logger,
	}
}

// Play starts streaming url. An error is returned only if the stream could
// not be started; otherwise done is called exactly once when the stream
// ends, fails or is stopped.
func (connection *Connection) Play(url string, done func(error)) error {
	connection.lock.Lock()
	if connection.playing {
		connection.lock.Unlock()
		return ErrAlreadyPlaying
	}

	pcm, cleanup, err := connection.open(url)
	if err != nil {
		connection.lock.Unlock()
		return err
	}
	var once sync.Once
	kill := func() {
		if cleanup != nil {
			once.Do(cleanup)
		}
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	connection.playing = true
	connection.paused = false
	connection.resume = nil
	connection.stop = stop
	connection.exited = exited
	connection.kill = kill
	connection.lock.Unlock()

	go func() {
		err := connection.stream(pcm, stop)
		close(exited)

		// A decoder that is still running has to die before Close can
		// wait for it.
		if err != nil || stopped(stop) {
			kill()
		}
		if cerr := pcm.Close(); cerr != nil && err == nil && !stopped(stop) {
			err = fmt.Errorf("decoder: %w", cerr)
		}
		kill()

		connection.lock.Lock()
		if connection.stop == stop {
			connection.playing = false
			connection.paused = false
			connection.resume = nil
			connection.stop = nil
			connection.exited = nil
			connection.kill = nil
		}
		connection.lock.Unlock()

		if err != nil {
			connection.log.Warn().Err(err).Msg("stream ended with error")
		}
		if done != nil {
			done(err)
		}
	}()

	return nil
}

func (connection *Connection) stream(pcm io.Reader, stop <-chan struct{}) error {
	encoder, err := newEncoder()
	if err != nil {
		return fmt.Errorf("new encoder: %w", err)
	}

	connection.speaking(true)
	defer connection.speaking(false)

	buffer := bufio.NewReaderSize(pcm, 16384)
	frame := make([]int16, FRAME_SIZE*CHANNELS)

	for {
		if !connection.waitUnpaused(stop) {
			return nil
		}

		err := binary.Read(buffer, binary.LittleEndian, frame)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			if stopped(stop) {
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}

		opus, err := encoder.Encode(frame, FRAME_SIZE, MAX_BYTES)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}

		send, ok := connection.sink()
		if !ok {
			return ErrVoiceNotReady
		}
		if stopped(stop) {
			return nil
		}
		select {
		case send <- opus:
		case <-stop:
			return nil
		}
	}
}

// waitUnpaused blocks while paused. It reports false once stop is closed.
func (connection *Connection) waitUnpaused(stop <-chan struct{}) bool {
	if stopped(stop) {
		return false
	}

	connection.lock.Lock()
	paused, resume := connection.paused, connection.resume
	connection.lock.Unlock()
	if !paused {
		return true
	}

	select {
	case <-resume:
		return true
	case <-stop:
		return false
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Stop halts the current stream and returns once it sends no more frames.
// The done callback of the stopped stream still fires, possibly later. It
// reports whether anything was playing.
func (connection *Connection) Stop() bool {
	connection.lock.Lock()
	if !connection.playing {
		connection.lock.Unlock()
		return false
	}
	stop, exited, kill := connection.stop, connection.exited, connection.kill
	connection.playing = false
	connection.paused = false
	connection.resume = nil
	connection.stop = nil
	connection.exited = nil
	connection.kill = nil
	connection.lock.Unlock()

	close(stop)
	if kill != nil {
		kill()
	}
	<-exited
	return true
}

func (connection *Connection) Pause() bool {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	if !connection.playing || connection.paused {
		return false
	}
	connection.paused = true
	connection.resume = make(chan struct{})
	return true
}

func (connection *Connection) Resume() bool {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	if !connection.playing || !connection.paused {
		return false
	}
	connection.paused = false
	close(connection.resume)
	connection.resume = nil
	return true
}

// IsPlaying reports whether a stream is running and not paused.
func (connection *Connection) IsPlaying() bool {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	return connection.playing && !connection.paused
}

func (connection *Connection) IsPaused() bool {
	connection.lock.Lock()
	defer connection.lock.Unlock()
	return connection.playing && connection.paused
}
