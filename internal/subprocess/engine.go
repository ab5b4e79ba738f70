package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/engine"
	"github.com/wagiedev/unity-bridge-go/internal/errors"
)

const (
	// defaultMaxLineSize is the maximum size of one stdout line.
	defaultMaxLineSize = 1024 * 1024 // 1MB
	// maxStderrBufferSize is the maximum size for the stderr buffer.
	// Stderr reading continues indefinitely (callback receives all lines),
	// but the buffer stops growing after this limit.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB
)

// EngineTransport implements Transport by spawning the engine as a subprocess.
type EngineTransport struct {
	log            *slog.Logger
	options        *config.Options
	enginePath     string
	args           []string
	env            []string
	cwd            string
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         io.ReadCloser
	stderr         io.ReadCloser
	stderrCallback func(string)
	maxLineSize    int
	mu             sync.Mutex // Protects stdin writes
	closing        bool       // Whether Close() has been called (intentional shutdown)
	stdinClosed    bool       // Whether stdin was closed (e.g., due to context cancellation)
}

// Compile-time verification that EngineTransport implements the Transport interface.
var _ config.Transport = (*EngineTransport)(nil)

// NewEngineTransport creates a new engine transport with the given options.
//
// Engine discovery is deferred to Start(), which searches for the engine
// binary in the following order:
//  1. The explicit path in options.EnginePath (if provided)
//  2. The system PATH
//  3. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// Start() returns EngineNotFoundError if the binary cannot be located.
func NewEngineTransport(log *slog.Logger, options *config.Options) *EngineTransport {
	maxLineSize := defaultMaxLineSize
	if options.MaxBufferSize != nil && *options.MaxBufferSize > 0 {
		maxLineSize = *options.MaxBufferSize
	}

	return &EngineTransport{
		log:            log.With("component", "engine_transport"),
		options:        options,
		stderrCallback: options.Stderr,
		maxLineSize:    maxLineSize,
	}
}

// Start starts the engine subprocess.
//
// Returns EngineNotFoundError if the engine binary cannot be located,
// or ConnectionError if the process fails to start.
func (t *EngineTransport) Start(ctx context.Context) error {
	t.log.Info("Starting engine subprocess")

	discoverer := engine.NewDiscoverer(&engine.Config{
		EnginePath: t.options.EnginePath,
		Logger:     t.log,
	})

	enginePath, err := discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover engine: %w", err)
	}

	t.enginePath = enginePath
	t.args = engine.BuildArgs(t.options)
	t.env = engine.BuildEnvironment(t.options)

	t.log.Debug("Built command arguments", "args", t.args)

	t.cwd = t.options.Cwd
	if t.cwd == "" {
		t.cwd, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The process outlives the start context; Close ends it.
	//nolint:gosec // G204: launching the configured engine is the point
	cmd := exec.Command(t.enginePath, t.args...)
	cmd.Dir = t.cwd
	cmd.Env = t.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		t.log.Error("Failed to start engine process", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("start process: %w", err)}
	}

	t.mu.Lock()
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.cmd = cmd
	t.mu.Unlock()

	t.log.Info("Engine subprocess started", "pid", cmd.Process.Pid)

	return nil
}

// ReadMessages reads wire strings from the engine stdout.
//
// The goroutine exits when the process terminates, the context is cancelled
// or an unrecoverable error occurs. A non-zero exit that was not caused by
// Close is reported as a *errors.ProcessError carrying the buffered stderr.
// Both channels are closed when it exits.
func (t *EngineTransport) ReadMessages(ctx context.Context) (<-chan string, <-chan error) {
	messages := make(chan string)
	errs := make(chan error, 1)

	var (
		stderrWg     sync.WaitGroup
		stderrBuffer strings.Builder
		stderrMu     sync.Mutex
	)

	// Stderr must be fully read before cmd.Wait().
	stderrWg.Go(func() {
		scanner := bufio.NewScanner(t.stderr)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			stderrMu.Lock()

			if stderrBuffer.Len() < maxStderrBufferSize {
				if stderrBuffer.Len() > 0 {
					stderrBuffer.WriteString("\n")
				}

				stderrBuffer.WriteString(line)
			}

			stderrMu.Unlock()

			if t.stderrCallback != nil {
				t.stderrCallback(line)
			}
		}

		if err := scanner.Err(); err != nil {
			t.log.Debug("Stderr scanner error", "error", err)
		}
	})

	go func() {
		defer close(messages)
		defer close(errs)
		defer t.log.Debug("ReadMessages goroutine stopped")

		received := 0

		err := scanLines(ctx, t.stdout, t.maxLineSize, func(msg string) bool {
			received++

			select {
			case messages <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				t.log.Debug("Context cancelled while reading", "error", err)
			} else {
				t.log.Error("Failed reading engine output", "error", err)
			}

			errs <- err

			return
		}

		t.log.Debug("Engine output closed", "message_count", received)

		stderrWg.Wait()

		if err := t.cmd.Wait(); err != nil {
			t.mu.Lock()
			isClosing := t.closing
			t.mu.Unlock()

			if isClosing {
				t.log.Debug("Engine process terminated during shutdown")

				return
			}

			stderrMu.Lock()
			stderrOutput := strings.TrimSpace(stderrBuffer.String())
			stderrMu.Unlock()

			exitCode := 0
			if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
				exitCode = exitErr.ExitCode()
			}

			t.log.Error("Engine process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

			errs <- &errors.ProcessError{
				ExitCode: exitCode,
				Stderr:   stderrOutput,
				Err:      err,
			}
		} else {
			t.log.Info("Engine process exited successfully")
		}
	}()

	return messages, errs
}

// SendMessage writes one framed wire string to the engine stdin.
//
// This method is safe for concurrent use and respects context cancellation
// even during blocking writes. If the context is cancelled during a blocked
// write, stdin is closed to unblock it and later calls return ErrStdinClosed.
func (t *EngineTransport) SendMessage(ctx context.Context, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin == nil {
		return errors.ErrTransportNotConnected
	}

	if t.stdinClosed {
		return errors.ErrStdinClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := encodeLine(message)
	if err != nil {
		return err
	}

	t.log.Debug("Sending message to engine", "data_len", len(data))

	done := make(chan error, 1)

	go func() {
		_, err := t.stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.log.Error("Failed to write message to engine", "error", err)

			return fmt.Errorf("write to stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		t.log.Debug("Context cancelled during write, closing stdin")

		_ = t.stdin.Close()
		t.stdinClosed = true

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// IsReady reports whether the engine process is running and stdin is open.
func (t *EngineTransport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cmd != nil && t.cmd.Process != nil && t.stdin != nil && !t.stdinClosed
}

// EndInput closes stdin. The engine sees end of input and may exit normally.
func (t *EngineTransport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin != nil && !t.stdinClosed {
		t.log.Debug("Closing stdin pipe")

		err := t.stdin.Close()
		t.stdinClosed = true
		t.stdin = nil

		return err
	}

	return nil
}

// Close kills the engine process. It's safe to call Close multiple times or
// on an already-terminated process.
func (t *EngineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closing = true
	t.stdinClosed = true

	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Debug("Killing engine process", "pid", t.cmd.Process.Pid)

		if err := t.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill engine process (pid %d): %w", t.cmd.Process.Pid, err)
		}
	}

	return nil
}
