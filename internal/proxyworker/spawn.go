package proxyworker

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/oriys/dapbridge/internal/dapwire"
	"github.com/oriys/dapbridge/internal/policy"
)

// Process is the running adapter subprocess a Worker owns. It is narrowed
// to the handful of operations the worker actually needs, so tests can
// substitute a fake without shelling out.
type Process interface {
	// Conn returns the DAP transport: a dialed TCP connection for
	// TransportTCP adapters, or the process's own stdio pipes wrapped as
	// one io.ReadWriteCloser for TransportStdio adapters.
	Conn(ctx context.Context) (io.ReadWriteCloser, error)
	// Wait blocks until the process exits and returns its error (nil on
	// a clean exit).
	Wait() error
	// Kill forcibly terminates the process.
	Kill() error
}

// Spawner builds a Process from a policy.SpawnConfig.
type Spawner interface {
	Spawn(ctx context.Context, cfg policy.SpawnConfig, opts policy.SpawnOptions) (Process, error)
}

// OSSpawner spawns real adapter subprocesses with os/exec, matching
// cmd/agent/debug_python.go's exec.Command("python3", ...) usage, then
// either dials the port it was told to listen on (TCP adapters) or pipes
// its own stdin/stdout (stdio adapters, i.e. lldb-dap).
type OSSpawner struct{}

func (OSSpawner) Spawn(ctx context.Context, cfg policy.SpawnConfig, opts policy.SpawnOptions) (Process, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	switch cfg.Transport {
	case policy.TransportStdio:
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &osProcess{
			cmd:  cmd,
			rwc:  &stdioPipe{stdin: stdin, stdout: stdout},
			tcp:  false,
		}, nil
	default: // TransportTCP
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &osProcess{cmd: cmd, addr: opts.Addr(), tcp: true}, nil
	}
}

type osProcess struct {
	cmd  *exec.Cmd
	rwc  io.ReadWriteCloser
	addr string
	tcp  bool
}

func (p *osProcess) Conn(ctx context.Context) (io.ReadWriteCloser, error) {
	if !p.tcp {
		return p.rwc, nil
	}
	conn, err := dapwire.DialTCPWithRetry(ctx, p.addr, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *osProcess) Wait() error { return p.cmd.Wait() }

func (p *osProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// stdioPipe adapts a subprocess's separate stdin/stdout pipes into a
// single io.ReadWriteCloser for dapwire.Client.
type stdioPipe struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (s *stdioPipe) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *stdioPipe) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *stdioPipe) Close() error {
	err1 := s.stdin.Close()
	err2 := s.stdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
