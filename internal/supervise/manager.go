package supervise

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodeward/nodeward/internal/nodever"
	"github.com/nodeward/nodeward/internal/runtimecfg"
	"github.com/nodeward/nodeward/internal/store"
	"github.com/nodeward/nodeward/internal/supervise/ring"
)

// ErrNotInstalled is recorded when the selected version's binary is absent.
var ErrNotInstalled = fmt.Errorf("node binary not installed")

const defaultRingCapacity = 100

// defaultStopTimeout bounds the graceful-stop wait before escalating to
// SIGKILL. bitcoind flushes its databases on SIGTERM, which can take a
// while on a large chainstate.
const defaultStopTimeout = 30 * time.Second

// VersionInfo is the live identity reported by the running node.
type VersionInfo struct {
	Implementation string `json:"implementation"`
	Version        string `json:"version"`
}

// NodeClient queries the running daemon. Implementations talk RPC; the
// manager only needs the version probe.
type NodeClient interface {
	VersionInfo(ctx context.Context) (VersionInfo, error)
}

// Manager supervises the single bitcoind child.
//
// All lifecycle methods are safe for concurrent use, but callers that pair a
// settings write with a restart must serialize those themselves; the
// settings facade holds its single-writer lock across both.
type Manager struct {
	cfg      runtimecfg.Config
	settings *store.Settings
	logger   *slog.Logger
	client   NodeClient

	stopTimeout time.Duration
	ring        *ring.Buffer
	notifier    *notifier

	// expectedExit is set by Stop before signalling, so the reaper can tell
	// a requested shutdown from a crash.
	expectedExit atomic.Bool

	mu        sync.Mutex
	state     State
	child     *child
	reaped    chan struct{}
	startedAt time.Time
	lastErr   error
	lastExit  *ExitInfo

	// binaryDigest identifies the binary the current child was spawned
	// from, so a crash after an upgrade can be attributed correctly.
	binaryDigest string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClient sets the node client used by the live version probe.
func WithClient(client NodeClient) ManagerOption {
	return func(m *Manager) {
		m.client = client
	}
}

// WithStopTimeout bounds the graceful-stop wait.
func WithStopTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithRingCapacity sets the crash-diagnostic log tail size.
func WithRingCapacity(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.ring = ring.New(n)
		}
	}
}

// NewManager creates a supervisor in the stopped state.
func NewManager(cfg runtimecfg.Config, settings *store.Settings, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:         cfg,
		settings:    settings,
		logger:      logger,
		stopTimeout: defaultStopTimeout,
		ring:        ring.New(defaultRingCapacity),
		notifier:    newNotifier(),
		state:       StateStopped,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spawns the node at the version selected in the settings store.
// Starting while a child exists is a no-op. A missing binary produces a
// crash-shaped diagnostic without spawning and leaves the state unchanged.
func (m *Manager) Start() (ManagerStatus, Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.child != nil {
		return m.statusLocked(), ResultNoOp
	}
	prev := m.state
	m.state = StateStarting

	version, err := nodever.Resolve(m.settings.Version())
	if err != nil {
		m.lastErr = err
		m.state = prev
		m.logger.Error("resolving node version failed", "error", err)
		return m.statusLocked(), ResultNoOp
	}

	binary := m.cfg.BinaryPath(version)
	if _, err := os.Stat(binary); err != nil {
		m.lastErr = fmt.Errorf("%w: %s (version %s)", ErrNotInstalled, binary, version)
		// The diagnostic is emitted without a state transition: nothing was
		// spawned, so whatever held before the call still holds.
		m.state = prev
		m.logger.Error("node binary missing", "version", version, "path", binary)

		info := &ExitInfo{
			Code:    -1,
			Message: fmt.Sprintf("bitcoind %s is not installed at %s", version, binary),
			At:      time.Now(),
		}
		m.lastExit = info
		status := m.statusLocked()
		m.notifier.publish(Event{Status: status, Exit: info})
		return status, ResultNoOp
	}

	if err := m.repointCurrent(version); err != nil {
		m.logger.Warn("repointing current version link failed", "error", err)
	}
	if digest, err := fileDigest(binary); err != nil {
		m.logger.Warn("hashing node binary failed", "error", err)
		m.binaryDigest = ""
	} else {
		m.binaryDigest = digest
	}

	m.ring.Clear()
	m.expectedExit.Store(false)

	args := append([]string{"-datadir=" + m.cfg.DataDir}, m.cfg.ExtraArgs...)
	c, err := spawn(exec.Command(binary, args...))
	if err != nil {
		m.lastErr = err
		m.state = StateStopped
		m.logger.Error("spawning node failed", "version", version, "error", err)
		return m.statusLocked(), ResultNoOp
	}

	m.child = c
	m.reaped = make(chan struct{})
	m.startedAt = c.started
	m.lastErr = nil
	m.state = StateRunning

	var forwarders sync.WaitGroup
	forwarders.Add(2)
	go func() {
		defer forwarders.Done()
		m.forwardLines(c.stdout, c.id, slog.LevelInfo)
	}()
	go func() {
		defer forwarders.Done()
		m.forwardLines(c.stderr, c.id, slog.LevelWarn)
	}()
	go m.reap(c, &forwarders, m.reaped)

	m.logger.Info("node started",
		"version", version, "pid", c.PID(), "spawn_id", c.id)
	return m.statusLocked(), ResultStarted
}

// Stop gracefully terminates the child. Stopping without a child is a
// no-op. The wait is bounded; a child that outlives the timeout is killed.
func (m *Manager) Stop() (ManagerStatus, Result) {
	m.mu.Lock()
	c := m.child
	reaped := m.reaped
	if c == nil {
		status := m.statusLocked()
		m.mu.Unlock()
		return status, ResultNoOp
	}
	m.expectedExit.Store(true)
	m.mu.Unlock()

	if err := c.Terminate(); err != nil && !errors.Is(err, ErrNotStarted) {
		m.logger.Warn("signalling node failed", "error", err)
	}

	select {
	case <-reaped:
	case <-time.After(m.stopTimeout):
		m.logger.Warn("node did not stop in time, killing",
			"timeout", m.stopTimeout)
		_ = c.Kill()
		<-reaped
	}

	m.mu.Lock()
	status := m.statusLocked()
	m.mu.Unlock()
	return status, ResultStopped
}

// Restart stops the child if running, then starts it.
func (m *Manager) Restart() (ManagerStatus, Result) {
	m.Stop()
	return m.Start()
}

// Status reports the current child state.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// LastExit returns the most recent crash diagnostic, or nil.
func (m *Manager) LastExit() *ExitInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastExit
}

// BinaryDigest returns the SHA-256 of the binary the current or most recent
// child was spawned from.
func (m *Manager) BinaryDigest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binaryDigest
}

// Subscribe registers an observer for exit events. The observer first
// receives one snapshot of current status and diagnostic, then a stream of
// events on unexpected exits until it unsubscribes.
func (m *Manager) Subscribe(obs Observer) *Subscription {
	m.mu.Lock()
	snapshot := Event{
		Snapshot: true,
		Status:   m.statusLocked(),
		Exit:     m.lastExit,
	}
	m.mu.Unlock()

	sub := m.notifier.subscribe(obs)
	obs(snapshot)
	return sub
}

// Version probes the running node for its live identity, falling back to
// "unknown" when the node is unreachable or no client is wired.
func (m *Manager) Version(ctx context.Context) VersionInfo {
	unknown := VersionInfo{Implementation: "unknown", Version: "unknown"}
	if m.client == nil {
		return unknown
	}
	info, err := m.client.VersionInfo(ctx)
	if err != nil {
		return unknown
	}
	return info
}

// statusLocked builds a ManagerStatus. Callers hold m.mu.
func (m *Manager) statusLocked() ManagerStatus {
	status := ManagerStatus{
		Running: m.state == StateRunning,
	}
	if m.child != nil {
		status.StartedAt = m.startedAt
		status.PID = m.child.PID()
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

// reap waits for the child to exit and settles manager state. An exit with
// the expected flag set is a clean stop; anything else becomes a crash
// diagnostic broadcast to subscribers. The forwarders are drained first so
// the diagnostic's log tail holds everything the child managed to say.
func (m *Manager) reap(c *child, forwarders *sync.WaitGroup, reaped chan struct{}) {
	<-c.Done()
	forwarders.Wait()

	m.mu.Lock()
	if m.child != c {
		m.mu.Unlock()
		close(reaped)
		return
	}
	m.child = nil

	if m.expectedExit.Load() {
		m.expectedExit.Store(false)
		m.state = StateStopped
		m.startedAt = time.Time{}
		m.mu.Unlock()
		m.logger.Info("node stopped", "spawn_id", c.id)
		close(reaped)
		return
	}

	info := &ExitInfo{
		Code:    c.ExitCode(),
		Signal:  c.ExitSignal(),
		LogTail: m.ring.Snapshot(),
		At:      time.Now(),
	}
	if info.Signal != "" {
		info.Message = fmt.Sprintf("bitcoind terminated unexpectedly by signal %s", info.Signal)
	} else {
		info.Message = fmt.Sprintf("bitcoind exited unexpectedly with code %d", info.Code)
	}

	m.state = StateCrashed
	m.startedAt = time.Time{}
	m.lastExit = info
	status := m.statusLocked()
	m.mu.Unlock()

	m.logger.Error("node exited unexpectedly",
		"code", info.Code, "signal", info.Signal, "spawn_id", c.id)
	m.notifier.publish(Event{Status: status, Exit: info})
	close(reaped)
}

// forwardLines streams one output pipe into the ring buffer and the logger,
// line by line. Read failures are logged and never crash the manager.
func (m *Manager) forwardLines(r io.Reader, spawnID string, level slog.Level) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			m.ring.Append(trimmed)
			m.logger.Log(context.Background(), level, trimmed, "spawn_id", spawnID)
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Warn("reading node output failed", "error", err, "spawn_id", spawnID)
	}
}

// repointCurrent atomically swaps the "current" symlink to the version's
// directory. A temp link plus rename keeps the link valid at every instant.
func (m *Manager) repointCurrent(version string) error {
	link := m.cfg.CurrentLink()
	target := filepath.Join(m.cfg.BinRoot, version)

	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("creating version link: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swapping version link: %w", err)
	}
	return nil
}

// fileDigest returns the hex SHA-256 of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
