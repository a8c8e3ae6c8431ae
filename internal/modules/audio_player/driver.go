package audioplayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DriverEvent is a playback signal surfaced by the mpv process.
type DriverEvent int

const (
	// EventEnded fires when the current stream reaches end of file.
	EventEnded DriverEvent = iota
	// EventWaiting fires when mpv stalls on the network cache.
	EventWaiting
	// EventPlaying fires when decoding resumes after a stall or start.
	EventPlaying
)

// mpvDriver drives a spawned mpv process over its JSON IPC socket.
type mpvDriver struct {
	log    *zap.Logger
	cmd    *exec.Cmd
	conn   net.Conn
	events chan DriverEvent

	mu      sync.Mutex
	reqID   int64
	pending map[int64]chan mpvResponse

	posMu      sync.Mutex
	timePos    float64
	duration   float64
	haveMeta   bool
	stalled    bool
	socketPath string
}

type mpvResponse struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type mpvMessage struct {
	RequestID int64           `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

const mpvDialTimeout = 5 * time.Second

// startMPV spawns mpv idle with an IPC socket and connects to it.
func startMPV(binary string, socket string, log *zap.Logger) (*mpvDriver, error) {
	if binary == "" {
		binary = "mpv"
	}
	if socket == "" {
		return nil, errors.New("mpv socket path required")
	}
	_ = os.Remove(socket)

	args := []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--really-quiet",
		"--pause",
		"--input-ipc-server=" + socket,
	}
	cmd := exec.Command(binary, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}

	conn, err := dialSocket(socket, mpvDialTimeout)
	if err != nil {
		killProcessGroup(cmd)
		return nil, fmt.Errorf("connect mpv ipc: %w", err)
	}

	d := &mpvDriver{
		log:        log,
		cmd:        cmd,
		conn:       conn,
		events:     make(chan DriverEvent, 16),
		pending:    map[int64]chan mpvResponse{},
		socketPath: socket,
	}
	go d.readLoop()

	observed := [][]any{
		{"observe_property", int64(1), "time-pos"},
		{"observe_property", int64(2), "duration"},
		{"observe_property", int64(3), "paused-for-cache"},
	}
	for _, obs := range observed {
		if _, err := d.command(obs...); err != nil {
			d.Close()
			return nil, fmt.Errorf("observe property: %w", err)
		}
	}
	return d, nil
}

func dialSocket(socket string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}
	_ = cmd.Process.Kill()
}

// Events exposes the driver's playback signals.
func (d *mpvDriver) Events() <-chan DriverEvent {
	return d.events
}

// Close tears down the IPC connection and the mpv process.
func (d *mpvDriver) Close() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	killProcessGroup(d.cmd)
	if d.cmd != nil {
		_ = d.cmd.Wait()
	}
	_ = os.Remove(d.socketPath)
}

// SetSource loads a new stream paused. Cached position metadata resets
// until mpv reports the new stream's duration.
func (d *mpvDriver) SetSource(url string) error {
	d.posMu.Lock()
	d.timePos = 0
	d.duration = 0
	d.haveMeta = false
	d.posMu.Unlock()

	if _, err := d.command("set_property", "pause", true); err != nil {
		return err
	}
	_, err := d.command("loadfile", url, "replace")
	return err
}

func (d *mpvDriver) Play() error {
	_, err := d.command("set_property", "pause", false)
	return err
}

func (d *mpvDriver) Pause() error {
	_, err := d.command("set_property", "pause", true)
	return err
}

func (d *mpvDriver) SeekSeconds(seconds float64) error {
	_, err := d.command("seek", seconds, "absolute")
	return err
}

// SetVolume maps the controller's 0..1 scale onto mpv's 0..100.
func (d *mpvDriver) SetVolume(volume float64) error {
	_, err := d.command("set_property", "volume", volume*100)
	return err
}

func (d *mpvDriver) Position() (float64, float64, bool) {
	d.posMu.Lock()
	defer d.posMu.Unlock()
	return d.timePos, d.duration, d.haveMeta
}

func (d *mpvDriver) command(args ...any) (json.RawMessage, error) {
	d.mu.Lock()
	d.reqID++
	id := d.reqID
	ch := make(chan mpvResponse, 1)
	d.pending[id] = ch
	payload, err := json.Marshal(map[string]any{"command": args, "request_id": id})
	if err == nil {
		_, err = d.conn.Write(append(payload, '\n'))
	}
	d.mu.Unlock()
	if err != nil {
		d.dropPending(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return nil, fmt.Errorf("mpv: %s", resp.Error)
		}
		return resp.Data, nil
	case <-time.After(2 * time.Second):
		d.dropPending(id)
		return nil, errors.New("mpv ipc timeout")
	}
}

func (d *mpvDriver) dropPending(id int64) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *mpvDriver) readLoop() {
	dec := json.NewDecoder(d.conn)
	for {
		var msg mpvMessage
		if err := dec.Decode(&msg); err != nil {
			d.log.Debug("mpv ipc closed", zap.Error(err))
			close(d.events)
			return
		}
		if msg.RequestID != 0 && msg.Event == "" {
			d.mu.Lock()
			ch, ok := d.pending[msg.RequestID]
			if ok {
				delete(d.pending, msg.RequestID)
			}
			d.mu.Unlock()
			if ok {
				ch <- mpvResponse{RequestID: msg.RequestID, Error: msg.Error, Data: msg.Data}
			}
			continue
		}
		d.handleEvent(msg)
	}
}

func (d *mpvDriver) handleEvent(msg mpvMessage) {
	switch msg.Event {
	case "property-change":
		d.handleProperty(msg)
	case "end-file":
		// Only natural end of stream advances the queue.
		if msg.Reason == "" || msg.Reason == "eof" {
			d.emit(EventEnded)
		}
	case "playback-restart":
		d.emit(EventPlaying)
	}
}

func (d *mpvDriver) handleProperty(msg mpvMessage) {
	switch msg.Name {
	case "time-pos":
		var pos float64
		if err := json.Unmarshal(msg.Data, &pos); err == nil {
			d.posMu.Lock()
			d.timePos = pos
			d.posMu.Unlock()
		}
	case "duration":
		var dur float64
		if err := json.Unmarshal(msg.Data, &dur); err == nil && dur > 0 {
			d.posMu.Lock()
			d.duration = dur
			d.haveMeta = true
			d.posMu.Unlock()
		}
	case "paused-for-cache":
		var stalled bool
		if err := json.Unmarshal(msg.Data, &stalled); err != nil {
			return
		}
		d.posMu.Lock()
		changed := stalled != d.stalled
		d.stalled = stalled
		d.posMu.Unlock()
		if !changed {
			return
		}
		if stalled {
			d.emit(EventWaiting)
		} else {
			d.emit(EventPlaying)
		}
	}
}

func (d *mpvDriver) emit(ev DriverEvent) {
	select {
	case d.events <- ev:
	default:
		d.log.Debug("driver event dropped", zap.Int("event", int(ev)))
	}
}
