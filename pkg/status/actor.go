// Package status implements the System Status Actor: a single-owner
// goroutine holding the runtime counters surfaced by get_system_status,
// updated by fire-and-forget commands from every other component and
// refreshed every 5s by an independent CPU/memory sampler built on
// github.com/shirou/gopsutil/v4, the library the pack's own agent
// metrics collectors use for the same per-process sampling.
package status

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// SampleInterval is how often the monitor goroutine refreshes CPU and
// memory figures.
const SampleInterval = 5 * time.Second

// Snapshot is the full runtime status returned by Get.
type Snapshot struct {
	IsCapturing          bool
	IsProcessing         bool
	LastCaptureTime      time.Time
	LastProcessTime      time.Time
	CurrentSessionFrames int
	StorageUsageBytes    int64
	LastError            string
	CPUPercent           float64
	MemoryMB             float64
}

type commandKind int

const (
	cmdSetCapturing commandKind = iota
	cmdSetProcessing
	cmdRecordCapture
	cmdRecordProcess
	cmdSetSessionFrames
	cmdSetStorageUsage
	cmdSetError
	cmdClearError
	cmdSetSample
	cmdGet
)

type command struct {
	kind    commandKind
	bval    bool
	ival    int
	i64val  int64
	errMsg  string
	cpuPct  float64
	memMB   float64
	at      time.Time
	replyCh chan Snapshot
}

// Actor owns the runtime status snapshot and serializes every update
// and read through a single goroutine.
type Actor struct {
	cmdCh  chan command
	doneCh chan struct{}

	stopSample chan struct{}
	sampleWG   sync.WaitGroup
}

// New starts the actor and its 5s CPU/memory sampler.
func New() *Actor {
	a := &Actor{
		cmdCh:      make(chan command, 64),
		doneCh:     make(chan struct{}),
		stopSample: make(chan struct{}),
	}
	go a.run()
	a.sampleWG.Add(1)
	go a.sampleLoop()
	return a
}

// Stop shuts down both the actor loop and the sampler goroutine.
func (a *Actor) Stop() {
	close(a.stopSample)
	a.sampleWG.Wait()
	close(a.cmdCh)
	<-a.doneCh
}

func (a *Actor) run() {
	defer close(a.doneCh)
	var snap Snapshot

	for cmd := range a.cmdCh {
		switch cmd.kind {
		case cmdSetCapturing:
			snap.IsCapturing = cmd.bval
		case cmdSetProcessing:
			snap.IsProcessing = cmd.bval
		case cmdRecordCapture:
			snap.LastCaptureTime = cmd.at
		case cmdRecordProcess:
			snap.LastProcessTime = cmd.at
		case cmdSetSessionFrames:
			snap.CurrentSessionFrames = cmd.ival
		case cmdSetStorageUsage:
			snap.StorageUsageBytes = cmd.i64val
		case cmdSetError:
			snap.LastError = cmd.errMsg
		case cmdClearError:
			snap.LastError = ""
		case cmdSetSample:
			snap.CPUPercent = cmd.cpuPct
			snap.MemoryMB = cmd.memMB
		case cmdGet:
			if cmd.replyCh != nil {
				select {
				case cmd.replyCh <- snap:
				default:
				}
			}
		}
	}
}

func (a *Actor) send(cmd command) {
	select {
	case a.cmdCh <- cmd:
	default:
		// Status updates are best-effort telemetry: a full queue means
		// the actor is falling behind, and blocking the caller (often a
		// hot capture-tick path) would make things worse.
	}
}

// SetCapturing records whether the capture scheduler is actively ticking.
func (a *Actor) SetCapturing(v bool) { a.send(command{kind: cmdSetCapturing, bval: v}) }

// SetProcessing records whether the orchestrator is mid-pipeline.
func (a *Actor) SetProcessing(v bool) { a.send(command{kind: cmdSetProcessing, bval: v}) }

// RecordCapture timestamps the most recent successful frame capture.
func (a *Actor) RecordCapture(at time.Time) { a.send(command{kind: cmdRecordCapture, at: at}) }

// RecordProcess timestamps the most recent pipeline run.
func (a *Actor) RecordProcess(at time.Time) { a.send(command{kind: cmdRecordProcess, at: at}) }

// SetSessionFrames records the current in-flight session's frame count.
func (a *Actor) SetSessionFrames(n int) { a.send(command{kind: cmdSetSessionFrames, ival: n}) }

// SetStorageUsage records the last computed storage footprint in bytes.
func (a *Actor) SetStorageUsage(bytes int64) { a.send(command{kind: cmdSetStorageUsage, i64val: bytes}) }

// SetError records the most recent pipeline error message.
func (a *Actor) SetError(msg string) { a.send(command{kind: cmdSetError, errMsg: msg}) }

// ClearError clears the last recorded error, e.g. after a successful retry.
func (a *Actor) ClearError() { a.send(command{kind: cmdClearError}) }

// Get returns the current snapshot, waiting up to ctx's deadline. An
// already-cancelled ctx returns its error without querying the actor.
func (a *Actor) Get(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	reply := make(chan Snapshot, 1)
	select {
	case a.cmdCh <- command{kind: cmdGet, replyCh: reply}:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// sampleLoop refreshes CPU/memory every SampleInterval using this
// process's own resource usage, normalized by core count so a
// single-threaded hot loop doesn't read as ">100%".
func (a *Actor) sampleLoop() {
	defer a.sampleWG.Done()
	ticker := time.NewTicker(SampleInterval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	cores := runtime.NumCPU()
	if cores < 1 {
		cores = 1
	}

	for {
		select {
		case <-a.stopSample:
			return
		case <-ticker.C:
			cpuPct, err := proc.Percent(0)
			if err != nil {
				cpuPct = 0
			}
			memInfo, err := proc.MemoryInfo()
			var memMB float64
			if err == nil && memInfo != nil {
				memMB = float64(memInfo.RSS) / 1024 / 1024
			}
			a.send(command{kind: cmdSetSample, cpuPct: cpuPct / float64(cores), memMB: memMB})
		}
	}
}
