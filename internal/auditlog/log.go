package auditlog

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/byteness/zerotrust-mesh/internal/zterrors"
)

// MaxFileSize is the rotation threshold: a segment is rotated once it
// reaches 100MB, preserving the hash chain into the next segment.
const MaxFileSize = 100 * 1024 * 1024

// TailCacheSize is how many of the most recent events are kept in memory
// for fast status reporting without re-reading the file.
const TailCacheSize = 1000

// appendRequest is one queued write, submitted by Append and drained by
// the single serializing worker goroutine.
type appendRequest struct {
	record Record
	result chan error
}

// Log is the tamper-evident Audit Log: a hash-chained, AES-256-GCM
// encrypted, line-oriented append log.
//
// Grounded on the audit package's record shape (adapted from CloudTrail
// SessionInfo classification to a generic security event),
// 0gfoundation's SealedSecretStore for the AES-GCM envelope, and
// ratelimit/memory.go's background-goroutine shutdown shape for the
// worker lifecycle (here serializing writes instead of running periodic
// cleanup).
type Log struct {
	dir    string
	sealer *sealer

	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	size      int64
	lastHash  string
	readOnly  bool
	tail      []Record
	degraded  error
	rotations int

	queue chan appendRequest
	done  chan struct{}
	wg    sync.WaitGroup

	backoff time.Duration
}

// Option configures a Log at construction.
type Option func(*Log)

// WithQueueSize overrides the default bounded channel depth of 256.
func WithQueueSize(n int) Option {
	return func(l *Log) { l.queue = make(chan appendRequest, n) }
}

// Open opens (creating if needed) the audit log directory dir, loading or
// generating its encryption key via ks, and starts the serializing writer
// goroutine.
func Open(dir string, ks KeyStore, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	existing, err := hasExistingSegments(dir)
	if err != nil {
		return nil, err
	}
	key, err := LoadOrCreateKey(ks, !existing)
	if err != nil {
		return nil, fmt.Errorf("load audit key: %w", err)
	}
	seal, err := newSealer(key)
	if err != nil {
		return nil, err
	}

	l := &Log{
		dir:      dir,
		sealer:   seal,
		lastHash: genesisHash,
		queue:    make(chan appendRequest, 256),
		done:     make(chan struct{}),
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}

	// Rescan any existing archives plus the active file, in chronological
	// order, to recover last-hash and the in-memory tail cache on reopen
	// (the open() contract: "on reopen ... rescan the log to recover
	// last-hash and in-memory tail").
	if err := l.recoverState(); err != nil {
		return nil, fmt.Errorf("recover audit state: %w", err)
	}
	if err := l.openActive(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// hasExistingSegments reports whether dir already holds a non-empty
// active segment or archived segment from a previous run, distinguishing
// a brand-new log directory from a reopen. It only looks at audit.log /
// audit.<timestamp>.log segment names, never the key file that may sit
// alongside them in the same directory.
func hasExistingSegments(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read audit directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name != "audit.log" && !(strings.HasPrefix(name, "audit.") && strings.HasSuffix(name, ".log")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// activePath is the live segment every Append writes to.
func (l *Log) activePath() string {
	return filepath.Join(l.dir, "audit.log")
}

// archivePath names a rotated-out segment after the moment it was closed,
// using a <basename>.<YYYYMMDD_HHMMSS>.<ext> archive naming scheme.
func (l *Log) archivePath(at time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit.%s.log", at.UTC().Format("20060102_150405")))
}

func (l *Log) openActive() error {
	f, err := os.OpenFile(l.activePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open audit segment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit segment: %w", err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.size = info.Size()
	return nil
}

// recoverState replays every existing segment (archives, then the active file)
// in order to restore last-hash and the tail cache. A segment that fails
// to decrypt or parse is reported via the returned error's cause chain
// handled by Verify instead; recover itself tolerates a record-level
// failure by stopping the replay at that point, leaving last-hash at
// whatever was last recovered — a fresh genesis chain on a still-empty
// log is the common case and short-circuits immediately.
func (l *Log) recoverState() error {
	segments, err := listSegments(l.dir)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	lastHash := genesisHash
	var tail []Record
	for _, path := range segments {
		records, next, err := replaySegment(path, l.sealer, lastHash)
		if err != nil {
			return err
		}
		lastHash = next
		tail = append(tail, records...)
	}
	l.lastHash = lastHash
	if len(tail) > TailCacheSize {
		tail = tail[len(tail)-TailCacheSize:]
	}
	l.tail = tail
	return nil
}

// Append queues record for durable append, filling in Timestamp and
// PrevHash, and blocks until the write (or its failure) completes.
func (l *Log) Append(ctx context.Context, record Record) error {
	record.Timestamp = time.Now().UTC()

	req := appendRequest{record: record, result: make(chan error, 1)}
	select {
	case l.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return zterrors.New(zterrors.KindAuditUnavailable, "audit log is closed")
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Log) run() {
	defer l.wg.Done()
	for {
		select {
		case req := <-l.queue:
			req.result <- l.writeOne(req.record)
		case <-l.done:
			// Drain any requests already queued before exiting so callers
			// waiting on Append don't block forever.
			for {
				select {
				case req := <-l.queue:
					req.result <- zterrors.New(zterrors.KindAuditUnavailable, "audit log is closed")
				default:
					return
				}
			}
		}
	}
}

func (l *Log) writeOne(record Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readOnly {
		return zterrors.Wrap(zterrors.KindAuditUnavailable, l.degraded, "audit log is in read-only degraded mode")
	}

	record.PrevHash = l.lastHash
	plaintext, err := record.canonicalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	hash := chainHash(record.PrevHash, plaintext)

	blob, err := l.sealer.seal(plaintext)
	if err != nil {
		l.degrade(err)
		return zterrors.Wrap(zterrors.KindAuditUnavailable, err, "failed to encrypt audit record")
	}
	line := base64.StdEncoding.EncodeToString(blob)

	if err := l.appendLineLocked(line); err != nil {
		l.degrade(err)
		return zterrors.Wrap(zterrors.KindAuditUnavailable, err, "failed to persist audit record")
	}

	l.lastHash = hash
	l.tail = append(l.tail, record)
	if len(l.tail) > TailCacheSize {
		l.tail = l.tail[len(l.tail)-TailCacheSize:]
	}
	l.backoff = 100 * time.Millisecond
	return nil
}

func (l *Log) appendLineLocked(line string) error {
	n, err := l.writer.WriteString(line + "\n")
	if err != nil {
		return err
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	l.size += int64(n)

	if l.size >= MaxFileSize {
		return l.rotateLocked()
	}
	return nil
}

func (l *Log) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close audit segment: %w", err)
	}
	if err := os.Rename(l.activePath(), l.archivePath(time.Now())); err != nil {
		return fmt.Errorf("archive rotated audit segment: %w", err)
	}
	l.rotations++
	return l.openActive()
}

// degrade marks the log read-only. writeOne calls it on the first failed
// encrypt or write; the failed record is not buffered or retried, and
// every later append fails until Recover is called.
func (l *Log) degrade(cause error) {
	l.readOnly = true
	l.degraded = cause
}

// Recover clears the read-only flag, for use after an operator confirms
// the underlying failure (disk space, key-file permissions) is resolved.
func (l *Log) Recover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readOnly = false
	l.degraded = nil
}

// Degraded reports whether the log is currently in read-only mode, and
// the cause if so.
func (l *Log) Degraded() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readOnly, l.degraded
}

// Close stops the writer goroutine and flushes/closes the current
// segment. Calling it again after it has returned is a no-op that
// returns nil.
func (l *Log) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Stats reports current audit log statistics for status reporting.
type Stats struct {
	ActiveFileSize int64
	Rotations      int
	ReadOnly       bool
	TailEvents     int
}

// Stats returns current Log statistics.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		ActiveFileSize: l.size,
		Rotations:      l.rotations,
		ReadOnly:       l.readOnly,
		TailEvents:     len(l.tail),
	}
}

// Tail returns a copy of the most recently appended records (up to
// TailCacheSize), newest last.
func (l *Log) Tail() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.tail))
	copy(out, l.tail)
	return out
}
