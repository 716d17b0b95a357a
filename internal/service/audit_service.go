package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
)

// DecisionRepo persists decision records beyond the in-memory ring.
type DecisionRepo interface {
	Insert(ctx context.Context, rec *model.DecisionRecord) error
	List(ctx context.Context, symbol string, limit int) ([]*model.DecisionRecord, error)
}

const (
	defaultAuditBuffer = 1000
	repoWriteTimeout   = 2 * time.Second
)

// DecisionAudit keeps the recent AllowEntry decisions in a ring buffer and
// appends them asynchronously to daily JSONL files and an optional repo.
// Recording never blocks the gate: a full queue drops the entry.
type DecisionAudit struct {
	logChan chan *model.DecisionRecord
	done    chan struct{}
	dir     string
	buffer  *auditBuffer
	repo    DecisionRepo
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool

	// owned by the writer goroutine
	file     *os.File
	fileDate string
}

// NewDecisionAudit writes audit-YYYY-MM-DD.jsonl files under dir. An empty
// dir keeps the audit in memory (and repo) only.
func NewDecisionAudit(dir string, size int, repo DecisionRepo, log *slog.Logger) (*DecisionAudit, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	if size <= 0 {
		size = defaultAuditBuffer
	}
	a := &DecisionAudit{
		logChan: make(chan *model.DecisionRecord, size),
		done:    make(chan struct{}),
		dir:     dir,
		buffer:  newAuditBuffer(size),
		repo:    repo,
		log:     logger.OrDefault(log),
	}
	go a.processLogs()
	return a, nil
}

// Record implements DecisionRecorder. Safe to call after Close.
func (a *DecisionAudit) Record(rec model.DecisionRecord) {
	entry := &rec
	a.buffer.Add(entry)

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.logChan <- entry:
	default:
		a.log.Warn("decision audit queue full, dropping entry", "id", rec.ID, "symbol", rec.Symbol)
	}
}

// List returns the newest decisions first, from the repo when one is
// configured and reachable, else from the ring buffer.
func (a *DecisionAudit) List(ctx context.Context, symbol string, limit int) ([]*model.DecisionRecord, error) {
	if a.repo != nil {
		records, err := a.repo.List(ctx, symbol, limit)
		if err == nil {
			return records, nil
		}
		a.log.Warn("decision repo list failed, serving from memory", "error", err)
	}
	return a.buffer.List(symbol, limit), nil
}

func (a *DecisionAudit) processLogs() {
	defer close(a.done)
	for entry := range a.logChan {
		if a.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), repoWriteTimeout)
			if err := a.repo.Insert(ctx, entry); err != nil {
				a.log.Error("failed to write decision to repo", "id", entry.ID, "error", err)
			}
			cancel()
		}
		if err := a.writeFile(entry); err != nil {
			a.log.Error("failed to write decision audit file", "id", entry.ID, "error", err)
		}
	}
	if a.file != nil {
		_ = a.file.Close()
	}
}

// writeFile rotates on the record's UTC date.
func (a *DecisionAudit) writeFile(entry *model.DecisionRecord) error {
	if a.dir == "" {
		return nil
	}
	date := entry.DateUTC
	if date == "" {
		date = model.DateUTC(entry.EvaluatedAt)
	}
	if a.file == nil || a.fileDate != date {
		if a.file != nil {
			_ = a.file.Close()
			a.file = nil
		}
		name := filepath.Join(a.dir, "audit-"+date+".jsonl")
		f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		a.file = f
		a.fileDate = date
	}
	return json.NewEncoder(a.file).Encode(entry)
}

// Close drains the queue and closes the current file.
func (a *DecisionAudit) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.logChan)
	a.mu.Unlock()
	<-a.done
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.DecisionRecord
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = defaultAuditBuffer
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.DecisionRecord, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.DecisionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *auditBuffer) List(symbol string, limit int) []*model.DecisionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.DecisionRecord, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if symbol != "" && !strings.EqualFold(entry.Symbol, symbol) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
