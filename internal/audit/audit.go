package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Exclusion reasons recorded alongside every candidate decision.
const (
	ReasonAccepted            = "accepted"
	ReasonFetchFailed         = "fetch_failed"
	ReasonBlockedDomain       = "blocked_domain"
	ReasonLowQuality          = "low_quality"
	ReasonUnconfirmedGreylist = "unconfirmed_greylist"
	ReasonDuplicate           = "duplicate"
)

type Decision struct {
	URL       string    `json:"url"`
	Kept      bool      `json:"kept"`
	Reason    string    `json:"reason"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives one decision per candidate evaluated anywhere in the pipeline.
// Implementations must be safe for concurrent use and must never fail the run.
type Sink interface {
	Record(d Decision)
}

type header struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// Log is the append-only audit trail for one run. Decisions are kept in memory
// for the rendered result and mirrored to a newline-delimited JSON file. File
// errors are reported and swallowed; auditing never blocks the pipeline.
type Log struct {
	mu        sync.Mutex
	sessionID string
	startedAt time.Time
	decisions []Decision
	file      *os.File
	enc       *json.Encoder
	logger    *zap.Logger
}

func NewLog(dir, sessionID string, logger *zap.Logger) *Log {
	l := &Log{
		sessionID: sessionID,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("audit log disabled", zap.Error(err))
		} else {
			path := filepath.Join(dir, sessionID+".ndjson")
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				logger.Warn("audit log disabled", zap.String("path", path), zap.Error(err))
			} else {
				l.file = f
				l.enc = json.NewEncoder(f)
				if err := l.enc.Encode(header{SessionID: sessionID, StartedAt: l.startedAt}); err != nil {
					logger.Warn("audit header write failed", zap.Error(err))
				}
			}
		}
	}
	return l
}

func (l *Log) Record(d Decision) {
	if d.SessionID == "" {
		d.SessionID = l.sessionID
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
	if l.enc != nil {
		if err := l.enc.Encode(d); err != nil {
			l.logger.Warn("audit write failed", zap.String("url", d.URL), zap.Error(err))
		}
	}
}

// Decisions returns a copy of everything recorded so far.
func (l *Log) Decisions() []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Decision, len(l.decisions))
	copy(out, l.decisions)
	return out
}

func (l *Log) SessionID() string    { return l.sessionID }
func (l *Log) StartedAt() time.Time { return l.startedAt }

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enc = nil
	return err
}
