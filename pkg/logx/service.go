package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "matchbot/internal/transport"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile  = "./matchbot.log"
	opsQueueSize    = 256
	opsSendTimeout  = 10 * time.Second
	opsMessageLimit = 3500
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig forwards records at or above MinLevel (default WARN) to an
// ops chat, at most RatePerSec per second.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the sinks. Apply may be called at any time; loggers handed out
// earlier pick up the new sinks on their next call.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu     sync.Mutex
	file   *os.File
	target kit.ChatTarget
	ops    *opsSink
}

// New builds the service, applies cfg and returns the root logger. sender may
// be nil, which disables the Telegram sink.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	if sender != nil {
		s.ops = newOpsSink(sender)
	}
	zl := zerolog.New(consoleWriter()).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(&zl)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger { return *s.root.Load() }

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetTelegramTarget sets the ops chat. chatID 0 disables forwarding. A zero
// threadID keeps the previous thread.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.ChatID = chatID
	if threadID != 0 {
		s.target.ThreadID = threadID
	}
	if s.ops != nil {
		s.ops.setTarget(s.target)
	}
}

// Apply swaps level and sinks.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, consoleWriter())
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled && s.ops != nil {
		if cfg.Telegram.ThreadID != 0 {
			s.target.ThreadID = cfg.Telegram.ThreadID
		}
		s.ops.setTarget(s.target)
		s.ops.configure(parseLevel(cfg.Telegram.MinLevel, zerolog.WarnLevel), cfg.Telegram.RatePerSec)
		writers = append(writers, s.ops)
		if s.target.ChatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but telegram.group_log is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close flushes the ops queue and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if s.ops != nil {
		s.ops.close()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

var globalsOnce sync.Once

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.TimeFieldFormat = timeFormat
		zerolog.ErrorFieldName = "err"
	})
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	}
	return def
}

// opsSink is a zerolog.LevelWriter that forwards records to a Telegram chat
// from a single background goroutine. It never blocks the caller; records
// over the rate or queue limit are dropped.
type opsSink struct {
	sender kit.Sender
	queue  chan opsRecord
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

type opsRecord struct {
	to   kit.ChatTarget
	text string
}

func newOpsSink(sender kit.Sender) *opsSink {
	ctx, cancel := context.WithCancel(context.Background())
	o := &opsSink{
		sender:   sender,
		queue:    make(chan opsRecord, opsQueueSize),
		cancel:   cancel,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
	o.wg.Add(1)
	go o.run(ctx)
	return o
}

func (o *opsSink) setTarget(t kit.ChatTarget) {
	o.mu.Lock()
	o.target = t
	o.mu.Unlock()
}

func (o *opsSink) configure(minLevel zerolog.Level, perSec int) {
	perSec = max(1, perSec)
	o.mu.Lock()
	o.minLevel = minLevel
	o.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	o.mu.Unlock()
}

func (o *opsSink) Write(p []byte) (int, error) { return o.WriteLevel(zerolog.InfoLevel, p) }

func (o *opsSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	o.mu.Lock()
	to, minLevel, lim := o.target, o.minLevel, o.limiter
	o.mu.Unlock()

	if to.ChatID == 0 || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	select {
	case o.queue <- opsRecord{to: to, text: formatRecord(p)}:
	default:
	}
	return len(p), nil
}

func (o *opsSink) run(ctx context.Context) {
	defer o.wg.Done()
	opt := &kit.SendOptions{ParseMode: kit.ParseHTML, DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-o.queue:
			sctx, cancel := context.WithTimeout(ctx, opsSendTimeout)
			_, _ = o.sender.SendText(sctx, r.to, r.text, opt)
			cancel()
		}
	}
}

func (o *opsSink) close() {
	o.cancel()
	o.wg.Wait()
}
