// Package miner turns inbound chat events into index records, raw log
// lines and downloaded media.
package miner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/filter"
	"github.com/tinyland-inc/tgminer/pkg/identity"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/logger"
	"github.com/tinyland-inc/tgminer/pkg/media"
)

const (
	// DirectChatsDir holds the media and raw log of every one-to-one chat.
	DirectChatsDir = "direct_chats"
	// ChannelsDir holds one directory per group or channel id.
	ChannelsDir = "channels"

	// DirectChatsSlug is the conversation slug recorded for direct chats.
	DirectChatsSlug = "direct_chats"

	directLogName = "log.txt"
	groupLogExt   = ".log.txt"
)

// ErrMalformedEvent is returned for an event whose sender or destination
// cannot be resolved from the directory it was delivered with.
var ErrMalformedEvent = errors.New("malformed event")

// Outcome is the terminal state an event reached.
type Outcome int

const (
	OutcomeDone Outcome = iota
	// OutcomeRejected: the conversation kind is not mined at all.
	OutcomeRejected
	// OutcomeFilteredOut: a filter chain rejected the event.
	OutcomeFilteredOut
	// OutcomeDropped: nothing to record, or the event could not be processed.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFilteredOut:
		return "filtered_out"
	case OutcomeDropped:
		return "dropped"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Indexer commits one record. *index.Writer implements it.
type Indexer interface {
	Append(ctx context.Context, rec index.Record) error
}

// Options is the compiled, immutable configuration of a Pipeline.
type Options struct {
	DataDir         string
	TimestampFormat string
	WriteRawLogs    bool
	ChatStdout      bool
	LogDirectChats  bool
	LogGroupChats   bool
	Filters         *filter.Policy
	Media           *media.Policy
}

// OptionsFromConfig compiles cfg. Errors wrap config.ErrConfig.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	filters, err := cfg.FilterPolicy()
	if err != nil {
		return Options{}, err
	}
	mp, err := cfg.MediaPolicy()
	if err != nil {
		return Options{}, err
	}
	return Options{
		DataDir:         cfg.DataDir,
		TimestampFormat: cfg.TimestampFormat,
		WriteRawLogs:    cfg.WriteRawLogs,
		ChatStdout:      cfg.ChatStdout,
		LogDirectChats:  cfg.LogDirectChats,
		LogGroupChats:   cfg.LogGroupChats,
		Filters:         filters,
		Media:           mp,
	}, nil
}

// Pipeline runs every event through classification, filtering, media
// resolution, indexing and raw logging. It is safe for concurrent use.
type Pipeline struct {
	opts     Options
	resolver *media.Resolver
	indexer  Indexer
	metrics  *Metrics

	// dirs remembers conversation directories already created.
	dirs *cache.Cache

	logMu  sync.Mutex
	stdout io.Writer

	now func() time.Time
}

// New compiles cfg and builds a pipeline writing through indexer and
// fetching media with fetcher.
func New(cfg *config.Config, indexer Indexer, fetcher media.Fetcher) (*Pipeline, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(opts, indexer, fetcher), nil
}

func NewWithOptions(opts Options, indexer Indexer, fetcher media.Fetcher) *Pipeline {
	if opts.Filters == nil {
		opts.Filters = &filter.Policy{}
	}
	if opts.Media == nil {
		opts.Media = media.NewPolicy(nil)
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = config.DefaultTimestampFormat
	}
	return &Pipeline{
		opts:     opts,
		resolver: media.NewResolver(opts.Media, fetcher),
		indexer:  indexer,
		metrics:  NewMetrics(),
		dirs:     cache.New(30*time.Minute, 10*time.Minute),
		stdout:   os.Stdout,
		now:      time.Now,
	}
}

// SetOutput redirects the console echo enabled by chat_stdout.
func (p *Pipeline) SetOutput(w io.Writer) { p.stdout = w }

// SetClock replaces the clock used for events without a date.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// conversation is the classified destination of an event.
type conversation struct {
	kind    bus.PeerKind
	sender  bus.Identity
	to      *bus.Identity
	toID    int64
	slug    string
	dir     string
	logFile string
	fields  filter.Fields
}

// Handle processes one event. Index and raw log failures are logged and
// counted without failing the event; an error is returned only when the
// event was dropped because it could not be processed.
func (p *Pipeline) Handle(ctx context.Context, ev bus.Event) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		p.metrics.Events.WithLabelValues(out.String()).Inc()
		p.metrics.HandleDuration.Observe(time.Since(start).Seconds())
	}()

	if !p.kindEnabled(ev.Peer.Kind) {
		return OutcomeRejected, nil
	}

	conv, err := p.classify(ev)
	if err != nil {
		return OutcomeDropped, err
	}

	senderFields := filter.SenderFields(conv.sender.Username, identity.Alias(conv.sender), conv.sender.ID)
	reject, err := p.opts.Filters.Rejects(conv.kind, conv.fields, senderFields)
	if err != nil {
		return OutcomeFilteredOut, fmt.Errorf("apply filters: %w", err)
	}
	if reject {
		return OutcomeFilteredOut, nil
	}

	hasMedia := ev.Media != nil && media.Supported(ev.Media.Kind)
	if ev.Text == "" && !hasMedia {
		return OutcomeDropped, nil
	}

	if p.opts.WriteRawLogs || p.opts.Media.AnyDownload() {
		if err := p.ensureDir(conv.dir); err != nil {
			return OutcomeDropped, err
		}
	}

	logName := identity.LogName(conv.sender)
	var summary string
	if hasMedia {
		d, err := p.resolver.Resolve(ctx, ev.Media, conv.dir)
		p.metrics.Media.WithLabelValues(ev.Media.Kind.String(), d.Disposition.String()).Inc()
		if err != nil {
			p.dirs.Delete(conv.dir)
			return OutcomeDropped, fmt.Errorf("resolve %s: %w", ev.Media.Kind, err)
		}
		summary = d.Summary()
	}

	ts := ev.Date
	if ts.IsZero() {
		ts = p.now()
	}

	rec := index.Record{
		Kind:      string(conv.kind),
		FromID:    strconv.FormatInt(conv.sender.ID, 10),
		Username:  conv.sender.Username,
		Alias:     identity.Alias(conv.sender),
		ToID:      strconv.FormatInt(conv.toID, 10),
		Chat:      conv.slug,
		Media:     summary,
		Message:   ev.Text,
		Timestamp: ts,
	}
	if conv.to != nil {
		rec.ToUsername = conv.to.Username
		rec.ToAlias = identity.Alias(*conv.to)
	}

	if err := p.indexer.Append(ctx, rec); err != nil {
		p.metrics.IndexErrors.Inc()
		logger.ErrorCF("miner", "Index commit failed", map[string]any{
			"chat":  conv.slug,
			"to_id": conv.toID,
			"error": err.Error(),
		})
	}

	var toPart string
	if conv.to != nil {
		toPart = " to " + identity.LogName(*conv.to)
	}
	line := FormatLine(ts.Format(p.opts.TimestampFormat), conv.slug, rec.ToID, toPart, ShortEntry(logName, summary, ev.Text))
	p.emit(conv, line)

	return OutcomeDone, nil
}

// ShortEntry is "<log name>: <text>", or for media
// "<log name>: <summary>[ Caption: <text>]".
func ShortEntry(logName, mediaSummary, text string) string {
	if mediaSummary == "" {
		return logName + ": " + text
	}
	if text == "" {
		return logName + ": " + mediaSummary
	}
	return logName + ": " + mediaSummary + " Caption: " + text
}

// FormatLine renders one raw log line. toPart is empty or " to <log name>".
func FormatLine(timestamp, slug, toID, toPart, short string) string {
	return fmt.Sprintf(`%s chat="%s" to_id="%s"%s | %s`, timestamp, slug, toID, toPart, short)
}

func (p *Pipeline) kindEnabled(kind bus.PeerKind) bool {
	switch kind {
	case bus.PeerDirect:
		return p.opts.LogDirectChats
	case bus.PeerGroup, bus.PeerChannel:
		return p.opts.LogGroupChats
	default:
		// Unknown kinds are reported by classify.
		return true
	}
}

func (p *Pipeline) classify(ev bus.Event) (conversation, error) {
	sender, ok := ev.Directory.Users[ev.SenderID]
	if !ok {
		return conversation{}, fmt.Errorf("%w: sender %d not in directory", ErrMalformedEvent, ev.SenderID)
	}

	conv := conversation{kind: ev.Peer.Kind, sender: sender, toID: ev.Peer.ID}

	switch ev.Peer.Kind {
	case bus.PeerDirect:
		to, ok := ev.Directory.Users[ev.Peer.ID]
		if !ok {
			return conversation{}, fmt.Errorf("%w: recipient %d not in directory", ErrMalformedEvent, ev.Peer.ID)
		}
		conv.to = &to
		conv.slug = DirectChatsSlug
		conv.dir = filepath.Join(p.opts.DataDir, DirectChatsDir)
		conv.logFile = directLogName
		conv.fields = filter.SenderFields(sender.Username, identity.Alias(sender), sender.ID)

	case bus.PeerGroup, bus.PeerChannel:
		chat, ok := ev.Directory.Chats[ev.Peer.ID]
		if !ok {
			return conversation{}, fmt.Errorf("%w: chat %d not in directory", ErrMalformedEvent, ev.Peer.ID)
		}
		conv.slug = identity.Slug(chat.Title)
		if conv.slug == "" {
			conv.slug = strconv.FormatInt(chat.ID, 10)
		}
		conv.dir = filepath.Join(p.opts.DataDir, ChannelsDir, strconv.FormatInt(chat.ID, 10))
		conv.logFile = conv.slug + groupLogExt
		conv.fields = filter.GroupFields(chat.Title, conv.slug, chat.ID,
			sender.Username, identity.Alias(sender), sender.ID)

	default:
		return conversation{}, fmt.Errorf("%w: unknown conversation kind %q", ErrMalformedEvent, ev.Peer.Kind)
	}

	return conv, nil
}

func (p *Pipeline) ensureDir(dir string) error {
	if _, ok := p.dirs.Get(dir); ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	p.dirs.SetDefault(dir, struct{}{})
	return nil
}

func (p *Pipeline) emit(conv conversation, line string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	if p.opts.ChatStdout && p.stdout != nil {
		fmt.Fprintln(p.stdout, line)
	}
	if !p.opts.WriteRawLogs {
		return
	}

	path := filepath.Join(conv.dir, conv.logFile)
	err := appendLine(path, line)
	if err != nil {
		// The directory may have been removed since it was cached.
		p.dirs.Delete(conv.dir)
		if p.ensureDir(conv.dir) == nil {
			err = appendLine(path, line)
		}
	}
	if err != nil {
		p.metrics.RawLogErrors.Inc()
		logger.ErrorCF("miner", "Raw log append failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
