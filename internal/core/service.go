package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/seace/internal/schema"
)

// Fixed export identity.
const (
	ExportFileName    = "procesos_validado.xlsx"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Export sinks, as recorded in the audit log.
const (
	SinkDownload = "download"
	SinkMail     = "mail"
	SinkArchive  = "archive"
)

// Parser reads an uploaded workbook. name is the client file name and picks
// the format.
type Parser interface {
	Parse(name string, data []byte) (*Table, error)
}

// Encoder writes a table as a workbook.
type Encoder interface {
	Encode(t *Table) ([]byte, error)
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one outgoing mail. An empty To means the transport's configured
// recipient.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment Attachment
}

// Receipt reports where a message went.
type Receipt struct {
	To string
}

// Transport delivers mail.
type Transport interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Archiver stores exported workbooks and returns a shareable link.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// ExportEvent is one completed export.
type ExportEvent struct {
	SessionID string
	Sink      string
	FileName  string // uploaded file the export came from
	Profile   string
	Recipient string
	Rows      int
	IPAddress string
	UserAgent string
	At        time.Time
}

// Recorder keeps an audit trail of exports.
type Recorder interface {
	Record(ctx context.Context, ev ExportEvent) error
}

// Deps are the collaborators of a Service. Transport, Archiver and Recorder
// are optional.
type Deps struct {
	Rules       *schema.Rules
	Parser      Parser
	Encoder     Encoder
	Transport   Transport
	Archiver    Archiver
	Recorder    Recorder
	Limiter     *UploadLimiter
	MaxFileSize int64
}

// Service runs the validation pipeline and the export sinks.
type Service struct {
	rules       *schema.Rules
	parser      Parser
	encoder     Encoder
	transport   Transport
	archiver    Archiver
	recorder    Recorder
	limiter     *UploadLimiter
	maxFileSize int64
	now         func() time.Time
}

// NewService wires a Service. Rules, Parser and Encoder are required.
func NewService(d Deps) (*Service, error) {
	if d.Rules == nil || d.Parser == nil || d.Encoder == nil {
		return nil, fmt.Errorf("new service: rules, parser and encoder are required")
	}
	if d.Limiter == nil {
		d.Limiter = NewUploadLimiter(0, 0)
	}
	return &Service{
		rules:       d.Rules,
		parser:      d.Parser,
		encoder:     d.Encoder,
		transport:   d.Transport,
		archiver:    d.Archiver,
		recorder:    d.Recorder,
		limiter:     d.Limiter,
		maxFileSize: d.MaxFileSize,
		now:         time.Now,
	}, nil
}

// Rules returns the loaded header profiles.
func (s *Service) Rules() *schema.Rules { return s.rules }

// Limiter returns the parse limiter.
func (s *Service) Limiter() *UploadLimiter { return s.limiter }

// ArchiveEnabled reports whether an archive store is configured.
func (s *Service) ArchiveEnabled() bool { return s.archiver != nil }

// Profile resolves a profile name; "" selects the default.
func (s *Service) Profile(name string) (*schema.Profile, error) {
	p, ok := s.rules.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// Ingest parses, maps, validates and coerces an upload.
// Parse and missing-column failures are returned as *Error and halt here.
func (s *Service) Ingest(ctx context.Context, fileName string, data []byte, profile string) (*Dataset, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.maxFileSize)
	}

	p, err := s.Profile(profile)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	table, err := s.parser.Parse(fileName, data)
	s.limiter.Release()
	if err != nil {
		return nil, parseErr("parse "+fileName, err)
	}

	headers := MapHeaders(table, p)
	for _, c := range headers.Conflicts {
		slog.Warn("header collision",
			"file", fileName,
			"canonical", c.Canonical,
			"kept", c.KeptBy,
			"renamed", c.Renamed,
		)
	}

	report, err := Validate(table, p)
	report.Headers = headers
	if err != nil {
		slog.Info("upload rejected",
			"file", fileName,
			"profile", p.Name,
			"missing", report.Missing,
		)
		return nil, err
	}

	dates, err := CoerceDates(table, p.Fields.Date)
	if err != nil {
		return nil, err
	}

	slog.Info("upload validated",
		"file", fileName,
		"profile", p.Name,
		"rows", table.Len(),
		"columns", len(table.Columns),
		"renamed", len(headers.Renames),
		"invalid_dates", dates.Invalid,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return NewDataset(fileName, table, p, report, dates), nil
}

// Export filters ds and encodes the result.
func (s *Service) Export(ds *Dataset, c Criteria) (*Table, []byte, error) {
	t := ds.Filter(c)
	data, err := s.encoder.Encode(t)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", ExportFileName, err)
	}
	return t, data, nil
}

// Download exports the session's filtered table for the download sink.
func (s *Service) Download(ctx context.Context, sess *Session, c Criteria) ([]byte, error) {
	ds := sess.Dataset()
	if ds == nil {
		return nil, ErrNoDataset
	}
	t, data, err := s.Export(ds, c)
	if err != nil {
		return nil, err
	}
	s.record(ctx, sess, ds, SinkDownload, "", t.Len())
	return data, nil
}

// MailRequest is the submitted mail form.
type MailRequest struct {
	Token    string
	To       string
	Subject  string
	Body     string
	Criteria Criteria
}

// MailResult describes a delivered message.
type MailResult struct {
	To   string
	Rows int
}

// PlausibleAddress is the only recipient check made before delivery.
func PlausibleAddress(addr string) bool {
	return strings.Contains(strings.TrimSpace(addr), "@")
}

// SendMail delivers the filtered workbook. The recipient is checked before
// the form token is consumed, so an invalid address can be corrected and
// resubmitted. Delivery is attempted once.
func (s *Service) SendMail(ctx context.Context, sess *Session, req MailRequest) (MailResult, error) {
	ds := sess.Dataset()
	if ds == nil {
		return MailResult{}, ErrNoDataset
	}
	rules := ds.Profile.Mail

	msg := Message{
		Subject: rules.Subject,
		Body:    rules.Body,
	}
	if rules.Recipient == schema.RecipientForm {
		to := strings.TrimSpace(req.To)
		if !PlausibleAddress(to) {
			return MailResult{}, &Error{
				Kind: InvalidRecipientError,
				Op:   "send mail",
				Err:  fmt.Errorf("recipient %q has no @", to),
			}
		}
		msg.To = to
	}
	if !rules.FixedMessage {
		if v := strings.TrimSpace(req.Subject); v != "" {
			msg.Subject = v
		}
		if v := strings.TrimSpace(req.Body); v != "" {
			msg.Body = req.Body
		}
	}

	if s.transport == nil {
		return MailResult{}, transportErr("send mail", fmt.Errorf("mail transport is not configured"))
	}
	if err := sess.beginSend(req.Token); err != nil {
		return MailResult{}, err
	}

	t, data, err := s.Export(ds, req.Criteria)
	if err != nil {
		sess.finishSend("", s.now(), err)
		return MailResult{}, err
	}
	msg.Attachment = Attachment{Name: ExportFileName, ContentType: ExportContentType, Data: data}

	receipt, err := s.transport.Send(ctx, msg)
	sess.finishSend(receipt.To, s.now(), err)
	if err != nil {
		if kind, _ := KindOf(err); kind == InvalidRecipientError {
			slog.Warn("mail recipient rejected", "session", sess.ID, "error", err)
			return MailResult{}, err
		}
		slog.Error("mail delivery failed", "session", sess.ID, "error", err)
		return MailResult{}, transportErr("send mail", err)
	}

	slog.Info("mail sent", "session", sess.ID, "to", receipt.To, "rows", t.Len())
	s.record(ctx, sess, ds, SinkMail, receipt.To, t.Len())
	return MailResult{To: receipt.To, Rows: t.Len()}, nil
}

// ArchiveResult locates an archived workbook.
type ArchiveResult struct {
	Key  string
	URL  string
	Rows int
}

// Archive stores the filtered workbook in the object store.
func (s *Service) Archive(ctx context.Context, sess *Session, c Criteria) (ArchiveResult, error) {
	if s.archiver == nil {
		return ArchiveResult{}, ErrArchiveDisabled
	}
	ds := sess.Dataset()
	if ds == nil {
		return ArchiveResult{}, ErrNoDataset
	}

	t, data, err := s.Export(ds, c)
	if err != nil {
		return ArchiveResult{}, err
	}

	key := ArchiveKey(sess.ID, s.now())
	url, err := s.archiver.Put(ctx, key, data)
	if err != nil {
		slog.Error("archive failed", "session", sess.ID, "key", key, "error", err)
		return ArchiveResult{}, transportErr("archive", err)
	}

	slog.Info("workbook archived", "session", sess.ID, "key", key, "rows", t.Len())
	s.record(ctx, sess, ds, SinkArchive, key, t.Len())
	return ArchiveResult{Key: key, URL: url, Rows: t.Len()}, nil
}

// ArchiveKey names an archived export: date prefix, session, fixed file name.
func ArchiveKey(sessionID string, at time.Time) string {
	return fmt.Sprintf("%s/%s-%s-%s",
		at.UTC().Format("2006/01/02"),
		at.UTC().Format("150405"),
		sessionID,
		ExportFileName,
	)
}

// record writes an audit event. Failures are logged and never fail the export.
func (s *Service) record(ctx context.Context, sess *Session, ds *Dataset, sink, recipient string, rows int) {
	if s.recorder == nil {
		return
	}
	ip, ua := ClientFromContext(ctx)
	ev := ExportEvent{
		SessionID: sess.ID,
		Sink:      sink,
		FileName:  ds.FileName,
		Profile:   ds.Profile.Name,
		Recipient: recipient,
		Rows:      rows,
		IPAddress: ip,
		UserAgent: ua,
		At:        s.now(),
	}
	if err := s.recorder.Record(ctx, ev); err != nil {
		slog.Warn("audit record failed", "sink", sink, "session", sess.ID, "error", err)
	}
}
