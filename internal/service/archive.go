package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/id"
	"github.com/buruapp/buru-server/internal/media"
	"github.com/buruapp/buru-server/internal/normalize"
	"github.com/buruapp/buru-server/internal/store"
	"github.com/buruapp/buru-server/internal/validation"
	"github.com/buruapp/buru-server/internal/worker"
)

// ArchiveState is a step of a single archive operation.
type ArchiveState int

// Archive states in the order an operation can pass through them.
const (
	StateReceived ArchiveState = iota
	StateHashing
	StateContentKnown
	StateContentNew
	StateExtractingMetadata
	StateMetadataOk
	StateUnsupportedMedia
	StatePersistingTransaction
	StateTagAssociationUpdate
	StateDone
)

var archiveStateNames = [...]string{
	StateReceived:              "received",
	StateHashing:               "hashing",
	StateContentKnown:          "content_known",
	StateContentNew:            "content_new",
	StateExtractingMetadata:    "extracting_metadata",
	StateMetadataOk:            "metadata_ok",
	StateUnsupportedMedia:      "unsupported_media",
	StatePersistingTransaction: "persisting_transaction",
	StateTagAssociationUpdate:  "tag_association_update",
	StateDone:                  "done",
}

func (s ArchiveState) String() string {
	if s < 0 || int(s) >= len(archiveStateNames) {
		return "unknown"
	}
	return archiveStateNames[s]
}

// ArchiveStore is the persistence the archive orchestrator needs.
type ArchiveStore interface {
	ImageExists(ctx context.Context, hash content.Hash) (bool, error)
	ArchiveImage(ctx context.Context, p store.ArchiveParams) (bool, error)
	GetImage(ctx context.Context, hash content.Hash) (domain.Media, error)
}

// ArchiveRequest is one piece of content to archive.
type ArchiveRequest struct {
	Data   []byte   `json:"-"`
	Tags   []string `json:"tags" validate:"max=64,dive,tagname"`
	Source string   `json:"source,omitempty" validate:"omitempty,max=2048"`
}

// ArchiveResult describes a finished archive operation.
type ArchiveResult struct {
	Media domain.Media
	// Created is false when the content was already archived.
	Created bool
	// States lists every state the operation entered, in order.
	States []ArchiveState
}

// ArchiveService runs the archive state machine: hash, branch on known
// content, extract metadata, persist rows and tags.
type ArchiveService struct {
	content   *content.Store
	store     ArchiveStore
	extractor *media.Extractor
	pool      *worker.Pool
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiveService creates a new archive service.
func NewArchiveService(
	contentStore *content.Store,
	archiveStore ArchiveStore,
	extractor *media.Extractor,
	pool *worker.Pool,
	logger *slog.Logger,
) *ArchiveService {
	return &ArchiveService{
		content:   contentStore,
		store:     archiveStore,
		extractor: extractor,
		pool:      pool,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// archiveRun tracks the states of one operation.
type archiveRun struct {
	op     string
	hash   content.Hash
	states []ArchiveState
	logger *slog.Logger
}

func (r *archiveRun) enter(s ArchiveState) {
	r.states = append(r.states, s)
	r.logger.Debug("archive state", "op", r.op, "state", s.String(), "hash", string(r.hash))
}

// Archive stores req.Data and associates req.Tags with it.
//
// Known content skips extraction and only gains the new tags and source;
// its original bytes are rewritten when missing from the content store. New content that cannot be probed fails with
// UNSUPPORTED_MEDIA and leaves nothing behind.
func (s *ArchiveService) Archive(ctx context.Context, req ArchiveRequest) (*ArchiveResult, error) {
	op, err := id.Operation("arc")
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate operation id")
	}
	run := &archiveRun{op: op, logger: s.logger}
	run.enter(StateReceived)

	// 1. Validate request
	if len(req.Data) == 0 {
		return nil, domainerrors.InvalidArgument("content cannot be empty")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	tags, err := normalize.Tags(req.Tags)
	if err != nil {
		return nil, domainerrors.InvalidArgument(err.Error())
	}

	// 2. Hash off the request goroutine
	run.enter(StateHashing)
	hash, err := worker.Do(ctx, s.pool, func() (content.Hash, error) {
		return content.Sum(req.Data), nil
	})
	if err != nil {
		return nil, err
	}
	run.hash = hash

	// 3. Known content only gains tags
	exists, err := s.store.ImageExists(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		run.enter(StateContentKnown)
		restored, err := s.content.Write(hash, req.Data)
		if err != nil {
			return nil, err
		}
		if restored {
			s.logger.Warn("restored missing original bytes", "op", op, "hash", string(hash))
		}
		run.enter(StateTagAssociationUpdate)
		_, err = s.store.ArchiveImage(ctx, store.ArchiveParams{Hash: hash, Source: req.Source, Tags: tags})
		switch {
		case err == nil:
			return s.finish(ctx, run, false, tags)
		case domainerrors.Is(err, domainerrors.ErrNotFound):
			// Deleted since the existence check; archive it as new.
			s.logger.Debug("known content vanished, archiving as new", "op", op, "hash", string(hash))
		default:
			return nil, err
		}
	}

	// 4. Extract metadata from new content
	run.enter(StateContentNew)
	run.enter(StateExtractingMetadata)
	sniffed := media.Sniff(req.Data)
	meta, err := worker.Do(ctx, s.pool, func() (domain.Metadata, error) {
		return s.extractor.Extract(ctx, req.Data, sniffed)
	})
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrUnsupportedMedia) {
			run.enter(StateUnsupportedMedia)
			s.logger.Info("content rejected", "op", op, "hash", string(hash), "mime", sniffed.MIME, "error", err)
		}
		return nil, err
	}
	meta.CreatedAt = s.now().UTC()
	run.enter(StateMetadataOk)

	// 5. Store bytes before any row references them
	if _, err := s.content.Write(hash, req.Data); err != nil {
		return nil, err
	}

	// 6. Image, metadata and tag links commit in one transaction
	run.enter(StatePersistingTransaction)
	run.enter(StateTagAssociationUpdate)
	created, err := s.store.ArchiveImage(ctx, store.ArchiveParams{
		Hash:     hash,
		Metadata: &meta,
		Source:   req.Source,
		Tags:     tags,
	})
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, run, created, tags)
}

func (s *ArchiveService) finish(ctx context.Context, run *archiveRun, created bool, tags []string) (*ArchiveResult, error) {
	m, err := s.store.GetImage(ctx, run.hash)
	if err != nil {
		return nil, err
	}
	run.enter(StateDone)

	s.logger.Info("content archived",
		"op", run.op,
		"hash", string(run.hash),
		"created", created,
		"format", m.Metadata.Format,
		"tags_added", len(tags),
	)

	return &ArchiveResult{Media: m, Created: created, States: run.states}, nil
}

// ArchiveFile reads path and archives its bytes.
func (s *ArchiveService) ArchiveFile(ctx context.Context, path string, tags []string, source string) (*ArchiveResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domainerrors.NotFoundf("file %s not found", path)
		}
		return nil, domainerrors.IO(err, "read "+path)
	}
	return s.Archive(ctx, ArchiveRequest{Data: data, Tags: tags, Source: source})
}
