package analyses

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/imageproof/internal/application"
	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// Service implements the record store use-cases on behalf of an
// authenticated caller. An empty caller means the request is unauthenticated.
// Service is safe for concurrent use as long as its ports are.
type Service struct {
	Repo   domain.Repository
	Blobs  domain.BlobStore
	Queue  domain.Dispatcher
	Events domain.Publisher
	Clock  application.Clock
}

// List returns every record of the caller, newest first.
func (s *Service) List(ctx context.Context, caller string) ([]*domain.Analysis, error) {
	if caller == "" {
		return []*domain.Analysis{}, nil
	}
	list, err := s.Repo.ListByOwner(ctx, caller, 0)
	if err != nil {
		return nil, eris.Wrap(err, "list analyses")
	}
	return nonNil(list), nil
}

// Recent returns the caller's newest records, truncated to limit.
func (s *Service) Recent(ctx context.Context, caller string, limit int) ([]*domain.Analysis, error) {
	if caller == "" {
		return []*domain.Analysis{}, nil
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	list, err := s.Repo.ListByOwner(ctx, caller, limit)
	if err != nil {
		return nil, eris.Wrap(err, "recent analyses")
	}
	return nonNil(list), nil
}

// Stats counts terminal records only; PENDING rows are reported separately.
func (s *Service) Stats(ctx context.Context, caller string) (domain.Stats, error) {
	if caller == "" {
		return domain.Stats{}, nil
	}
	st, err := s.Repo.StatsByOwner(ctx, caller)
	if err != nil {
		return domain.Stats{}, eris.Wrap(err, "analysis stats")
	}
	return st, nil
}

// IssueUploadTarget hands out a place to upload image bytes to.
func (s *Service) IssueUploadTarget(ctx context.Context, caller string) (domain.UploadTarget, error) {
	if caller == "" {
		return domain.UploadTarget{}, domain.ErrUnauthenticated
	}
	target, err := s.Blobs.IssueUploadTarget(ctx, caller)
	if err != nil {
		return domain.UploadTarget{}, eris.Wrap(err, "issue upload target")
	}
	return target, nil
}

// Create records a PENDING analysis for an uploaded blob.
func (s *Service) Create(ctx context.Context, caller, storageID, filename string) (domain.AnalysisID, error) {
	if caller == "" {
		return "", domain.ErrUnauthenticated
	}
	storageID = strings.TrimSpace(storageID)
	filename = strings.TrimSpace(filename)
	if storageID == "" || filename == "" {
		return "", eris.Wrap(domain.ErrInvalidInput, "storage_id and filename are required")
	}
	// blobs outside the caller's namespace are treated as unresolvable
	if !domain.OwnsStorageID(caller, storageID) {
		return "", eris.Wrapf(domain.ErrNotFound, "blob %s", storageID)
	}

	url, err := s.Blobs.ResolveURL(ctx, storageID)
	if err != nil {
		return "", eris.Wrapf(err, "resolve blob %s", storageID)
	}

	id, err := domain.NewAnalysisID()
	if err != nil {
		return "", eris.Wrap(err, "mint analysis id")
	}
	a := domain.NewPending(id, caller, url, storageID, filename, s.Clock.Now())
	if err := s.Repo.Insert(ctx, a); err != nil {
		return "", eris.Wrap(err, "insert analysis")
	}

	zap.L().Info("analysis created",
		zap.String("id", string(a.ID)),
		zap.String("owner", caller),
		zap.String("filename", filename),
	)
	s.publish(ctx, domain.EventCreated, a)
	return a.ID, nil
}

// Get returns one record owned by the caller.
func (s *Service) Get(ctx context.Context, caller string, id domain.AnalysisID) (*domain.Analysis, error) {
	if caller == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.owned(ctx, caller, id)
}

// TriggerScoring enqueues the scoring task and returns without waiting for it.
func (s *Service) TriggerScoring(ctx context.Context, caller string, id domain.AnalysisID) error {
	if caller == "" {
		return domain.ErrUnauthenticated
	}
	a, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	if !a.Pending() {
		return eris.Wrapf(domain.ErrAlreadyScored, "analysis %s", id)
	}
	if err := s.Queue.Enqueue(ctx, domain.Task{AnalysisID: id}); err != nil {
		return eris.Wrapf(err, "enqueue scoring for %s", id)
	}
	zap.L().Debug("scoring queued", zap.String("id", string(id)))
	return nil
}

// Delete removes the blob first and only then the record, so a failed blob
// delete leaves everything in place.
func (s *Service) Delete(ctx context.Context, caller string, id domain.AnalysisID) error {
	if caller == "" {
		return domain.ErrUnauthenticated
	}
	a, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	if a.StorageID != "" {
		if err := s.Blobs.Delete(ctx, a.StorageID); err != nil {
			return eris.Wrapf(err, "delete blob %s", a.StorageID)
		}
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return eris.Wrapf(err, "delete analysis %s", id)
	}

	zap.L().Info("analysis deleted", zap.String("id", string(id)), zap.String("owner", caller))
	s.publish(ctx, domain.EventDeleted, &domain.Analysis{ID: id, OwnerID: caller})
	return nil
}

func (s *Service) owned(ctx context.Context, caller string, id domain.AnalysisID) (*domain.Analysis, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "get analysis %s", id)
	}
	if a.OwnerID != caller {
		return nil, eris.Wrapf(domain.ErrUnauthorized, "analysis %s", id)
	}
	return a, nil
}

func (s *Service) publish(ctx context.Context, typ domain.EventType, a *domain.Analysis) {
	if s.Events == nil {
		return
	}
	ev := domain.Event{Type: typ, OwnerID: a.OwnerID, AnalysisID: a.ID, At: s.Clock.Now()}
	if typ != domain.EventDeleted {
		ev.Analysis = a
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		zap.L().Warn("publish analysis event failed",
			zap.String("type", string(typ)),
			zap.String("id", string(a.ID)),
			zap.Error(err),
		)
	}
}

func nonNil(list []*domain.Analysis) []*domain.Analysis {
	if list == nil {
		return []*domain.Analysis{}
	}
	return list
}
