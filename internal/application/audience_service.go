package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/resource-scheduler/internal/cache"
	"github.com/example/resource-scheduler/internal/persistence"
)

// AudienceService manages the two-level audience hierarchy and resolves audiences
// into the users they contain.
type AudienceService struct {
	audiences   persistence.AudienceRepository
	members     cache.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	// generation counts invalidations. A read that raced one is not cached.
	cacheMu    sync.Mutex
	generation uint64
}

// NewAudienceService wires dependencies for audience operations. A nil store disables
// membership caching.
func NewAudienceService(audiences persistence.AudienceRepository, members cache.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AudienceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AudienceService{
		audiences:   audiences,
		members:     members,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AudienceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AudienceService", operation, attrs...)
}

// CreateAudience validates input and stores a new audience for administrators.
func (s *AudienceService) CreateAudience(ctx context.Context, principal Principal, input AudienceInput) (audience persistence.Audience, err error) {
	if s == nil {
		err = fmt.Errorf("AudienceService is nil")
		return
	}
	if s.audiences == nil {
		err = fmt.Errorf("audience repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateAudience", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create audience", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("audience_id", audience.ID).InfoContext(ctx, "audience created")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := validateInput(input)
	parentID := normalizeOptionalString(input.ParentID)
	if !vErr.HasErrors() {
		vErr.merge(s.checkParent(ctx, parentID, ""))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	audience = persistence.Audience{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		Color:     strings.TrimSpace(input.Color),
		ParentID:  parentID,
		Status:    persistence.StatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	if err = s.audiences.CreateAudience(ctx, audience); err != nil {
		err = mapAudienceRepoError(err)
		return
	}
	s.invalidate(ctx, logger)
	return
}

// UpdateAudience renames, recolors or re-parents an audience. An audience that
// already has children cannot be placed under a parent.
func (s *AudienceService) UpdateAudience(ctx context.Context, principal Principal, audienceID string, input AudienceInput) (audience persistence.Audience, err error) {
	if s == nil {
		err = fmt.Errorf("AudienceService is nil")
		return
	}
	if s.audiences == nil {
		err = fmt.Errorf("audience repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAudience",
		"principal_id", principal.UserID,
		"audience_id", audienceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update audience", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "audience updated")
	}()

	if !principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	var existing persistence.Audience
	existing, err = s.audiences.GetAudience(ctx, audienceID)
	if err != nil {
		err = mapAudienceRepoError(err)
		return
	}

	vErr := validateInput(input)
	parentID := normalizeOptionalString(input.ParentID)
	if !vErr.HasErrors() && parentID != nil {
		vErr.merge(s.checkParent(ctx, parentID, audienceID))
		if !vErr.HasErrors() {
			var children []persistence.Audience
			children, err = s.audiences.ListChildren(ctx, audienceID)
			if err != nil {
				return
			}
			if len(children) > 0 {
				vErr.add("parent_id", "an audience with children cannot have a parent")
			}
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	audience = existing
	audience.Name = strings.TrimSpace(input.Name)
	audience.Color = strings.TrimSpace(input.Color)
	audience.ParentID = parentID
	audience.UpdatedAt = s.now()

	if err = s.audiences.UpdateAudience(ctx, audience); err != nil {
		err = mapAudienceRepoError(err)
		return
	}
	s.invalidate(ctx, logger)
	return
}

// DeleteAudience deactivates an audience. Its rows stay in place so bookings that
// reference it keep their history.
func (s *AudienceService) DeleteAudience(ctx context.Context, principal Principal, audienceID string) (err error) {
	if s == nil {
		return fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return fmt.Errorf("audience repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteAudience",
		"principal_id", principal.UserID,
		"audience_id", audienceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete audience", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "audience deactivated")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}

	existing, err := s.audiences.GetAudience(ctx, audienceID)
	if err != nil {
		return mapAudienceRepoError(err)
	}
	if existing.Status == persistence.StatusInactive {
		return nil
	}

	existing.Status = persistence.StatusInactive
	existing.UpdatedAt = s.now()
	if err = s.audiences.UpdateAudience(ctx, existing); err != nil {
		return mapAudienceRepoError(err)
	}
	s.invalidate(ctx, logger)
	return nil
}

// PurgeAudience removes an audience and its memberships for good. It refuses while
// the audience has children or is attached to any booking.
func (s *AudienceService) PurgeAudience(ctx context.Context, principal Principal, audienceID string) (err error) {
	if s == nil {
		return fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return fmt.Errorf("audience repository not configured")
	}

	logger := s.loggerWith(ctx, "PurgeAudience",
		"principal_id", principal.UserID,
		"audience_id", audienceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to purge audience", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "audience purged")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}

	if _, err = s.audiences.GetAudience(ctx, audienceID); err != nil {
		return mapAudienceRepoError(err)
	}

	children, err := s.audiences.ListChildren(ctx, audienceID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: audience has %d child audiences", ErrReferenced, len(children))
	}

	inUse, err := s.audiences.AudienceInUse(ctx, audienceID)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: audience is attached to bookings", ErrReferenced)
	}

	if err = s.audiences.DeleteAudience(ctx, audienceID); err != nil {
		return mapAudienceRepoError(err)
	}
	s.invalidate(ctx, logger)
	return nil
}

// GetAudience returns a single audience.
func (s *AudienceService) GetAudience(ctx context.Context, audienceID string) (persistence.Audience, error) {
	if s == nil {
		return persistence.Audience{}, fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return persistence.Audience{}, fmt.Errorf("audience repository not configured")
	}
	audience, err := s.audiences.GetAudience(ctx, audienceID)
	if err != nil {
		return persistence.Audience{}, mapAudienceRepoError(err)
	}
	return audience, nil
}

// ListAudiences returns every audience, parents and children alike.
func (s *AudienceService) ListAudiences(ctx context.Context) ([]persistence.Audience, error) {
	if s == nil {
		return nil, fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return nil, nil
	}
	return s.audiences.ListAudiences(ctx)
}

// AddMember adds a user to an audience.
func (s *AudienceService) AddMember(ctx context.Context, principal Principal, audienceID, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return fmt.Errorf("audience repository not configured")
	}

	logger := s.loggerWith(ctx, "AddMember",
		"principal_id", principal.UserID,
		"audience_id", audienceID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add audience member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "audience member added")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user_id is required")
		return vErr
	}

	if _, err = s.audiences.GetAudience(ctx, audienceID); err != nil {
		return mapAudienceRepoError(err)
	}

	member := persistence.AudienceMember{AudienceID: audienceID, UserID: userID, CreatedAt: s.now()}
	if err = s.audiences.AddMember(ctx, member); err != nil {
		return mapAudienceRepoError(err)
	}
	s.invalidate(ctx, logger)
	return nil
}

// RemoveMember removes a user from an audience.
func (s *AudienceService) RemoveMember(ctx context.Context, principal Principal, audienceID, userID string) (err error) {
	if s == nil {
		return fmt.Errorf("AudienceService is nil")
	}
	if s.audiences == nil {
		return fmt.Errorf("audience repository not configured")
	}

	logger := s.loggerWith(ctx, "RemoveMember",
		"principal_id", principal.UserID,
		"audience_id", audienceID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove audience member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "audience member removed")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if err = s.audiences.RemoveMember(ctx, audienceID, userID); err != nil {
		return mapAudienceRepoError(err)
	}
	s.invalidate(ctx, logger)
	return nil
}

// ExpandMembers resolves audiences into the distinct, sorted user IDs they contain.
// Members of child audiences are included only when includeChildren is set; parents
// are never consulted. Audiences without members contribute nothing.
func (s *AudienceService) ExpandMembers(ctx context.Context, audienceIDs []string, includeChildren bool) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("AudienceService is nil")
	}
	ids := uniqueSorted(audienceIDs)
	if len(ids) == 0 || s.audiences == nil {
		return nil, nil
	}

	key := membersCacheKey(ids, includeChildren)
	if s.members != nil {
		cached, ok, err := s.members.Get(ctx, key)
		if err != nil {
			s.loggerWith(ctx, "ExpandMembers").WarnContext(ctx, "membership cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	generation := s.currentGeneration()
	users, err := s.audiences.ListMembers(ctx, ids, includeChildren)
	if err != nil {
		return nil, err
	}
	users = uniqueSorted(users)

	if s.members != nil {
		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		if s.generation != generation {
			return users, nil
		}
		if err := s.members.Set(ctx, key, users); err != nil {
			s.loggerWith(ctx, "ExpandMembers").WarnContext(ctx, "membership cache write failed", "error", err)
		}
	}
	return users, nil
}

// AffectedUsers is the union of the directly named users and the expanded audience members.
func (s *AudienceService) AffectedUsers(ctx context.Context, userIDs, audienceIDs []string, includeChildren bool) ([]string, error) {
	members, err := s.ExpandMembers(ctx, audienceIDs, includeChildren)
	if err != nil {
		return nil, err
	}
	combined := make([]string, 0, len(userIDs)+len(members))
	combined = append(combined, userIDs...)
	combined = append(combined, members...)
	return uniqueSorted(combined), nil
}

// checkParent enforces the two-level hierarchy for a prospective parent.
func (s *AudienceService) checkParent(ctx context.Context, parentID *string, selfID string) *ValidationError {
	vErr := &ValidationError{}
	if parentID == nil {
		return vErr
	}
	if *parentID == selfID {
		vErr.add("parent_id", "an audience cannot be its own parent")
		return vErr
	}

	parent, err := s.audiences.GetAudience(ctx, *parentID)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		vErr.add("parent_id", "parent audience does not exist")
	case err != nil:
		vErr.add("parent_id", "parent audience could not be loaded")
	case parent.Status != persistence.StatusActive:
		vErr.add("parent_id", "parent audience is inactive")
	case parent.ParentID != nil:
		vErr.add("parent_id", "parent audience is already a child; audiences are limited to two levels")
	}
	return vErr
}

func (s *AudienceService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

func (s *AudienceService) invalidate(ctx context.Context, logger *slog.Logger) {
	if s.members == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if err := s.members.Purge(ctx); err != nil {
		logger.WarnContext(ctx, "failed to purge membership cache", "error", err)
	}
}

func membersCacheKey(sortedIDs []string, includeChildren bool) string {
	scope := "direct"
	if includeChildren {
		scope = "children"
	}
	return scope + ":" + strings.Join(sortedIDs, ",")
}

func mapAudienceRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrHierarchyDepth):
		vErr := &ValidationError{}
		vErr.add("parent_id", "audiences are limited to two levels")
		return vErr
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", ErrReferenced, err)
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
