package service

import (
	"context"
	"errors"
	"strings"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
)

// cycleWalkLimit bounds the ancestor walk used to refuse referral cycles.
const cycleWalkLimit = 64

type attachmentService struct {
	userRepo                repository.UserRepository
	tree                    ReferralTreeService
	invites                 InviteService
	rejectInactiveReferrers bool
	metrics                 *metrics.Metrics
}

// NewAttachmentService wires user creation and write-once attachments.
// invites may be nil, in which case sign-ups do not convert invites.
func NewAttachmentService(userRepo repository.UserRepository, tree ReferralTreeService, invites InviteService, rejectInactiveReferrers bool, m *metrics.Metrics) AttachmentService {
	return &attachmentService{
		userRepo:                userRepo,
		tree:                    tree,
		invites:                 invites,
		rejectInactiveReferrers: rejectInactiveReferrers,
		metrics:                 m,
	}
}

func (s *attachmentService) resolveReferrer(ctx context.Context, code string) (*domain.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	referrer, err := s.userRepo.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, notFound(err, "referral code %q not found", code)
	}
	if !referrer.IsActive && s.rejectInactiveReferrers {
		return nil, domain.NotFoundError("referral code %q not found", code)
	}
	return referrer, nil
}

// create inserts the user with its edges already set, retrying when the
// generated referral code collides.
func (s *attachmentService) create(ctx context.Context, in RegistrationInput, referrer *domain.User, coordinatorID *int32) (*domain.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, domain.ValidationError("unknown role %q", in.Role)
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:          strings.TrimSpace(in.Name),
		Email:         normalizeEmail(in.Email),
		PasswordHash:  hash,
		Role:          in.Role,
		IsActive:      true,
		CoordinatorID: coordinatorID,
	}
	if referrer != nil {
		id := referrer.ID
		user.ReferredByID = &id
		if coordinatorID == nil && referrer.Role == domain.RoleCoordinator && in.Role == domain.RoleAffiliate {
			user.CoordinatorID = &id
		}
	}

	for attempt := 1; ; attempt++ {
		if user.ReferralCode, err = generateReferralCode(); err != nil {
			return nil, err
		}
		err = s.userRepo.Create(ctx, user)
		if !errors.Is(err, repository.ErrReferralCodeTaken) || attempt == referralCodeAttempts {
			break
		}
		logger.DebugContext(ctx, "Referral code collision, regenerating", "attempt", attempt)
	}
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return nil, domain.ValidationError("email %s is already registered", user.Email)
	case err != nil:
		return nil, err
	}

	s.metrics.RecordUserRegistered(string(user.Role))
	logger.Event(ctx, "user_created", "userID", user.ID, "role", user.Role,
		"hasReferrer", user.HasReferrer(), "hasCoordinator", user.HasCoordinator())
	return user, nil
}

func (s *attachmentService) Register(ctx context.Context, in RegistrationInput) (*domain.User, error) {
	logger.EnterMethod("attachmentService.Register", "email", in.Email)

	if in.Role == "" {
		in.Role = domain.RoleAffiliate
	}
	if in.Role != domain.RoleAffiliate && in.Role != domain.RoleClient {
		err := domain.ValidationError("role %q cannot self-register", in.Role)
		logger.ExitMethodWithError("attachmentService.Register", err)
		return nil, err
	}

	user, err := s.createWithCode(ctx, in)
	if err != nil {
		logger.ExitMethodWithError("attachmentService.Register", err, "email", in.Email)
		return nil, err
	}

	if user.ReferredByID != nil && s.invites != nil {
		_, err := s.invites.MarkConverted(ctx, *user.ReferredByID, user.Email, user.ID, nil)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "Failed to convert invite", "userID", user.ID, "error", err)
		}
	}

	logger.ExitMethod("attachmentService.Register", "userID", user.ID)
	return user, nil
}

func (s *attachmentService) CreateUser(ctx context.Context, in RegistrationInput) (*domain.User, error) {
	return s.createWithCode(ctx, in)
}

func (s *attachmentService) createWithCode(ctx context.Context, in RegistrationInput) (*domain.User, error) {
	var referrer *domain.User
	if strings.TrimSpace(in.ReferralCode) != "" {
		r, err := s.resolveReferrer(ctx, in.ReferralCode)
		if err != nil {
			return nil, err
		}
		referrer = r
	}
	return s.create(ctx, in, referrer, nil)
}

// compareAndSet retries a write-once update once on a serialization failure
// and reports a lost race as a conflict.
func (s *attachmentService) compareAndSet(ctx context.Context, kind string, fn func() error) error {
	err := fn()
	if errors.Is(err, repository.ErrConcurrentUpdate) {
		logger.DebugContext(ctx, "Attachment serialization failure, retrying", "kind", kind)
		err = fn()
	}
	switch {
	case errors.Is(err, repository.ErrAlreadySet), errors.Is(err, repository.ErrConcurrentUpdate):
		s.metrics.RecordAttachmentConflict(kind)
		return domain.ConflictError("%s is already assigned", kind)
	case errors.Is(err, repository.ErrNotFound):
		return domain.NotFoundError("user not found")
	}
	return err
}

func (s *attachmentService) AttachViaReferralCode(ctx context.Context, userID int32, code string) (*domain.User, error) {
	logger.EnterMethod("attachmentService.AttachViaReferralCode", "userID", userID)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %d not found", userID)
	}
	referrer, err := s.resolveReferrer(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer.ID == user.ID {
		return nil, domain.ValidationError("a user cannot refer themselves")
	}
	if user.HasReferrer() {
		s.metrics.RecordAttachmentConflict("referrer")
		return nil, domain.ConflictError("user %d already has a referrer", userID)
	}

	ancestors, err := s.tree.AncestorsOf(ctx, referrer.ID, cycleWalkLimit)
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		if a.ID == user.ID {
			return nil, domain.ConflictError("attaching user %d under %d would create a referral cycle", user.ID, referrer.ID)
		}
	}

	err = s.compareAndSet(ctx, "referrer", func() error {
		return s.userRepo.SetReferrer(ctx, user.ID, referrer.ID)
	})
	if err != nil {
		logger.ExitMethodWithError("attachmentService.AttachViaReferralCode", err, "userID", userID)
		return nil, err
	}

	logger.ExitMethod("attachmentService.AttachViaReferralCode", "userID", userID, "referrerID", referrer.ID)
	return s.userRepo.GetByID(ctx, user.ID)
}

func (s *attachmentService) coordinator(ctx context.Context, id int32) (*domain.User, error) {
	c, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "coordinator %d not found", id)
	}
	if c.Role != domain.RoleCoordinator {
		return nil, domain.ValidationError("user %d is not a coordinator", id)
	}
	return c, nil
}

func (s *attachmentService) AttachToCoordinator(ctx context.Context, affiliateID, coordinatorID int32) (*domain.User, error) {
	logger.EnterMethod("attachmentService.AttachToCoordinator", "affiliateID", affiliateID, "coordinatorID", coordinatorID)

	if _, err := s.coordinator(ctx, coordinatorID); err != nil {
		logger.ExitMethodWithError("attachmentService.AttachToCoordinator", err)
		return nil, err
	}
	affiliate, err := s.userRepo.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, notFound(err, "affiliate %d not found", affiliateID)
	}
	if affiliate.Role != domain.RoleAffiliate {
		return nil, domain.ValidationError("user %d is not an affiliate", affiliateID)
	}
	if affiliate.HasCoordinator() {
		s.metrics.RecordAttachmentConflict("coordinator")
		return nil, domain.ConflictError("affiliate %d is already assigned to coordinator %d", affiliateID, *affiliate.CoordinatorID)
	}

	err = s.compareAndSet(ctx, "coordinator", func() error {
		return s.userRepo.SetCoordinator(ctx, affiliateID, coordinatorID)
	})
	if err != nil {
		logger.ExitMethodWithError("attachmentService.AttachToCoordinator", err, "affiliateID", affiliateID)
		return nil, err
	}

	logger.ExitMethod("attachmentService.AttachToCoordinator", "affiliateID", affiliateID)
	return s.userRepo.GetByID(ctx, affiliateID)
}

// BulkAssign attaches each affiliate independently; any per-affiliate
// failure becomes a skip and the batch carries on.
func (s *attachmentService) BulkAssign(ctx context.Context, coordinatorID int32, affiliateIDs []int32) (*domain.BulkAssignResult, error) {
	if _, err := s.coordinator(ctx, coordinatorID); err != nil {
		return nil, err
	}

	result := &domain.BulkAssignResult{
		CoordinatorID: coordinatorID,
		Assigned:      []int32{},
		Skipped:       []domain.AssignmentSkip{},
	}
	seen := make(map[int32]bool, len(affiliateIDs))
	for _, id := range affiliateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if _, err := s.AttachToCoordinator(ctx, id, coordinatorID); err != nil {
			if domain.KindOf(err) == "" {
				logger.ErrorContext(ctx, "Bulk assignment failed for affiliate", "affiliateID", id, "error", err)
			} else {
				logger.WarnContext(ctx, "Skipping affiliate in bulk assignment", "affiliateID", id, "reason", err.Error())
			}
			result.Skipped = append(result.Skipped, domain.AssignmentSkip{AffiliateID: id, Reason: err.Error()})
			continue
		}
		result.Assigned = append(result.Assigned, id)
	}

	logger.Event(ctx, "bulk_assignment", "coordinatorID", coordinatorID,
		"assigned", len(result.Assigned), "skipped", len(result.Skipped))
	return result, nil
}

func (s *attachmentService) RegisterAffiliateUnderCoordinator(ctx context.Context, coordinatorID int32, name, email, password string) (*domain.User, error) {
	if _, err := s.coordinator(ctx, coordinatorID); err != nil {
		return nil, err
	}
	id := coordinatorID
	return s.create(ctx, RegistrationInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     domain.RoleAffiliate,
	}, nil, &id)
}

// SetUserStatus never cascades: referees and network members keep their state.
func (s *attachmentService) SetUserStatus(ctx context.Context, userID int32, active bool) (*domain.User, error) {
	if err := s.userRepo.SetActive(ctx, userID, active); err != nil {
		return nil, notFound(err, "user %d not found", userID)
	}
	logger.Event(ctx, "user_status_changed", "userID", userID, "active", active)
	return s.userRepo.GetByID(ctx, userID)
}
