// Package memory is an in-process repository backend used for local runs and
// service tests. One mutex guards all tables, which also serializes payouts
// and invites the way row locks do in postgres.
package memory

import (
	"sync"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type state struct {
	mu sync.RWMutex

	users       map[int32]*domain.User
	nextUserID  int32
	levels      map[int32]*domain.CommissionLevel
	nextLevelID int32
	version     int64

	transactions map[string]*domain.Transaction
	records      map[int32]*domain.CommissionRecord
	nextRecordID int32

	methods      map[int32]*domain.PaymentMethod
	nextMethodID int32
	payouts      map[int32]*domain.PayoutRequest
	nextPayoutID int32

	invites      map[int32]*domain.EmailReferral
	nextInviteID int32
}

type Store struct {
	repository.UserRepository
	repository.CommissionLevelRepository
	repository.CommissionRepository
	repository.PayoutRepository
	repository.InviteRepository
}

// NewStore returns an empty store seeded with the default commission schedule.
func NewStore() *Store {
	s := &state{
		users:        make(map[int32]*domain.User),
		levels:       make(map[int32]*domain.CommissionLevel),
		transactions: make(map[string]*domain.Transaction),
		records:      make(map[int32]*domain.CommissionRecord),
		methods:      make(map[int32]*domain.PaymentMethod),
		payouts:      make(map[int32]*domain.PayoutRequest),
		invites:      make(map[int32]*domain.EmailReferral),
	}
	s.seedLevels()

	return &Store{
		UserRepository:            &userRepository{s},
		CommissionLevelRepository: &commissionLevelRepository{s},
		CommissionRepository:      &commissionRepository{s},
		PayoutRepository:          &payoutRepository{s},
		InviteRepository:          &inviteRepository{s},
	}
}

var (
	_ repository.UserRepository            = (*userRepository)(nil)
	_ repository.CommissionLevelRepository = (*commissionLevelRepository)(nil)
	_ repository.CommissionRepository      = (*commissionRepository)(nil)
	_ repository.PayoutRepository          = (*payoutRepository)(nil)
	_ repository.InviteRepository          = (*inviteRepository)(nil)
)
