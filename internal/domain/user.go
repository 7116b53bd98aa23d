package domain

import "time"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleAffiliate   Role = "affiliate"
	RoleCoordinator Role = "coordinator"
	RoleClient      Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAffiliate, RoleCoordinator, RoleClient:
		return true
	}
	return false
}

// User is a node of the referral tree. ReferredByID and CoordinatorID are
// write-once: they are set at registration or by an explicit attachment and
// never changed afterwards.
type User struct {
	ID            int32     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	IsActive      bool      `json:"is_active"`
	ReferralCode  string    `json:"referral_code"`
	ReferredByID  *int32    `json:"referred_by_id,omitempty"`
	CoordinatorID *int32    `json:"coordinator_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) HasReferrer() bool {
	return u.ReferredByID != nil
}

func (u *User) HasCoordinator() bool {
	return u.CoordinatorID != nil
}
