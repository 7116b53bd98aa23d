// config/security_config.go
package config

import "affiliate-network-backend/internal/domain"

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps operations to their required security level.
// The capability an authenticated caller needs comes from the operation itself.
var EndpointSecurityConfig = map[domain.Operation]SecurityLevel{
	// Auth - Public
	domain.OpRegister:      SecurityPublic,
	domain.OpLogin:         SecurityPublic,
	domain.OpConfirmInvite: SecurityPublic,

	// Commission levels
	domain.OpListCommissionLevels:      SecurityAccess,
	domain.OpUpsertCommissionLevel:     SecurityAccess,
	domain.OpDeactivateCommissionLevel: SecurityAccess,
	domain.OpActivateCommissionLevel:   SecurityAccess,
	domain.OpDeleteCommissionLevel:     SecurityAccess,
	domain.OpResetCommissionLevels:     SecurityAccess,

	// Transactions and commissions
	domain.OpRecordTransaction:  SecurityAccess,
	domain.OpCancelTransaction:  SecurityAccess,
	domain.OpApproveCommissions: SecurityAccess,

	// Self service
	domain.OpListOwnCommissions: SecurityAccess,
	domain.OpGetOwnEarnings:     SecurityAccess,
	domain.OpGetOwnBalance:      SecurityAccess,
	domain.OpGetOwnReferrals:    SecurityAccess,
	domain.OpListOwnPayouts:     SecurityAccess,
	domain.OpInvite:             SecurityAccess,
	domain.OpListInvites:        SecurityAccess,
	domain.OpAddPaymentMethod:   SecurityAccess,
	domain.OpListPaymentMethods: SecurityAccess,

	// Admin
	domain.OpProcessPayout:  SecurityAccess,
	domain.OpCreateUser:     SecurityAccess,
	domain.OpSetUserStatus:  SecurityAccess,
	domain.OpAttachReferrer: SecurityAccess,

	// Coordinator network
	domain.OpGetCoordinatorNetwork:    SecurityAccess,
	domain.OpRegisterNetworkAffiliate: SecurityAccess,
	domain.OpAssignAffiliates:         SecurityAccess,
	domain.OpToggleCoordinatorStatus:  SecurityAccess,
}

// GetSecurityLevel returns the security level for a given operation
func GetSecurityLevel(op domain.Operation) SecurityLevel {
	if level, exists := EndpointSecurityConfig[op]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
