package domain

// Capability is what a caller must hold to invoke an engine operation.
// Roles map to capability sets; the role switch itself lives outside the engine.
type Capability string

const (
	CapManageCommissionLevels Capability = "manage_commission_levels"
	CapViewCommissionLevels   Capability = "view_commission_levels"
	CapRecordTransactions     Capability = "record_transactions"
	CapApproveCommissions     Capability = "approve_commissions"
	CapProcessPayouts         Capability = "process_payouts"
	CapManageUsers            Capability = "manage_users"
	CapManageCoordinators     Capability = "manage_coordinators"
	CapViewNetwork            Capability = "view_network"
	CapManageNetwork          Capability = "manage_network"
	CapViewOwnEarnings        Capability = "view_own_earnings"
	CapInvite                 Capability = "invite"
	CapManagePaymentMethods   Capability = "manage_payment_methods"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapManageCommissionLevels, CapViewCommissionLevels, CapRecordTransactions,
		CapApproveCommissions, CapProcessPayouts, CapManageUsers, CapManageCoordinators,
		CapViewNetwork, CapManageNetwork, CapViewOwnEarnings, CapInvite, CapManagePaymentMethods,
	},
	RoleCoordinator: {
		CapViewCommissionLevels, CapViewNetwork, CapManageNetwork, CapViewOwnEarnings,
		CapInvite, CapManagePaymentMethods,
	},
	RoleAffiliate: {
		CapViewCommissionLevels, CapViewOwnEarnings, CapInvite, CapManagePaymentMethods,
	},
	RoleClient: {},
}

func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// Operation names an engine entry point.
type Operation string

const (
	OpRegister                  Operation = "Register"
	OpLogin                     Operation = "Login"
	OpConfirmInvite             Operation = "ConfirmInvite"
	OpListCommissionLevels      Operation = "ListCommissionLevels"
	OpUpsertCommissionLevel     Operation = "UpsertCommissionLevel"
	OpDeactivateCommissionLevel Operation = "DeactivateCommissionLevel"
	OpActivateCommissionLevel   Operation = "ActivateCommissionLevel"
	OpDeleteCommissionLevel     Operation = "DeleteCommissionLevel"
	OpResetCommissionLevels     Operation = "ResetCommissionLevels"
	OpRecordTransaction         Operation = "RecordTransaction"
	OpCancelTransaction         Operation = "CancelTransaction"
	OpApproveCommissions        Operation = "ApproveCommissions"
	OpListOwnCommissions        Operation = "ListOwnCommissions"
	OpGetOwnEarnings            Operation = "GetOwnEarnings"
	OpGetOwnBalance             Operation = "GetOwnBalance"
	OpGetOwnReferrals           Operation = "GetOwnReferrals"
	OpListOwnPayouts            Operation = "ListOwnPayouts"
	OpInvite                    Operation = "Invite"
	OpListInvites               Operation = "ListInvites"
	OpAddPaymentMethod          Operation = "AddPaymentMethod"
	OpListPaymentMethods        Operation = "ListPaymentMethods"
	OpProcessPayout             Operation = "ProcessPayout"
	OpCreateUser                Operation = "CreateUser"
	OpSetUserStatus             Operation = "SetUserStatus"
	OpAttachReferrer            Operation = "AttachReferrer"
	OpGetCoordinatorNetwork     Operation = "GetCoordinatorNetwork"
	OpRegisterNetworkAffiliate  Operation = "RegisterNetworkAffiliate"
	OpAssignAffiliates          Operation = "AssignAffiliates"
	OpToggleCoordinatorStatus   Operation = "ToggleCoordinatorStatus"
)

var operationCapabilities = map[Operation]Capability{
	OpListCommissionLevels:      CapViewCommissionLevels,
	OpUpsertCommissionLevel:     CapManageCommissionLevels,
	OpDeactivateCommissionLevel: CapManageCommissionLevels,
	OpActivateCommissionLevel:   CapManageCommissionLevels,
	OpDeleteCommissionLevel:     CapManageCommissionLevels,
	OpResetCommissionLevels:     CapManageCommissionLevels,
	OpRecordTransaction:         CapRecordTransactions,
	OpCancelTransaction:         CapRecordTransactions,
	OpApproveCommissions:        CapApproveCommissions,
	OpListOwnCommissions:        CapViewOwnEarnings,
	OpGetOwnEarnings:            CapViewOwnEarnings,
	OpGetOwnBalance:             CapViewOwnEarnings,
	OpGetOwnReferrals:           CapViewOwnEarnings,
	OpListOwnPayouts:            CapViewOwnEarnings,
	OpInvite:                    CapInvite,
	OpListInvites:               CapInvite,
	OpAddPaymentMethod:          CapManagePaymentMethods,
	OpListPaymentMethods:        CapManagePaymentMethods,
	OpProcessPayout:             CapProcessPayouts,
	OpCreateUser:                CapManageUsers,
	OpSetUserStatus:             CapManageUsers,
	OpAttachReferrer:            CapManageUsers,
	OpGetCoordinatorNetwork:     CapViewNetwork,
	OpRegisterNetworkAffiliate:  CapManageNetwork,
	OpAssignAffiliates:          CapManageNetwork,
	OpToggleCoordinatorStatus:   CapManageCoordinators,
}

// RequiredCapability returns the capability guarding op. Operations without an
// entry (registration, login, invite confirmation) need none.
func (op Operation) RequiredCapability() (Capability, bool) {
	c, ok := operationCapabilities[op]
	return c, ok
}
