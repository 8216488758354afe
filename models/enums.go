package models

type TransactionStatus string

const (
	TransactionStatusBorrowed    TransactionStatus = "Borrowed"
	TransactionStatusRenewed     TransactionStatus = "Renewed"
	TransactionStatusOverdue     TransactionStatus = "Overdue"
	TransactionStatusReturned    TransactionStatus = "Returned"
	TransactionStatusCancelled   TransactionStatus = "Cancelled"
	TransactionStatusClaimedLost TransactionStatus = "ClaimedLost"
)

// OpenTransactionStatuses are the statuses of a book still held by the member.
func OpenTransactionStatuses() []TransactionStatus {
	return []TransactionStatus{TransactionStatusBorrowed, TransactionStatusRenewed, TransactionStatusOverdue}
}

func (s TransactionStatus) IsOpen() bool {
	switch s {
	case TransactionStatusBorrowed, TransactionStatusRenewed, TransactionStatusOverdue:
		return true
	}
	return false
}

func (s TransactionStatus) IsFinalized() bool {
	switch s {
	case TransactionStatusReturned, TransactionStatusCancelled, TransactionStatusClaimedLost:
		return true
	}
	return false
}

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "Reserved"
	ReservationStatusAllocated ReservationStatus = "Allocated"
	ReservationStatusFulfilled ReservationStatus = "Fulfilled"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

func OpenReservationStatuses() []ReservationStatus {
	return []ReservationStatus{ReservationStatusReserved, ReservationStatusAllocated}
}

func (s ReservationStatus) IsOpen() bool {
	return s == ReservationStatusReserved || s == ReservationStatusAllocated
}

type PenaltyStatus string

const (
	PenaltyStatusPaid   PenaltyStatus = "Paid"
	PenaltyStatusUnPaid PenaltyStatus = "UnPaid"
	PenaltyStatusWaived PenaltyStatus = "Waived"
)

// IsSettled is true once the penalty no longer accepts increments.
func (s PenaltyStatus) IsSettled() bool {
	return s == PenaltyStatusPaid || s == PenaltyStatusWaived
}

type PenaltyType string

const (
	PenaltyTypeLateReturnRenew                 PenaltyType = "LateReturnRenew"
	PenaltyTypeExtraHoldings                   PenaltyType = "ExtraHoldings"
	PenaltyTypeBooksHeldUnderExpiredMembership PenaltyType = "BooksHeldUnderExpiredMembership"
	PenaltyTypeLostBook                        PenaltyType = "LostBook"
	PenaltyTypeBookDamage                      PenaltyType = "BookDamage"
	PenaltyTypeOther                           PenaltyType = "Other"
)

// IsAutoCalculated reports types owned by the engine; staff may not create them by hand.
func (t PenaltyType) IsAutoCalculated() bool {
	switch t {
	case PenaltyTypeLateReturnRenew, PenaltyTypeExtraHoldings, PenaltyTypeBooksHeldUnderExpiredMembership:
		return true
	}
	return false
}

func (t PenaltyType) IsValid() bool {
	switch t {
	case PenaltyTypeLateReturnRenew, PenaltyTypeExtraHoldings, PenaltyTypeBooksHeldUnderExpiredMembership,
		PenaltyTypeLostBook, PenaltyTypeBookDamage, PenaltyTypeOther:
		return true
	}
	return false
}

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "Pending"
	OutboxStatusSucceeded OutboxStatus = "Succeeded"
	OutboxStatusDead      OutboxStatus = "Dead"
)

// OutboxMessageType is the discriminator stored with every outbox payload.
type OutboxMessageType string

const (
	OutboxMessageTypeCheckout             OutboxMessageType = "Checkout"
	OutboxMessageTypeReturn               OutboxMessageType = "Return"
	OutboxMessageTypeRenewal              OutboxMessageType = "Renewal"
	OutboxMessageTypeOverdue              OutboxMessageType = "Overdue"
	OutboxMessageTypeReservationAllocated OutboxMessageType = "ReservationAllocated"
	OutboxMessageTypeReservationCancelled OutboxMessageType = "ReservationCancelled"
	OutboxMessageTypeMembershipChanged    OutboxMessageType = "MembershipChanged"
	OutboxMessageTypeMembershipExpiring   OutboxMessageType = "MembershipExpiring"
	OutboxMessageTypePenalty              OutboxMessageType = "Penalty"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "Create"
	AuditActionUpdate AuditAction = "Update"
)

// reservation cancel reasons
const (
	CancelReasonByUser                         = "CancelledByUser"
	CancelReasonByStaff                        = "CancelledByStaff"
	CancelReasonAllocationTransferLimitReached = "AllocationTransferLimitReached"
)
