package savings

import "errors"

var (
	ErrNilState            = errors.New("savings engine: state not configured")
	ErrNilToken            = errors.New("savings engine: accounting token not configured")
	ErrNilAssets           = errors.New("savings engine: asset ledger not configured")
	ErrInvalidDailyAmount  = errors.New("savings: daily amount must be positive")
	ErrInvalidGoalAmount   = errors.New("savings: goal amount must be non-negative")
	ErrPenaltyTooHigh      = errors.New("savings: penalty bps above maximum")
	ErrInvalidEndTime      = errors.New("savings: end time must be zero or in the future")
	ErrInvalidStrategy     = errors.New("savings: unknown yield strategy")
	ErrInvalidWithdrawal   = errors.New("savings: withdrawal amount must be positive")
	ErrNoPlanConfigured    = errors.New("savings: no plan configured")
	ErrUnauthorized        = errors.New("savings: unauthorized caller")
	ErrInsufficientBudget  = errors.New("savings: insufficient execution budget")
	ErrInsufficientBalance = errors.New("savings: insufficient accounting balance")
	ErrWithdrawalFailed    = errors.New("savings: withdrawal transfer failed")
)
