package savings

import "math/big"

// Skip reasons shared by the eligibility check and the settlement paths.
const (
	reasonZeroAmount            = "Zero amount"
	reasonInsufficientAllowance = "Insufficient allowance"
	reasonInsufficientBalance   = "Insufficient balance"
	reasonNotEnabled            = "Savings not enabled"
	reasonGoalReached           = "Goal already reached"
	reasonNoTimePassed          = "Not enough time passed"
	reasonNothingDue            = "No amount to save"
	reasonTransferFailed        = "Transfer failed"
	reasonUnknownError          = "Unknown error"
)

// checkFunds verifies the account can fund a pull of the given amount. It
// never returns an error: the first failing rule wins and is reported as a
// reason string so batch processing can continue past one asset's shortfall.
func (e *Engine) checkFunds(account, asset [20]byte, amount *big.Int) (bool, string) {
	if amount == nil || amount.Sign() == 0 {
		return false, reasonZeroAmount
	}
	allowance, err := e.assets.Allowance(account, asset)
	if err != nil || allowance == nil || allowance.Cmp(amount) < 0 {
		return false, reasonInsufficientAllowance
	}
	balance, err := e.assets.BalanceOf(account, asset)
	if err != nil || balance == nil || balance.Cmp(amount) < 0 {
		return false, reasonInsufficientBalance
	}
	return true, ""
}
