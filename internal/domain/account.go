/**
 * @description
 * This file defines the account model: one cash balance and one optional
 * virtual-card balance per authenticated user.
 *
 * @notes
 * - The account id is the opaque identifier supplied by the external identity
 *   provider; the ledger performs no authentication of its own.
 * - Both balances are invariantly non-negative. The store enforces this with
 *   conditional updates, never with a read-modify-write in the service layer.
 */

package domain

import "time"

// Account is a single user's balance pair. CardActivatedAt is set exactly
// once, when the card application is verified; until then the card balance is
// not addressable by transfers.
type Account struct {
	ID              string     `json:"id"`
	CashBalance     int64      `json:"cash_balance"`
	CardBalance     int64      `json:"card_balance"`
	CardActivatedAt *time.Time `json:"card_activated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasActiveCard reports whether the card balance has been activated by a
// verified card application.
func (a Account) HasActiveCard() bool {
	return a.CardActivatedAt != nil
}
