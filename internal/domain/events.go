/**
 * @description
 * This file defines the domain models for events published by the wallet
 * service. These structs are the contract for messages sent to the message
 * broker (RabbitMQ) and are consumed by notification-facing collaborators.
 *
 * @notes
 * - Events are a fire-and-forget observability surface. Correctness never
 *   depends on them; a consumer uses them only to render outcome messages.
 */
package domain

import "time"

// Wallet event levels, matching the severities notification consumers render.
const (
	WalletEventInfo    = "info"
	WalletEventSuccess = "success"
	WalletEventError   = "error"
)

// WalletEvent is the payload published for every user-visible outcome:
// submissions, approvals, rejections and failures.
type WalletEvent struct {
	AccountID string    `json:"account_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
