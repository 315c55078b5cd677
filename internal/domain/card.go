/**
 * @description
 * This file defines the virtual-card application model and the credential
 * generator used when an application is verified.
 *
 * @notes
 * - Credentials are generated from crypto/rand because they are simulated
 *   payment credentials; math/rand is not acceptable here.
 * - Credentials are generated exactly once. Once an application is verified
 *   the card number, expiry and CVV are immutable for the life of the card.
 */

package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Card application statuses. The state machine is NONE -> pending -> verified;
// verified is terminal.
const (
	CardApplicationPending  = "pending"
	CardApplicationVerified = "verified"
)

// cardNumberPrefix is the fixed brand-identifying first digit of every
// generated card number.
const cardNumberPrefix = "5"

// CardApplication is the at-most-one-per-account record driving the card
// issuance workflow. Credential fields are nil while status is `pending`.
type CardApplication struct {
	AccountID   string     `json:"account_id"`
	Name        string     `json:"name"`
	DOB         string     `json:"dob"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CardNumber  *string    `json:"card_number,omitempty"`
	ExpiryDate  *string    `json:"expiry_date,omitempty"`
	CVV         *string    `json:"cvv,omitempty"`
}

// IsVerified reports whether the application has reached the terminal state.
func (c CardApplication) IsVerified() bool {
	return c.Status == CardApplicationVerified
}

// WindowElapsed reports whether the verification window that opened at
// SubmittedAt has fully elapsed at the given instant.
func (c CardApplication) WindowElapsed(now time.Time, window time.Duration) bool {
	return !now.Before(c.SubmittedAt.Add(window))
}

// CardApplicationRequest is the DTO for incoming card application requests.
type CardApplicationRequest struct {
	Name  string `json:"name"`
	DOB   string `json:"dob"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// CardCredentials is the set of values minted when an application is verified.
type CardCredentials struct {
	CardNumber string
	ExpiryDate string
	CVV        string
}

// GenerateCardCredentials mints a fresh set of card credentials:
// a 16-digit number starting with the brand prefix, an MM/YY expiry three
// years out, and a 3-digit CVV in [100, 999].
func GenerateCardCredentials(now time.Time) (CardCredentials, error) {
	number, err := generateCardNumber()
	if err != nil {
		return CardCredentials{}, fmt.Errorf("failed to generate card number: %w", err)
	}
	cvv, err := randomInRange(100, 999)
	if err != nil {
		return CardCredentials{}, fmt.Errorf("failed to generate cvv: %w", err)
	}

	return CardCredentials{
		CardNumber: number,
		ExpiryDate: fmt.Sprintf("%02d/%02d", int(now.Month()), (now.Year()+3)%100),
		CVV:        fmt.Sprintf("%d", cvv),
	}, nil
}

// FormatCardNumber groups a 16-digit card number into blocks of four for
// display, matching how the card is rendered to the user.
func FormatCardNumber(number string) string {
	var groups []string
	for i := 0; i < len(number); i += 4 {
		end := i + 4
		if end > len(number) {
			end = len(number)
		}
		groups = append(groups, number[i:end])
	}
	return strings.Join(groups, " ")
}

func generateCardNumber() (string, error) {
	var b strings.Builder
	b.WriteString(cardNumberPrefix)
	for i := 0; i < 15; i++ {
		digit, err := randomInRange(0, 9)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", digit)
	}
	return b.String(), nil
}

// randomInRange returns a uniformly distributed integer in [min, max] from
// the crypto/rand source.
func randomInRange(min, max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return 0, err
	}
	return min + n.Int64(), nil
}
