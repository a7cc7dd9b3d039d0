package domain

import "time"

// WalletRecord links a platform user to the on-chain address the sync engine
// polls. AltAddress holds an optional secondary address (e.g. a vault object
// owner distinct from the user's wallet).
type WalletRecord struct {
	UserID     int64
	VaultID    int64
	Address    string
	AltAddress *string
	CreatedAt  time.Time
}
