package domain

import "time"

// Activation is the scanner state of one desktop POS session. Every expiry
// is capped at SessionExpiresAt, the end of the owning login session.
type Activation struct {
	DesktopSessionID   string    `json:"desktop_session_id"`
	Active             bool      `json:"active"`
	ActivatedAt        time.Time `json:"activated_at"`
	SessionExpiresAt   time.Time `json:"session_expires_at"`
	Token              string    `json:"-"`
	TokenExpiresAt     time.Time `json:"token_expires_at"`
	MobileSessionToken *string   `json:"-"`
	MobileExpiresAt    time.Time `json:"mobile_expires_at,omitempty"`
}

// Binding is what a mobile device receives after presenting a valid token.
// Only the MobileSessionToken of the latest binding may submit scans.
type Binding struct {
	DesktopSessionID   string
	MobileSessionToken string
	ExpiresAt          time.Time
}

// ScannedItem is one barcode submitted by the mobile side. Product fields
// stay nil when the barcode did not resolve to an active product.
type ScannedItem struct {
	ID          string    `json:"id"`
	Barcode     string    `json:"barcode"`
	ProductRef  *int64    `json:"product_id,string,omitempty"`
	ProductName *string   `json:"product_name,omitempty"`
	UnitPrice   *int64    `json:"unit_price,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Consumed    bool      `json:"consumed"`
}

// Resolved reports whether the barcode matched a catalog product.
func (i ScannedItem) Resolved() bool {
	return i.ProductRef != nil
}

// ActivationResult is returned to the desktop so it can render a QR code.
type ActivationResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Link      string    `json:"link"`
}

type MobileBinding struct {
	MobileSessionToken string    `json:"mobile_session_token"`
	ExpiresAt          time.Time `json:"expires_at"`
}

type SubmitResult struct {
	Item ScannedItem `json:"item"`
}
