package domain

import (
	"context"

	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
)

type Service interface {
	ActivatePOS(ctx context.Context, session *authdomain.Session) (*ActivationResult, error)
	DeactivatePOS(ctx context.Context, session *authdomain.Session) error
	CheckPOSActivation(ctx context.Context, session *authdomain.Session) (bool, error)
	PollItems(ctx context.Context, session *authdomain.Session) ([]ScannedItem, error)

	ActivateMobile(ctx context.Context, token string) (*MobileBinding, error)
	SubmitScan(ctx context.Context, token, barcode string) (*SubmitResult, error)

	// Release deactivates scanning for a desktop session that ended.
	Release(ctx context.Context, desktopID string) error
}

//go:generate mockgen -destination=../mocks/mock_product_lookup.go -package=mocks github.com/smallbiznis/martpos/internal/scanner/domain ProductLookup

// ProductLookup resolves a scanned barcode. A nil product with a nil error
// means the barcode is unknown.
type ProductLookup interface {
	FindByBarcode(ctx context.Context, code string) (*catalogdomain.Product, error)
}
