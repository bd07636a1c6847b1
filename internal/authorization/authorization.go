package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidObject   = errors.New("invalid_object")
	ErrInvalidAction   = errors.New("invalid_action")
)

// Identity is the authenticated caller after the role check passed.
type Identity struct {
	UserID    snowflake.ID
	SessionID snowflake.ID
	Role      authdomain.Role
}

// Service gates every privileged operation. Authorize answers "may this
// session act at all, and with one of these roles"; AuthorizeAction checks a
// concrete object/action pair against the policy table.
type Service interface {
	Authorize(ctx context.Context, session *authdomain.Session, required ...authdomain.Role) (Identity, error)
	AuthorizeAction(ctx context.Context, identity Identity, object, action string) error
}

const (
	ObjectScanner = "scanner"
	ObjectProduct = "product"
	ObjectBill    = "bill"
	ObjectSales   = "sales"
	ObjectUser    = "user"
)

const (
	ActionScannerOperate = "scanner.operate"

	ActionProductView   = "product.view"
	ActionProductManage = "product.manage"

	ActionBillCreate = "bill.create"
	ActionBillView   = "bill.view"
	ActionBillList   = "bill.list"

	ActionSalesView = "sales.view"

	ActionUserManage = "user.manage"
)
