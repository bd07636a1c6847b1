package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Clock    clock.Clock
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	clock    clock.Clock
}

// NewEnforcer loads the policy model. With a nil db the policies live only
// in memory, which is what tests use.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, err
		}
		if enforcer, err = casbin.NewSyncedEnforcer(m, adapter); err != nil {
			return nil, err
		}
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	} else if enforcer, err = casbin.NewSyncedEnforcer(m); err != nil {
		return nil, err
	}

	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		clock:    p.Clock,
	}
}

// Authorize fails with ErrUnauthenticated before it ever considers roles, so
// an anonymous caller never learns whether the operation exists.
func (s *ServiceImpl) Authorize(ctx context.Context, session *authdomain.Session, required ...authdomain.Role) (Identity, error) {
	if session == nil || session.ID == 0 || session.UserID == 0 {
		return Identity{}, ErrUnauthenticated
	}
	if !session.Valid(s.clock.Now()) {
		return Identity{}, ErrUnauthenticated
	}

	role, err := authdomain.ParseRole(session.Role)
	if err != nil {
		s.denied(ctx, session, "unknown_role")
		return Identity{}, ErrForbidden
	}
	identity := Identity{UserID: session.UserID, SessionID: session.ID, Role: role}
	if len(required) == 0 {
		return identity, nil
	}

	granted, err := s.grantedRoles(role)
	if err != nil {
		return Identity{}, err
	}
	for _, want := range required {
		if _, ok := granted[want]; ok {
			return identity, nil
		}
	}

	s.denied(ctx, session, "role")
	return Identity{}, ErrForbidden
}

func (s *ServiceImpl) AuthorizeAction(ctx context.Context, identity Identity, object, action string) error {
	if identity.SessionID == 0 || identity.Role == "" {
		return ErrUnauthenticated
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(identity.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("user_id", identity.UserID.String()),
			zap.String("role", identity.Role.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// grantedRoles returns role plus every role it inherits.
func (s *ServiceImpl) grantedRoles(role authdomain.Role) (map[authdomain.Role]struct{}, error) {
	implicit, err := s.enforcer.GetImplicitRolesForUser(subject(role))
	if err != nil {
		return nil, err
	}
	out := map[authdomain.Role]struct{}{role: {}}
	for _, name := range implicit {
		out[authdomain.Role(strings.TrimPrefix(name, "role:"))] = struct{}{}
	}
	return out, nil
}

func (s *ServiceImpl) denied(_ context.Context, session *authdomain.Session, reason string) {
	s.log.Info("authorization denied",
		zap.String("user_id", session.UserID.String()),
		zap.String("session_id", session.ID.String()),
		zap.String("role", session.Role),
		zap.String("reason", reason),
	)
}

func subject(role authdomain.Role) string {
	return fmt.Sprintf("role:%s", role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:staff", ObjectScanner, ActionScannerOperate},
		{"role:staff", ObjectProduct, ActionProductView},
		{"role:staff", ObjectBill, ActionBillCreate},
		{"role:staff", ObjectBill, ActionBillView},

		{"role:admin", ObjectProduct, ActionProductManage},
		{"role:admin", ObjectBill, ActionBillList},
		{"role:admin", ObjectSales, ActionSalesView},
		{"role:admin", ObjectUser, ActionUserManage},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	// admins can do everything staff can
	if _, err := enforcer.AddGroupingPolicy("role:admin", "role:staff"); err != nil {
		return err
	}
	return nil
}
