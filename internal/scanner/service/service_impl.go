package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	catalogservice "github.com/smallbiznis/martpos/internal/catalog/service"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/observability/metrics"
	"github.com/smallbiznis/martpos/internal/scanner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	scanOutcomeResolved     = "resolved"
	scanOutcomeUnknown      = "unknown_barcode"
	scanOutcomeLookupFailed = "lookup_failed"
	scanOutcomeRejected     = "rejected"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Gate     authorization.Service
	Store    domain.Store
	Products domain.ProductLookup
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	gate     authorization.Service
	store    domain.Store
	products domain.ProductLookup
	metrics  *metrics.Metrics
	baseURL  string
}

func New(p Params) *Service {
	return &Service{
		log:      p.Log.Named("scanner.service"),
		gate:     p.Gate,
		store:    p.Store,
		products: p.Products,
		metrics:  p.Metrics,
		baseURL:  p.Config.Scanner.MobileBaseURL,
	}
}

// desktop authorizes a POS operator and returns the activation key for the
// login session.
func (s *Service) desktop(ctx context.Context, session *authdomain.Session) (string, error) {
	identity, err := s.gate.Authorize(ctx, session, authdomain.RoleStaff, authdomain.RoleAdmin)
	if err != nil {
		return "", err
	}
	if err := s.gate.AuthorizeAction(ctx, identity, authorization.ObjectScanner, authorization.ActionScannerOperate); err != nil {
		return "", err
	}
	return identity.SessionID.String(), nil
}

func (s *Service) ActivatePOS(ctx context.Context, session *authdomain.Session) (*domain.ActivationResult, error) {
	desktopID, err := s.desktop(ctx, session)
	if err != nil {
		return nil, err
	}

	activation, err := s.store.Activate(ctx, desktopID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordScannerActivation(ctx, "activated")
	s.log.Info("scanner activated", zap.String("desktop_session_id", desktopID))

	return &domain.ActivationResult{
		Token:     activation.Token,
		ExpiresAt: activation.TokenExpiresAt,
		Link:      s.mobileLink(activation.Token),
	}, nil
}

func (s *Service) mobileLink(token string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "?token=" + url.QueryEscape(token)
}

func (s *Service) DeactivatePOS(ctx context.Context, session *authdomain.Session) error {
	desktopID, err := s.desktop(ctx, session)
	if err != nil {
		return err
	}
	if err := s.store.Deactivate(ctx, desktopID); err != nil {
		return err
	}
	s.metrics.RecordScannerActivation(ctx, "deactivated")
	s.log.Info("scanner deactivated", zap.String("desktop_session_id", desktopID))
	return nil
}

func (s *Service) CheckPOSActivation(ctx context.Context, session *authdomain.Session) (bool, error) {
	desktopID, err := s.desktop(ctx, session)
	if err != nil {
		return false, err
	}
	return s.store.CheckActive(ctx, desktopID)
}

func (s *Service) PollItems(ctx context.Context, session *authdomain.Session) ([]domain.ScannedItem, error) {
	desktopID, err := s.desktop(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.store.Drain(ctx, desktopID)
}

func (s *Service) ActivateMobile(ctx context.Context, token string) (*domain.MobileBinding, error) {
	token = strings.TrimSpace(token)
	binding, err := s.store.BindMobile(ctx, token)
	if err != nil {
		return nil, err
	}
	s.log.Info("mobile scanner bound", zap.String("desktop_session_id", binding.DesktopSessionID))
	return &domain.MobileBinding{
		MobileSessionToken: binding.MobileSessionToken,
		ExpiresAt:          binding.ExpiresAt,
	}, nil
}

// SubmitScan queues a barcode for the desktop session that token is bound to.
// token is the mobile session token from ActivateMobile; it is checked before
// the barcode is looked at.
func (s *Service) SubmitScan(ctx context.Context, token, barcode string) (*domain.SubmitResult, error) {
	token = strings.TrimSpace(token)
	desktopID, err := s.store.CheckMobile(ctx, token)
	if err != nil {
		s.metrics.RecordScan(ctx, scanOutcomeRejected)
		return nil, err
	}
	barcode, err = normalizeBarcode(barcode)
	if err != nil {
		return nil, err
	}

	item := domain.ScannedItem{Barcode: barcode}
	outcome := s.resolve(ctx, &item)

	queued, err := s.store.EnqueueMobile(ctx, token, item)
	if err != nil {
		s.metrics.RecordScan(ctx, scanOutcomeRejected)
		return nil, err
	}
	s.metrics.RecordScan(ctx, outcome)
	s.log.Debug("scan queued",
		zap.String("desktop_session_id", desktopID),
		zap.String("item_id", queued.ID),
		zap.String("outcome", outcome),
	)

	return &domain.SubmitResult{Item: queued}, nil
}

// resolve fills product fields on item. Lookup failures leave the item
// unresolved so the scan still reaches the till.
func (s *Service) resolve(ctx context.Context, item *domain.ScannedItem) string {
	product, err := s.products.FindByBarcode(ctx, item.Barcode)
	if err != nil {
		s.log.Warn("barcode lookup failed", zap.String("barcode", item.Barcode), zap.Error(err))
		return scanOutcomeLookupFailed
	}
	if product == nil {
		s.log.Info("unknown barcode scanned", zap.String("barcode", item.Barcode))
		return scanOutcomeUnknown
	}

	id := product.ID
	name := product.Name
	price := product.Price
	item.ProductRef = &id
	item.ProductName = &name
	item.UnitPrice = &price
	return scanOutcomeResolved
}

func normalizeBarcode(code string) (string, error) {
	code, err := catalogservice.NormalizeBarcode(code)
	if err != nil {
		return "", domain.ErrInvalidBarcode
	}
	return code, nil
}

func (s *Service) Release(ctx context.Context, desktopID string) error {
	if desktopID == "" {
		return nil
	}
	return s.store.Deactivate(ctx, desktopID)
}

// SessionEnded deactivates scanning for a login session that went away.
func (s *Service) SessionEnded(ctx context.Context, sessionID snowflake.ID) {
	if err := s.Release(ctx, sessionID.String()); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to release scanner activation",
			zap.String("desktop_session_id", sessionID.String()),
			zap.Error(err),
		)
	}
}

var (
	_ domain.Service             = (*Service)(nil)
	_ authdomain.SessionListener = (*Service)(nil)
)
