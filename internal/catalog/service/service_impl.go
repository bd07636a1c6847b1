package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/pkg/db"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	} else if !slug.IsSlug(code) {
		return nil, domain.ErrInvalidCode
	}
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if req.Stock < 0 {
		return nil, domain.ErrInvalidStock
	}
	barcode, err := normalizeOptionalBarcode(req.Barcode)
	if err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Code:        code,
		Name:        name,
		Description: trimmedOrNil(req.Description),
		Barcode:     barcode,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("code", p.Code))
	resp := ToResponse(p)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	item, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = trimmedOrNil(req.Description)
	}
	if req.Barcode != nil {
		// an empty string clears the barcode
		if item.Barcode, err = normalizeOptionalBarcode(req.Barcode); err != nil {
			return nil, err
		}
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, domain.ErrInvalidStock
		}
		item.Stock = *req.Stock
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if req.Metadata != nil {
		item.Metadata = datatypes.JSONMap(req.Metadata)
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	resp := ToResponse(item)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToResponse(item)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	filter := domain.ListFilter{
		Name:   strings.ToLower(strings.TrimSpace(req.Name)),
		Active: req.Active,
		Limit:  req.Limit() + 1,
	}
	switch strings.ToLower(strings.TrimSpace(req.Sort)) {
	case "", "asc":
	case "desc":
		filter.Desc = true
	default:
		return nil, domain.ErrInvalidSort
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		if filter.AfterID, err = strconv.ParseInt(cursor.ID, 10, 64); err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	page, info, err := pagination.Page(items, req.Limit(), func(p domain.Product) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(p.ID, 10)}
	})
	if err != nil {
		return nil, err
	}

	resp := &domain.ListResponse{Items: make([]domain.Response, 0, len(page)), PageInfo: info}
	for i := range page {
		resp.Items = append(resp.Items, ToResponse(&page[i]))
	}
	return resp, nil
}

func (s *Service) Archive(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Active = false
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := ToResponse(item)
	return &resp, nil
}

func (s *Service) FindByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	code, err := NormalizeBarcode(code)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByBarcode(ctx, s.db, code)
}

func (s *Service) Lookup(ctx context.Context, tx *gorm.DB, id int64) (*domain.Product, error) {
	item, err := s.repo.FindByID(ctx, s.conn(tx), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// AdjustStock adds delta to the product stock in one conditional UPDATE, so
// concurrent checkouts can never drive stock below zero.
func (s *Service) AdjustStock(ctx context.Context, tx *gorm.DB, id int64, delta int64) error {
	if delta == 0 {
		return nil
	}
	conn := s.conn(tx)
	rows, err := s.repo.AddStock(ctx, conn, id, delta, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	existing, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientStock
}

func (s *Service) load(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || productID == 0 {
		return nil, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// NormalizeBarcode trims code and enforces the length limit.
func NormalizeBarcode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > domain.MaxBarcodeLength {
		return "", domain.ErrInvalidBarcode
	}
	return code, nil
}

func normalizeOptionalBarcode(value *string) (*string, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	code, err := NormalizeBarcode(*value)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// ToResponse renders a product for API clients.
func ToResponse(p *domain.Product) domain.Response {
	resp := domain.Response{
		ID:          snowflake.ID(p.ID).String(),
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Barcode:     p.Barcode,
		Price:       p.Price,
		Stock:       p.Stock,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
