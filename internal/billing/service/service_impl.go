package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	"github.com/smallbiznis/martpos/internal/billing/domain"
	"github.com/smallbiznis/martpos/internal/billing/format"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/config"
	"github.com/smallbiznis/martpos/internal/observability/metrics"
	"github.com/smallbiznis/martpos/internal/providers/pdf"
	"github.com/smallbiznis/martpos/pkg/db"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTopProducts = 5
	maxTopProducts     = 50
	// createAttempts bounds retries when two tills race for the same bill number.
	createAttempts = 3
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Catalog  catalogdomain.Service
	Clock    clock.Clock
	PDF      pdf.Provider
	Settings *config.StoreSettingsHolder
	Users    authdomain.Repository    `optional:"true"`
	Metrics  *metrics.Metrics         `optional:"true"`
	Checkout *metrics.CheckoutMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	catalog  catalogdomain.Service
	clock    clock.Clock
	pdf      pdf.Provider
	settings *config.StoreSettingsHolder
	users    authdomain.Repository
	metrics  *metrics.Metrics
	checkout *metrics.CheckoutMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		catalog:  p.Catalog,
		clock:    p.Clock,
		pdf:      p.PDF,
		settings: p.Settings,
		users:    p.Users,
		metrics:  p.Metrics,
		checkout: p.Checkout,
	}
}

type lineRequest struct {
	productID int64
	quantity  int64
}

func parseLines(lines []domain.LineInput) ([]lineRequest, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBill
	}
	if len(lines) > domain.MaxLines {
		return nil, domain.ErrTooManyLines
	}

	out := make([]lineRequest, 0, len(lines))
	for i, line := range lines {
		id, err := strconv.ParseInt(strings.TrimSpace(line.ProductID), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, domain.ErrInvalidProduct)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, domain.ErrInvalidQuantity)
		}
		out = append(out, lineRequest{productID: id, quantity: line.Quantity})
	}
	return out, nil
}

// CreateBill records a sale. Stock for every line is taken inside the same
// transaction as the bill insert, so either everything commits or nothing.
func (s *Service) CreateBill(ctx context.Context, cashier authorization.Identity, req domain.CreateBillRequest) (_ *domain.BillResponse, err error) {
	start := time.Now()
	defer func() { s.checkout.Observe(start, err) }()

	lines, err := parseLines(req.Lines)
	if err != nil {
		return nil, err
	}

	var bill *domain.Bill
	for attempt := 1; attempt <= createAttempts; attempt++ {
		bill, err = s.createBill(ctx, cashier, lines)
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Warn("bill number collision, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		if !isBusinessError(err) {
			s.log.Error("failed to create bill", zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordBillCreated(ctx, bill.Total)
	s.log.Info("bill created",
		zap.String("bill_id", bill.ID.String()),
		zap.String("number", bill.Number),
		zap.Int64("total", bill.Total),
		zap.String("cashier_id", cashier.UserID.String()),
	)

	resp := toResponse(bill, true)
	return &resp, nil
}

func (s *Service) createBill(ctx context.Context, cashier authorization.Identity, lines []lineRequest) (*domain.Bill, error) {
	now := s.clock.Now()
	bill := &domain.Bill{
		ID:        s.genID.Generate(),
		CashierID: cashier.UserID,
		CreatedAt: now,
		Lines:     make([]domain.BillLine, 0, len(lines)),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, line := range lines {
			product, err := s.catalog.Lookup(ctx, tx, line.productID)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !product.Active {
				return fmt.Errorf("line %d: %w", i+1, domain.ErrProductInactive)
			}
			if err := s.catalog.AdjustStock(ctx, tx, product.ID, -line.quantity); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}

			amount, ok := mulAmount(product.Price, line.quantity)
			if !ok || bill.Total > math.MaxInt64-amount {
				return domain.ErrAmountOverflow
			}
			bill.Lines = append(bill.Lines, domain.BillLine{
				ID:          s.genID.Generate(),
				BillID:      bill.ID,
				Position:    i + 1,
				ProductID:   product.ID,
				ProductName: product.Name,
				Barcode:     product.Barcode,
				Quantity:    line.quantity,
				UnitPrice:   product.Price,
				Amount:      amount,
			})
			bill.Total += amount
			bill.ItemCount += line.quantity
		}

		number, err := s.nextNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		bill.Number = number

		return s.repo.Create(ctx, tx, bill)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// nextNumber numbers bills per UTC day starting at 1.
func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.repo.CountBetween(ctx, tx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}
	return format.FormatBillNumber(format.DefaultBillNumberTemplate, now, count+1)
}

func mulAmount(price, qty int64) (int64, bool) {
	if price == 0 || qty == 0 {
		return 0, true
	}
	if price > math.MaxInt64/qty {
		return 0, false
	}
	return price * qty, true
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		catalogdomain.ErrNotFound,
		catalogdomain.ErrInsufficientStock,
		domain.ErrProductInactive,
		domain.ErrAmountOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Bill, error) {
	billID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	bill, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, domain.ErrNotFound
	}
	return bill, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.BillResponse, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(bill, true)
	return &resp, nil
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && !from.Before(*to) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	if err := validateRange(req.From, req.To); err != nil {
		return nil, err
	}

	limit := req.Limit()
	filter := domain.ListFilter{From: req.From, To: req.To, Limit: limit + 1}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		before, err := parseID(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		filter.BeforeID = before
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	rows, pageInfo, err := pagination.Page(rows, limit, func(b *domain.Bill) pagination.Cursor {
		return pagination.Cursor{ID: b.ID.String()}
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.BillResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toResponse(row, false))
	}
	return &domain.ListResponse{Items: items, PageInfo: pageInfo}, nil
}

func (s *Service) SalesSummary(ctx context.Context, req domain.SummaryRequest) (*domain.SalesSummary, error) {
	if err := validateRange(req.From, req.To); err != nil {
		return nil, err
	}
	top := req.Top
	switch {
	case top <= 0:
		top = defaultTopProducts
	case top > maxTopProducts:
		top = maxTopProducts
	}

	totals, err := s.repo.Totals(ctx, s.db, req.From, req.To)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.TopProducts(ctx, s.db, req.From, req.To, top)
	if err != nil {
		return nil, err
	}

	summary := &domain.SalesSummary{
		From:        req.From,
		To:          req.To,
		BillCount:   totals.BillCount,
		ItemCount:   totals.ItemCount,
		Revenue:     totals.Revenue,
		TopProducts: make([]domain.TopProduct, 0, len(products)),
	}
	if totals.BillCount > 0 {
		summary.AverageBill = totals.Revenue / totals.BillCount
	}
	for _, p := range products {
		summary.TopProducts = append(summary.TopProducts, domain.TopProduct{
			ProductID:   strconv.FormatInt(p.ProductID, 10),
			ProductName: p.ProductName,
			Quantity:    p.Quantity,
			Revenue:     p.Revenue,
		})
	}
	return summary, nil
}

func (s *Service) Receipt(ctx context.Context, id string) (*domain.ReceiptFile, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	store := config.DefaultStoreSettings()
	if s.settings != nil {
		store = s.settings.Get()
	}
	money := func(amount int64) string {
		return format.FormatMoney(amount, store.Currency, store.CurrencyExponent)
	}

	receipt := pdf.Receipt{
		StoreName:    store.Name,
		StoreAddress: store.Address,
		StorePhone:   store.Phone,
		BillNumber:   bill.Number,
		IssuedAt:     bill.CreatedAt.Format("2006-01-02 15:04"),
		Cashier:      s.cashierName(ctx, bill.CashierID),
		ItemCount:    bill.ItemCount,
		Total:        money(bill.Total),
		Footer:       store.ReceiptFooter,
	}
	for _, line := range bill.Lines {
		receipt.Items = append(receipt.Items, pdf.ReceiptItem{
			Description: line.ProductName,
			Qty:         line.Quantity,
			UnitPrice:   money(line.UnitPrice),
			Amount:      money(line.Amount),
		})
	}

	content, err := s.pdf.GenerateReceipt(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return &domain.ReceiptFile{
		Filename: "receipt-" + bill.Number + ".pdf",
		Content:  content,
	}, nil
}

func (s *Service) cashierName(ctx context.Context, id snowflake.ID) string {
	fallback := "#" + id.String()
	if s.users == nil {
		return fallback
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, authdomain.ErrUserNotFound) {
			s.log.Warn("failed to load cashier for receipt", zap.Error(err))
		}
		return fallback
	}
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Email
}

func toResponse(bill *domain.Bill, withLines bool) domain.BillResponse {
	resp := domain.BillResponse{
		ID:        bill.ID.String(),
		Number:    bill.Number,
		CashierID: bill.CashierID.String(),
		Total:     bill.Total,
		ItemCount: bill.ItemCount,
		CreatedAt: bill.CreatedAt,
	}
	if !withLines {
		return resp
	}
	resp.Lines = make([]domain.LineResponse, 0, len(bill.Lines))
	for _, line := range bill.Lines {
		resp.Lines = append(resp.Lines, domain.LineResponse{
			Position:    line.Position,
			ProductID:   strconv.FormatInt(line.ProductID, 10),
			ProductName: line.ProductName,
			Barcode:     line.Barcode,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	return resp
}
