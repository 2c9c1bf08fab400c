package api

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/pickflow/separation/internal/apperr"
	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/orchestrator"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/pdf"
	"github.com/pickflow/separation/internal/users"
	"github.com/pickflow/separation/pkg/middleware"
	"github.com/pickflow/separation/pkg/observability"
)

// Server hosts the REST surface over the order coordination subsystems.
type Server struct {
	boundary  *orchestrator.Boundary
	machine   *orders.Machine
	accessLog *orders.AccessLog
	store     orders.Store
	pdfConfig config.PDFConfig
	logger    *observability.Logger
	metrics   *observability.MetricsProvider
}

// NewServer constructs the REST handler set.
func NewServer(boundary *orchestrator.Boundary, machine *orders.Machine, accessLog *orders.AccessLog, store orders.Store, pdfConfig config.PDFConfig, logger *observability.Logger, metrics *observability.MetricsProvider) *Server {
	return &Server{
		boundary:  boundary,
		machine:   machine,
		accessLog: accessLog,
		store:     store,
		pdfConfig: pdfConfig,
		logger:    logger,
		metrics:   metrics,
	}
}

// actorID resolves the authenticated caller's numeric ID from context,
// set by the JWT middleware.
func actorID(ctx context.Context) (int64, bool) {
	raw, ok := middleware.GetUserID(ctx)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// HandleUpload parses an uploaded quotation PDF without persisting it.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.pdfConfig.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.pdfConfig.MaxUploadBytes); err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodeInvalidFile, "upload exceeds the allowed size", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodeInvalidFile, "no file field in upload", err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != s.pdfConfig.AllowedExt {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeInvalidFile, "only .pdf uploads are accepted"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodeInvalidFile, "failed to read upload", err))
		return
	}

	parsed, err := pdf.Parse(data)
	if s.metrics != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		s.metrics.RecordOrderParsed(ctx, result)
	}
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toParsedOrder(parsed))
}

type confirmItemRequest struct {
	ProductCode      string `json:"product_code"`
	ProductReference string `json:"product_reference"`
	ProductName      string `json:"product_name"`
	Quantity         int    `json:"quantity"`
	UnitPrice        string `json:"unit_price"`
	TotalPrice       string `json:"total_price"`
}

type confirmRequest struct {
	OrderNumber   string               `json:"order_number"`
	ClientName    string               `json:"client_name"`
	SellerName    string               `json:"seller_name"`
	OrderDate     string               `json:"order_date"`
	TotalValue    string               `json:"total_value"`
	Items         []confirmItemRequest `json:"items"`
	LogisticsType string               `json:"logistics_type"`
	PackageType   string               `json:"package_type"`
	Observations  string               `json:"observations"`
}

// HandleConfirm persists a previously parsed order, round-tripped from the
// upload response together with the operator's logistics/package choice.
func (s *Server) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "malformed confirm payload", err))
		return
	}

	logisticsType, ok := orders.NormalizeLogisticsType(req.LogisticsType)
	if !ok {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodePatternMiss, "unrecognized logistics_type"))
		return
	}
	packageType, ok := orders.NormalizePackageType(req.PackageType)
	if !ok {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodePatternMiss, "unrecognized package_type"))
		return
	}

	orderDate, err := pdf.ParseBRLDate(req.OrderDate)
	if err != nil {
		orderDate, err = time.Parse("2006-01-02", req.OrderDate)
	}
	if err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "could not parse order_date", err))
		return
	}

	totalValue, err := decimal.NewFromString(req.TotalValue)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "could not parse total_value", err))
		return
	}

	items := make([]pdf.RawItem, 0, len(req.Items))
	for _, item := range req.Items {
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "could not parse unit_price", err))
			return
		}
		totalPrice, err := decimal.NewFromString(item.TotalPrice)
		if err != nil {
			writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "could not parse item total_price", err))
			return
		}
		items = append(items, pdf.RawItem{
			ProductCode:      item.ProductCode,
			ProductReference: item.ProductReference,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        unitPrice,
			TotalPrice:       totalPrice,
		})
	}

	parsed := &pdf.ParsedOrder{
		OrderNumber: req.OrderNumber,
		ClientName:  req.ClientName,
		SellerName:  req.SellerName,
		OrderDate:   orderDate,
		TotalValue:  totalValue,
		Items:       items,
	}

	order, err := s.boundary.CreateOrder(ctx, parsed, logisticsType, packageType, req.Observations)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderSummary(order))
}

// HandleList returns a paginated, optionally status-filtered order list.
func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	perPage := 20
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	var status *orders.Status
	if v := q.Get("status"); v != "" {
		st := orders.Status(strings.ToUpper(v))
		status = &st
	}

	list, total, err := s.store.ListOrders(ctx, page, perPage, status)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	summaries := make([]orderSummaryDTO, 0, len(list))
	for _, o := range list {
		summaries = append(summaries, toOrderSummary(o))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":   summaries,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func orderIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// HandleGetSummary returns one order's summary fields.
func (s *Server) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeOrderNotFound, "invalid order id"))
		return
	}

	order, err := s.machine.Open(ctx, id)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderSummary(order))
}

// HandleGetDetail returns an order's full detail and opens an access-log
// session for the caller.
func (s *Server) HandleGetDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeOrderNotFound, "invalid order id"))
		return
	}

	order, err := s.machine.Open(ctx, id)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	if uid, ok := actorID(ctx); ok {
		if _, err := s.accessLog.Open(ctx, id, uid); err != nil {
			s.logger.Error(ctx, "failed to open access log", err)
		}
	}

	writeJSON(w, http.StatusOK, toOrderDetail(order))
}

type itemUpdateRequest struct {
	ItemID         int64  `json:"item_id"`
	IsSeparated    *bool  `json:"is_separated"`
	SentToPurchase *bool  `json:"sent_to_purchase"`
	NotSent        *bool  `json:"not_sent"`
	NotSentReason  string `json:"not_sent_reason"`
}

type batchUpdateRequest struct {
	Updates []itemUpdateRequest `json:"updates"`
}

// HandleBatchUpdate applies a batch of per-item facet changes.
func (s *Server) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeOrderNotFound, "invalid order id"))
		return
	}

	var req batchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, s.logger, apperr.Wrap(apperr.CodePatternMiss, "malformed batch payload", err))
		return
	}

	uid, _ := actorID(ctx)

	updates := make([]orders.ItemUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, orders.ItemUpdate{
			ItemID:         u.ItemID,
			IsSeparated:    u.IsSeparated,
			SentToPurchase: u.SentToPurchase,
			NotSent:        u.NotSent,
			NotSentReason:  u.NotSentReason,
		})
	}

	start := time.Now()
	order, err := s.boundary.ApplyBatch(ctx, id, updates, uid)
	if s.metrics != nil {
		s.metrics.RecordBatchApply(ctx, time.Since(start), len(updates))
	}
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetail(order))
}

// HandleSendToPurchase is the single-item convenience endpoint wrapping
// the same batch mechanism with one update.
func (s *Server) HandleSendToPurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	orderID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeOrderNotFound, "invalid order id"))
		return
	}
	itemID, err := strconv.ParseInt(vars["item_id"], 10, 64)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeItemNotInOrder, "invalid item id"))
		return
	}

	uid, _ := actorID(ctx)
	sendTrue := true

	order, err := s.boundary.ApplyBatch(ctx, orderID, []orders.ItemUpdate{
		{ItemID: itemID, SentToPurchase: &sendTrue},
	}, uid)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetail(order))
}

// HandleComplete applies the admin/separator manual-completion override.
func (s *Server) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := orderIDFromPath(r)
	if err != nil {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodeOrderNotFound, "invalid order id"))
		return
	}

	role, _ := middleware.GetUserRole(ctx)
	if !users.CanCompleteManually(role) {
		writeError(ctx, w, s.logger, apperr.New(apperr.CodePermissionDenied, "manual completion requires admin or separator role"))
		return
	}

	uid, _ := actorID(ctx)
	order, err := s.boundary.MarkCompleted(ctx, id, uid)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderSummary(order))
}

// HandleStats returns counters and averages across all orders.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandlePurchaseQueue returns the open purchase queue: purchase entries
// not yet marked completed.
func (s *Server) HandlePurchaseQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := s.store.ListPurchaseItems(ctx)
	if err != nil {
		writeError(ctx, w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}
