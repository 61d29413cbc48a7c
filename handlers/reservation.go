package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	catalogRepo "staybook/database/repository/catalog"
	"staybook/middleware"
	"staybook/models"
	"staybook/services/booking"
	"staybook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReservationHandler exposes the reservation core over HTTP.
type ReservationHandler struct {
	Service booking.ReservationService
	Catalog catalogRepo.ServiceCatalog
}

func NewReservationHandler(service booking.ReservationService, catalog catalogRepo.ServiceCatalog) *ReservationHandler {
	return &ReservationHandler{Service: service, Catalog: catalog}
}

type decisionRequest struct {
	Decision models.ReservationStatus `json:"decision" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type refundRequest struct {
	RefundType models.RefundType `json:"refundType" binding:"required"`
	Amount     *int64            `json:"amount"`
}

type extensionRequest struct {
	NewCheckOut time.Time `json:"newCheckOut" binding:"required"`
}

type resolveExtensionRequest struct {
	Action           models.ExtensionStatus `json:"action" binding:"required"`
	PaymentMethodRef string                 `json:"paymentMethodRef"`
}

// CheckAvailabilityHandler handles GET /availability?serviceId=&checkIn=&checkOut=.
func (h *ReservationHandler) CheckAvailabilityHandler(c *gin.Context) {
	serviceID := c.Query("serviceId")
	checkIn, err1 := parseTime(c.Query("checkIn"))
	checkOut, err2 := parseTime(c.Query("checkOut"))
	if err := errors.Join(err1, err2); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid dates", err.Error())
		return
	}

	free, err := h.Service.CheckAvailability(c.Request.Context(), serviceID, checkIn, checkOut)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"serviceId": serviceID, "checkIn": checkIn, "checkOut": checkOut, "available": free})
}

// CreateReservationHandler handles POST /reservations for the calling customer.
func (h *ReservationHandler) CreateReservationHandler(c *gin.Context) {
	var in booking.CreateReservationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	in.CustomerID = middleware.ViewerFrom(c).UserID

	r, err := h.Service.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	getLogger(c).Info("reservation created", zap.String("reservationId", r.ID))
	c.JSON(http.StatusCreated, r)
}

// GetReservationHandler handles GET /reservations/:id.
func (h *ReservationHandler) GetReservationHandler(c *gin.Context) {
	r, ok := h.loadVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListReservationsHandler handles GET /reservations with optional status,
// serviceId, from, to, search, page and limit query parameters.
func (h *ReservationHandler) ListReservationsHandler(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}
	var page models.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid paging", err.Error())
		return
	}

	res, err := h.Service.ListReservations(c.Request.Context(), middleware.ViewerFrom(c), filter, page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UpcomingReservationsHandler handles GET /reservations/upcoming.
func (h *ReservationHandler) UpcomingReservationsHandler(c *gin.Context) {
	var page models.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid paging", err.Error())
		return
	}
	res, err := h.Service.Upcoming(c.Request.Context(), middleware.ViewerFrom(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DecideHandler handles POST /reservations/:id/decision by the owning vendor.
func (h *ReservationHandler) DecideHandler(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if _, ok := h.loadManaged(c); !ok {
		return
	}

	r, err := h.Service.Decide(c.Request.Context(), c.Param("id"), req.Decision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// RequestCancellationHandler handles POST /reservations/:id/cancel-request.
func (h *ReservationHandler) RequestCancellationHandler(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}

	r, err := h.Service.RequestCancellation(c.Request.Context(), c.Param("id"), middleware.ViewerFrom(c).UserID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// RefundHandler handles POST /reservations/:id/refund by the owning vendor.
func (h *ReservationHandler) RefundHandler(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if _, ok := h.loadManaged(c); !ok {
		return
	}

	r, err := h.Service.Refund(c.Request.Context(), c.Param("id"), req.RefundType, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// RequestExtensionHandler handles POST /reservations/:id/extension.
func (h *ReservationHandler) RequestExtensionHandler(c *gin.Context) {
	var req extensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	r, err := h.Service.RequestExtension(c.Request.Context(), c.Param("id"), middleware.ViewerFrom(c).UserID, req.NewCheckOut)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ResolveExtensionHandler handles POST /reservations/:id/extension/resolve by
// the owning vendor.
func (h *ReservationHandler) ResolveExtensionHandler(c *gin.Context) {
	var req resolveExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if _, ok := h.loadManaged(c); !ok {
		return
	}

	r, err := h.Service.ResolveExtension(c.Request.Context(), c.Param("id"), req.Action, req.PaymentMethodRef)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// VendorStatsHandler handles GET /vendors/:vendorId/stats.
func (h *ReservationHandler) VendorStatsHandler(c *gin.Context) {
	vendorID := c.Param("vendorId")
	viewer := middleware.ViewerFrom(c)
	if viewer.Role != models.RoleAdmin && viewer.UserID != vendorID {
		utils.JSONError(c, http.StatusForbidden, "Forbidden", "vendors may only read their own stats")
		return
	}

	stats, err := h.Service.VendorStats(c.Request.Context(), vendorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// loadVisible fetches the reservation named by :id if the caller may see it.
func (h *ReservationHandler) loadVisible(c *gin.Context) (*models.Reservation, bool) {
	r, err := h.Service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	viewer := middleware.ViewerFrom(c)
	switch viewer.Role {
	case models.RoleAdmin:
		return r, true
	case models.RoleCustomer:
		if r.CustomerID == viewer.UserID {
			return r, true
		}
	case models.RoleVendor:
		if h.ownsService(c, viewer.UserID, r.ServiceID) {
			return r, true
		}
	}
	// Hide existence from callers who may not see it.
	utils.JSONError(c, http.StatusNotFound, "Reservation not found", "")
	return nil, false
}

// loadManaged is loadVisible restricted to the owning vendor or an admin.
func (h *ReservationHandler) loadManaged(c *gin.Context) (*models.Reservation, bool) {
	r, ok := h.loadVisible(c)
	if !ok {
		return nil, false
	}
	if middleware.ViewerFrom(c).Role == models.RoleCustomer {
		utils.JSONError(c, http.StatusForbidden, "Forbidden", "only the service's vendor can do this")
		return nil, false
	}
	return r, true
}

func (h *ReservationHandler) ownsService(c *gin.Context, vendorID, serviceID string) bool {
	owner, err := h.Catalog.VendorOf(c.Request.Context(), serviceID)
	if err != nil {
		getLogger(c).Warn("service owner lookup failed", zap.String("serviceId", serviceID), zap.Error(err))
		return false
	}
	return owner == vendorID
}

func filterFromQuery(c *gin.Context) (models.ReservationFilter, error) {
	f := models.ReservationFilter{
		Search: strings.TrimSpace(c.Query("search")),
	}
	for _, s := range c.QueryArray("status") {
		f.Statuses = append(f.Statuses, models.ReservationStatus(s))
	}
	f.ServiceIDs = c.QueryArray("serviceId")
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch booking.KindOf(err) {
	case booking.KindValidation:
		status = http.StatusBadRequest
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindAuthorization:
		status = http.StatusForbidden
	case booking.KindConflict:
		status = http.StatusConflict
	case booking.KindPayment:
		status = http.StatusPaymentRequired
	}

	var be *booking.Error
	if errors.As(err, &be) {
		details := ""
		if status == http.StatusInternalServerError {
			getLogger(c).Error("reservation request failed", zap.Error(err))
		} else if be.Err != nil && status != http.StatusPaymentRequired {
			details = be.Err.Error()
		}
		utils.JSONError(c, status, be.Message, details)
		return
	}
	getLogger(c).Error("unexpected error", zap.Error(err))
	utils.JSONError(c, status, "Internal Server Error", "")
}
