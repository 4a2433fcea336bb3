package httpapi

import (
	"errors"
	"net/http"

	"dressify/backend/internal/domain"
)

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		sales, err := a.service.ListSales(r.Context(), domain.SaleQuery{
			CustomerID: q.Get("customer_id"),
			Status:     q.Get("status"),
			SaleType:   q.Get("type"),
			From:       q.Get("from"),
			To:         q.Get("to"),
			Limit:      parsePositiveLimit(q.Get("limit"), 0, 0),
		})
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.CreateSaleRequest
		if !a.decodeBody(w, r, &req) {
			return
		}

		sale, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleSalesStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	stats, err := a.service.SalesStats(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// handleSaleActions serves /api/v1/sales/{id}, /{id}/items and /{id}/payments.
func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/api/v1/sales/")
	if len(parts) == 0 {
		a.writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}
	saleID := parts[0]

	if len(parts) == 2 {
		switch parts[1] {
		case "items":
			a.handleAppendItems(w, r, saleID)
		case "payments":
			a.handleAddPayment(w, r, saleID)
		default:
			a.writeError(w, http.StatusNotFound, errors.New("unknown sale action"))
		}
		return
	}
	if len(parts) > 2 {
		a.writeError(w, http.StatusNotFound, errors.New("unknown sale action"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), saleID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case http.MethodDelete:
		deletion, err := a.service.DeleteSale(r.Context(), saleID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deletion": deletion})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleAppendItems(w http.ResponseWriter, r *http.Request, saleID string) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.AppendItemsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	sale, err := a.service.AppendItems(r.Context(), saleID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleAddPayment(w http.ResponseWriter, r *http.Request, saleID string) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.PaymentRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	sale, err := a.service.AddPayment(r.Context(), saleID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}
