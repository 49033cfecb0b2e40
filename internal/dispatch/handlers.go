package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

type orderRequest struct {
	OrderID    string `json:"orderId"`
	SubOrderID string `json:"subOrderId"`
}

func (r orderRequest) key() Key {
	return Key{OrderID: r.OrderID, SubOrderID: r.SubOrderID}
}

type scanRequest struct {
	orderRequest
	ProductCode string          `json:"productCode"`
	Quantity    decimal.Decimal `json:"quantity"`
	LabelID     string          `json:"labelId"`
}

type resetRequest struct {
	orderRequest
	ProductCode string `json:"productCode"`
}

type assignRequest struct {
	orderRequest
	PreparerCode string `json:"preparerCode"`
	PreparerName string `json:"preparerName"`
}

// response is the envelope of every JSON reply
type response struct {
	Msg            string  `json:"msg,omitempty"`
	Detail         []Line  `json:"detail,omitempty"`
	Total          *int    `json:"total,omitempty"`
	Header         *Header `json:"header,omitempty"`
	ElapsedMinutes *int    `json:"elapsedMinutes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Msg: msg})
}

// statusFor maps service errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPreparerMissing), errors.Is(err, ErrDuplicateLabel):
		return http.StatusConflict
	case errors.Is(err, ErrOverpick),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrAlreadyStarted),
		errors.Is(err, ErrAlreadyFinished):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the status for err. Internal errors are
// logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Error handling request", "method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"), "error", err)
		writeError(w, status, "Internal server error")
		return
	}
	slog.Warn("Request refused", "method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"), "error", err)
	writeError(w, status, rootMessage(err))
}

// rootMessage returns the message of the service sentinel in err
func rootMessage(err error) string {
	for _, sentinel := range []error{
		ErrOverpick, ErrNotStarted, ErrAlreadyStarted, ErrAlreadyFinished,
		ErrPreparerMissing, ErrDuplicateLabel, ErrItemNotFound, ErrOrderNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		slog.Error("Error decoding request", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func queryKey(r *http.Request) Key {
	q := r.URL.Query()
	return Key{OrderID: q.Get("orderId"), SubOrderID: q.Get("subOrderId")}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Msg: "OK"})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.service.ListOrders()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleImportOrder(w http.ResponseWriter, r *http.Request) {
	var order Order
	if !decodeBody(w, r, &order) {
		return
	}
	if err := s.service.ImportOrder(&order); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	lines, err := s.service.Detail(queryKey(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	total := len(lines)
	writeJSON(w, http.StatusOK, response{Detail: lines, Total: &total})
}

func (s *Server) handleHeader(w http.ResponseWriter, r *http.Request) {
	header, err := s.service.Header(queryKey(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Header: header})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lines, err := s.service.Scan(req.key(), req.ProductCode, req.Quantity, req.LabelID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "OK", Detail: lines})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lines, err := s.service.Reset(req.key(), req.ProductCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "OK", Detail: lines})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	header, err := s.service.AssignPreparer(req.key(), req.PreparerCode, req.PreparerName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "Preparer assigned", Header: header})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	header, err := s.service.Start(req.key())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "Preparation started", Header: header})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	header, err := s.service.Finish(req.key())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "Preparation finished", Header: header, ElapsedMinutes: header.ElapsedMinutes})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.service.Close(req.key()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Msg: "Order closed"})
}
