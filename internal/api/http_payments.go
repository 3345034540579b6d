package api

import (
	"net/http"

	"fixit/internal/models"
	"fixit/internal/service"
)

type manualPaymentRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
	Method string   `json:"method"`
}

type verifyPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

func (s *HTTPServer) handlePaymentIntent(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	intent, err := s.backend.Payments.CreatePaymentIntent(r.Context(), id, p.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *HTTPServer) handleManualPayment(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req manualPaymentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	payment, err := s.backend.Payments.RecordManualPayment(r.Context(), p, id, req.Amount, req.Method)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (s *HTTPServer) handlePaymentStatus(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.backend.Payments.PaymentStatus(r.Context(), p, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request, p models.Principal) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req verifyPaymentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	payment, err := s.backend.Payments.VerifyPayment(r.Context(), id, p.UserID, service.SignaturePayload{
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}
