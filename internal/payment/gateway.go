package payment

import (
	"fmt"

	"fixit/internal/config"
	"fixit/internal/domain"
)

// New builds the gateway selected by cfg.Mode.
func New(cfg config.PaymentConfig) (domain.PaymentGateway, error) {
	switch cfg.Mode {
	case config.PaymentModeOnline:
		return NewRazorpayGateway(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, cfg.Timeout), nil
	case config.PaymentModeOffline, "":
		return NewOfflineGateway(cfg.KeyID, cfg.KeySecret), nil
	default:
		return nil, fmt.Errorf("unknown payment mode %q", cfg.Mode)
	}
}
