package telephony

import (
	"fmt"

	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/observability"
)

// NewProvider constructs the configured telephony provider. The selection
// happens once at process start; the returned instance is injected into the
// gateway and call flow rather than looked up per request.
func NewProvider(cfg *config.Config, logger *observability.Logger) (Provider, error) {
	switch ProviderName(cfg.Telephony.Provider) {
	case ProviderTwilio:
		return NewTwilioProvider(TwilioOptions{
			AccountSID:    cfg.Telephony.Twilio.AccountSID,
			AuthToken:     cfg.Telephony.Twilio.AuthToken,
			FromNumber:    cfg.Telephony.Twilio.FromNumber,
			PublicBaseURL: cfg.Server.PublicBaseURL,
			SkipVerify:    cfg.Telephony.DebugSkipVerify,
			Logger:        logger,
		})
	case ProviderExotel:
		return NewExotelProvider(ExotelOptions{
			APIKey:        cfg.Telephony.Exotel.APIKey,
			APIToken:      cfg.Telephony.Exotel.APIToken,
			Subdomain:     cfg.Telephony.Exotel.Subdomain,
			AccountSID:    cfg.Telephony.Exotel.AccountSID,
			FromNumber:    cfg.Telephony.Exotel.FromNumber,
			PublicBaseURL: cfg.Server.PublicBaseURL,
			SkipVerify:    cfg.Telephony.DebugSkipVerify,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("telephony: unknown provider %q", cfg.Telephony.Provider)
	}
}
