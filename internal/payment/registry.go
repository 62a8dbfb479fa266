package payment

import (
	"sort"

	"github.com/shinyyama/novelshelf-backend/internal/config"
	"go.uber.org/zap"
)

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[name]
	return g, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig wires every configured provider. An unconfigured
// provider is replaced by a Dummy only when ALLOW_DUMMY_GATEWAY is set.
func NewRegistryFromConfig(cfg *config.Config, logger *zap.Logger) *Registry {
	candidates := []Gateway{
		NewPayPal(PayPalOptions{
			ClientID:  cfg.PayPal.ClientID,
			Secret:    cfg.PayPal.Secret,
			BaseURL:   cfg.PayPal.BaseURL,
			WebhookID: cfg.PayPal.WebhookID,
			Timeout:   cfg.GatewayTimeout,
		}),
		NewCrypto(CryptoOptions{
			APIKey:    cfg.Crypto.APIKey,
			IPNSecret: cfg.Crypto.IPNSecret,
			BaseURL:   cfg.Crypto.BaseURL,
			Timeout:   cfg.GatewayTimeout,
		}),
		NewMidtrans(MidtransOptions{
			ServerKey:  cfg.Midtrans.ServerKey,
			Production: cfg.Midtrans.Production,
			IDRPerUSD:  cfg.Midtrans.IDRPerUSD,
		}),
	}
	var wired []Gateway
	for _, g := range candidates {
		switch {
		case g.IsConfigured():
			wired = append(wired, g)
		case cfg.AllowDummyGateway:
			logger.Warn("payment provider not configured; using sandbox dummy gateway", zap.String("provider", g.Name()))
			wired = append(wired, NewDummy(g.Name()))
		default:
			logger.Info("payment provider disabled", zap.String("provider", g.Name()))
		}
	}
	return NewRegistry(wired...)
}
