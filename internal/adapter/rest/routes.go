package rest

import "github.com/go-chi/chi/v5"

func (s *Handler) routes() {
	s.router.Route("/api/wallet", func(r chi.Router) {
		r.Post("/create", s.createWallet)
		r.Post("/import", s.importWallet)
		r.Get("/", s.listWallets)
		r.Get("/{address}", s.getWallet)
		r.Post("/{address}/export", s.exportWallet)
		r.Post("/{address}/passphrase", s.changePassphrase)
		r.Post("/{address}/disable", s.disableWallet)
		if s.cfg.AdminToken != "" {
			r.Post("/{address}/credit", s.creditWallet)
		}
	})

	s.router.Route("/api/tx", func(r chi.Router) {
		r.Post("/send", s.sendTransfer)
		r.Get("/recent", s.recentTransfers)
		r.Get("/history/{address}", s.transferHistory)
		r.Get("/{hash}", s.getTransfer)
	})

	// Маршрут для WebSocket
	if s.hub != nil {
		s.router.Get("/ws/transfers", s.transferFeed)
	}

	if s.metrics != nil {
		s.router.Method("GET", "/metrics", s.metrics.Handler())
	}
	s.router.Get("/health", s.health)
}
