package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/coldfront-labs/coldfront/internal/auth"
	"github.com/coldfront-labs/coldfront/internal/ratelimit"
	"github.com/coldfront-labs/coldfront/internal/web/handlers"
	"github.com/coldfront-labs/coldfront/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	DraftHandler    *handlers.DraftHandler
	CampaignHandler *handlers.CampaignHandler
	SenderHandler   *handlers.SenderHandler
	KeyHandler      *handlers.KeyHandler
	EventsHandler   *handlers.EventsHandler
	TrackingHandler *handlers.TrackingHandler
	AuthService     *auth.Service
	Limiter         *ratelimit.Limiter
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)

	// Authenticated API (key auth, rate limited per caller)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(deps.AuthService))
		r.Use(middleware.RateLimit(deps.Limiter))

		r.Post("/keys", deps.KeyHandler.HandleCreateKey)
		r.Delete("/keys/{keyID}", deps.KeyHandler.HandleDeleteKey)

		r.Post("/senders", deps.SenderHandler.HandleCreateSender)
		r.Get("/senders", deps.SenderHandler.HandleListSenders)
		r.Get("/senders/capacity", deps.SenderHandler.HandleCapacity)
		r.Delete("/senders/{senderID}", deps.SenderHandler.HandleDeleteSender)

		r.Post("/drafts", deps.DraftHandler.HandleCreateDraft)
		r.Route("/drafts/{draftID}", func(r chi.Router) {
			r.Get("/", deps.DraftHandler.HandleGetDraft)
			r.Delete("/", deps.DraftHandler.HandleDiscardDraft)
			r.Put("/details", deps.DraftHandler.HandleUpdateDetails)
			r.Put("/senders", deps.DraftHandler.HandleSetSenders)
			r.Post("/contacts", deps.DraftHandler.HandleImportContacts)
			r.Delete("/contacts", deps.DraftHandler.HandleRemoveContact)
			r.Put("/sequence", deps.DraftHandler.HandleSetSequence)
			r.Put("/stage", deps.DraftHandler.HandleSetStage)
			r.Get("/duplicates", deps.DraftHandler.HandleDuplicates)
			r.Put("/overrides", deps.DraftHandler.HandleSetOverrides)
			r.Post("/verify", deps.DraftHandler.HandleVerifyContact)
			r.Post("/preview", deps.DraftHandler.HandlePreview)
			r.Get("/review", deps.DraftHandler.HandleReview)
			r.Post("/launch", deps.DraftHandler.HandleLaunch)
		})

		r.Get("/campaigns", deps.CampaignHandler.HandleListCampaigns)
		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Get("/", deps.CampaignHandler.HandleGetCampaign)
			r.Get("/sends", deps.CampaignHandler.HandleListSends)
			r.Post("/reallocate", deps.CampaignHandler.HandleReallocate)
		})
	})

	// Delivery feedback webhook, guarded by a static token.
	r.Post("/events/delivery", deps.EventsHandler.HandleDeliveryEvent)

	// Public open-tracking pixel. No auth: the URL's send UUID is the only
	// secret it carries.
	r.Get("/t/open/{sendID}.gif", deps.TrackingHandler.HandleOpenPixel)

	return r
}
