package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contemplaapp/contempla-backend/api/controllers"
	"github.com/contemplaapp/contempla-backend/api/middleware"
	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/internal/payments"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/internal/referral"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	pkgredis "github.com/contemplaapp/contempla-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	planService plans.Service,
	referralService referral.Service,
	groupService groups.Service,
	paymentService payments.Service,
	ledgerService ledger.Service,
	commissionService commission.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var redisP pkgredis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.WriteRateLimit(cfg.RateLimit, redisClient, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", controllers.CreatePlan(planService, logg))
			r.Get("/", controllers.ListPlans(planService, logg))
			r.Get("/{planID}", controllers.GetPlan(planService, logg))
		})

		r.Get("/referrals/{code}", controllers.ResolveReferralCode(referralService, logg))
		r.Post("/enrollments", controllers.Enroll(referralService, logg))

		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Get("/", controllers.GetGroup(groupService, logg))
			r.Get("/participants", controllers.ListGroupParticipants(groupService, logg))
		})

		r.Route("/participants/{participantID}", func(r chi.Router) {
			r.Get("/", controllers.GetParticipant(groupService, logg))
			r.Post("/pay-with-credits", controllers.PayWithCredits(paymentService, logg))
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/balance", controllers.GetBalance(ledgerService, logg))
			r.Get("/transactions", controllers.ListTransactions(ledgerService, logg))
			r.Post("/withdrawals", controllers.Withdraw(ledgerService, logg))
		})

		r.Get("/commissions", controllers.ListCommissions(commissionService, logg))

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payment", controllers.PaymentWebhook(paymentService, logg))
		})
	})

	return r
}
