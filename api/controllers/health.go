package controllers

import (
	"net/http"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	pkgerrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	pkgredis "github.com/contemplaapp/contempla-backend/pkg/redis"
)

const envHeader = "X-Contempla-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pkgredis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
