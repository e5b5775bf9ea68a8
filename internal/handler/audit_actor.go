package handler

import (
	"net/http"

	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
)

func actorFromRequest(r *http.Request) model.Actor {
	actor := model.Actor{IP: middleware.ClientIP(r)}

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		actor.UserID = claims.UserID()
	}

	return actor
}
