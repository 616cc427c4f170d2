package api

import (
	"net/http"

	"github.com/go-chi/render"
)

func healthHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
