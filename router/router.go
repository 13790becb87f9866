package router

import (
	"net/http"

	"mocksync/middleware"
	"mocksync/socket"

	"github.com/gorilla/mux"
)

func Setup(hub *socket.Hub, jwtSecret string) http.Handler {
	r := mux.NewRouter()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserID(r.Context()))
	})
	r.Handle("/ws", middleware.AuthMiddleware(jwtSecret)(wsHandler)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return middleware.CORSMiddleware(r)
}
