package server

import "net/http"

// setupRoutes wires the HTTP surface.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Download API
	mux.HandleFunc("/download", s.app.DownloadHandler.DownloadHandler)        // POST - run a download
	mux.HandleFunc("/download/status", s.app.DownloadHandler.StatusHandler)   // GET - health snapshot
	mux.HandleFunc("/download/history", s.app.DownloadHandler.HistoryHandler) // GET - recent run summaries
	mux.HandleFunc("/download/test", s.app.DownloadHandler.TestHandler)       // POST - readiness probe
	mux.HandleFunc("/download/login", s.app.DownloadHandler.LoginHandler)     // POST - manual login capture

	// Interactive sessions
	mux.HandleFunc("/session/start", s.app.SessionHandler.StartHandler)    // POST - provision session
	mux.HandleFunc("/session/", s.app.SessionHandler.SessionRoutesHandler) // GET bridge, POST complete/fail

	return mux
}
