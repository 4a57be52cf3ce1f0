package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"github.com/cwsl/ultron/qso"
)

// NewAPIHandler exposes the command set as JSON over HTTP.
//
//	GET  /api/status
//	GET  /api/dxcc?call=
//	GET  /api/worked?call=
//	POST /api/qso        {"call": "...", "band": "...", "mode": "...", "grid": "..."}
//	GET  /api/unworked?band=20m,40m&mode=strict&format=yaml
func NewAPIHandler(cmds *Commands) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cmds.GetStatus(GetStatusRequest{}))
	})

	mux.HandleFunc("GET /api/dxcc", func(w http.ResponseWriter, r *http.Request) {
		resp, err := cmds.GetDXCCInfo(DXCCInfoRequest{Call: r.URL.Query().Get("call")})
		respond(w, resp, err)
	})

	mux.HandleFunc("GET /api/worked", func(w http.ResponseWriter, r *http.Request) {
		resp, err := cmds.IsWorked(IsWorkedRequest{Call: r.URL.Query().Get("call")})
		respond(w, resp, err)
	})

	mux.HandleFunc("POST /api/qso", func(w http.ResponseWriter, r *http.Request) {
		var req LogQSORequest
		r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidArgument, err))
			return
		}
		resp, err := cmds.LogQSO(req)
		respond(w, resp, err)
	})

	mux.HandleFunc("GET /api/unworked", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		asYAML := q.Get("format") == "yaml"
		req := UnworkedRequest{
			Mode:      q.Get("mode"),
			Whitelist: asYAML || q.Get("whitelist") == "true",
		}
		for _, v := range q["band"] {
			for _, band := range strings.Split(v, ",") {
				if band = strings.TrimSpace(band); band != "" {
					req.Bands = append(req.Bands, band)
				}
			}
		}
		resp, err := cmds.Unworked(req)
		if err != nil || !asYAML {
			respond(w, resp, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="whitelist.yaml"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(resp.Whitelist))
	})

	return gzhttp.GzipHandler(mux)
}

func respond(w http.ResponseWriter, resp any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, qso.ErrInvalidCallsign):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: error encoding response: %v", err)
	}
}
