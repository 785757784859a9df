package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router serves the status API and, when enabled, /metrics.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", a.HandleStatus)
	r.Get("/devices", a.HandleDevices)
	r.Get("/devices/{sn}", a.HandleDeviceDetail)
	r.Post("/api/devices/{sn}/report", a.HandlePostReport)
	if a.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{}))
	}
	return r
}

type deviceStatus struct {
	Vendor       string         `json:"vendor"`
	Model        string         `json:"model"`
	SerialNumber string         `json:"sn"`
	Values       map[string]any `json:"values"`
}

func (a *App) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    a.Client.State().String(),
		"session":  a.Client.SessionID(),
		"endpoint": a.Client.Endpoint(),
		"devices":  len(a.Client.Devices()),
	})
}

func (a *App) HandleDevices(w http.ResponseWriter, r *http.Request) {
	list := a.Registery.List()
	out := make([]deviceStatus, 0, len(list))
	for _, t := range list {
		out = append(out, a.deviceStatus(r, t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) HandleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	t, ok := a.Registery.Get(chi.URLParam(r, "sn"))
	if !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a.deviceStatus(r, t))
}

// HandlePostReport pushes the device's current report to the server's HTTP
// report endpoint.
func (a *App) HandlePostReport(w http.ResponseWriter, r *http.Request) {
	t, ok := a.Registery.Get(chi.URLParam(r, "sn"))
	if !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	report, err := t.GetReport(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := a.Client.PostReport(r.Context(), t.Device(), report); err != nil {
		a.logger.Warn("Report upload failed", "device", t.Device().Identity().String(), "error", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) deviceStatus(r *http.Request, t *Thermostat) deviceStatus {
	d := t.Device()
	values, _ := t.GetParameterValues(r.Context(), nil)
	return deviceStatus{
		Vendor:       d.Vendor(),
		Model:        d.Model(),
		SerialNumber: d.SerialNumber(),
		Values:       values,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
