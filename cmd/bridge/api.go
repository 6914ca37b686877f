package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kosmoslabs/uartbridge/internal/dispatcher"
	"github.com/kosmoslabs/uartbridge/internal/poecanable"
	"github.com/kosmoslabs/uartbridge/internal/portctl"
	"github.com/kosmoslabs/uartbridge/internal/protoerr"
	"github.com/kosmoslabs/uartbridge/internal/simpleserial"
)

// serialConfigJSON mirrors the command surface's SerialConfig shape (§6):
// data_bits/flow_control/parity/stop_bits are the numeric codes, not enum
// names, so the dispatcher's portctl.Config validation is the single
// authority on what is accepted.
type serialConfigJSON struct {
	Path             string  `json:"path"`
	BaudRate         int     `json:"baud_rate"`
	DataBits         uint32  `json:"data_bits"`
	FlowControl      uint32  `json:"flow_control"`
	Parity           uint32  `json:"parity"`
	StopBits         uint32  `json:"stop_bits"`
	TimeoutMS        *uint64 `json:"timeout,omitempty"`
	Protocol         string  `json:"protocol"`
	CANBitrate       string  `json:"can_bitrate,omitempty"`
	CANFDBitrate     string  `json:"canfd_bitrate,omitempty"`
	CANFDDataBitrate string  `json:"canfd_data_bitrate,omitempty"`
}

type sendRequest struct {
	Protocol    string                     `json:"protocol"`
	Path        string                     `json:"path"`
	SimpleData  *simpleserial.Command      `json:"simple_serial,omitempty"`
	POEData     *dispatcher.POESerialCommand `json:"poe_serial,omitempty"`
	CANData     *poecanable.Command        `json:"poe_canable,omitempty"`
}

type apiServer struct {
	d *dispatcher.Dispatcher
	l *slog.Logger
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if protoerr.Kind(err) == "config" || protoerr.Kind(err) == "parse" {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (a *apiServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var cfg serialConfigJSON
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeErr(w, err)
		return
	}
	req := dispatcher.ConnectRequest{
		Path:     cfg.Path,
		Protocol: cfg.Protocol,
		Cfg: portctl.Config{
			BaudRate:  cfg.BaudRate,
			DataBits:  cfg.DataBits,
			FlowCtrl:  cfg.FlowControl,
			Parity:    cfg.Parity,
			StopBits:  cfg.StopBits,
			TimeoutMS: cfg.TimeoutMS,
		},
		CANBitrate:       cfg.CANBitrate,
		CANFDDataBitrate: cfg.CANFDDataBitrate,
	}
	if err := a.d.ConnectSerialPort(req); err != nil {
		a.l.Warn("connect_failed", "path", cfg.Path, "error", err)
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"path": cfg.Path})
}

func (a *apiServer) handleClose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err)
		return
	}
	if err := a.d.CloseSerialPort(body.Path); err != nil {
		a.l.Warn("close_failed", "path", body.Path, "error", err)
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleHardRestart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err)
		return
	}
	if err := a.d.HardRestart(body.Path); err != nil {
		a.l.Warn("hard_restart_failed", "path", body.Path, "error", err)
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err)
		return
	}
	if err := a.d.ProcessDataSending(req.Path, req.SimpleData, req.POEData, req.CANData); err != nil {
		a.l.Warn("send_failed", "path", req.Path, "error", err)
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func registerAPI(mux *http.ServeMux, d *dispatcher.Dispatcher, l *slog.Logger) {
	a := &apiServer{d: d, l: l}
	mux.HandleFunc("/api/connect", a.handleConnect)
	mux.HandleFunc("/api/close", a.handleClose)
	mux.HandleFunc("/api/hard_restart", a.handleHardRestart)
	mux.HandleFunc("/api/send", a.handleSend)
}
