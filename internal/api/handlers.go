package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/distribution"
	"github.com/zsiec/mosaic/internal/ingest"
	srtingest "github.com/zsiec/mosaic/internal/ingest/srt"
	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/preview"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// lookupChannel resolves the {id} URL parameter, which may be a numeric
// channel ID or a channel name.
func (s *Server) lookupChannel(r *http.Request) (mixer.ChannelInfo, error) {
	key := chi.URLParam(r, "id")
	if id, err := strconv.Atoi(key); err == nil {
		return s.config.Engine.Channel(id)
	}
	if info, ok := s.config.Engine.ChannelByName(key); ok {
		return info, nil
	}
	return mixer.ChannelInfo{}, fmt.Errorf("%w: %q", mixer.ErrUnknownChannel, key)
}

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	channels := s.config.Engine.Channels()
	if channels == nil {
		channels = make([]mixer.ChannelInfo, 0)
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	info, err := s.lookupChannel(r)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	info, err := s.lookupChannel(r)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	var props mixer.Props
	if err := decodeBody(w, r, &props); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.config.Engine.Update(info.ID, props); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	s.log.Info("channel updated", "id", info.ID, "name", info.Name)

	updated, err := s.config.Engine.Channel(info.ID)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// seekRequest is the JSON body of POST /api/seek. Start and Stop are Go
// duration strings; an absent value keeps the current one and a Stop of
// "none" removes the stop position.
type seekRequest struct {
	Rate  float64 `json:"rate"`
	Flush bool    `json:"flush"`
	Start string  `json:"start,omitempty"`
	Stop  string  `json:"stop,omitempty"`
}

func (req seekRequest) toEngine() (mixer.SeekRequest, error) {
	out := mixer.SeekRequest{
		Rate:      req.Rate,
		StartType: clock.SeekTypeNone,
		Start:     clock.None,
		StopType:  clock.SeekTypeNone,
		Stop:      clock.None,
	}
	if out.Rate == 0 {
		out.Rate = 1
	}
	if req.Flush {
		out.Flags |= clock.SeekFlagFlush
	}
	if req.Start != "" {
		d, err := time.ParseDuration(req.Start)
		if err != nil || d < 0 {
			return out, fmt.Errorf("invalid start %q", req.Start)
		}
		out.StartType, out.Start = clock.SeekTypeSet, clock.FromDuration(d)
	}
	switch req.Stop {
	case "":
	case "none":
		out.StopType = clock.SeekTypeSet
	default:
		d, err := time.ParseDuration(req.Stop)
		if err != nil || d < 0 {
			return out, fmt.Errorf("invalid stop %q", req.Stop)
		}
		out.StopType, out.Stop = clock.SeekTypeSet, clock.FromDuration(d)
	}
	return out, nil
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seek, err := req.toEngine()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.config.Engine.Seek(seek); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	s.log.Info("seek", "rate", seek.Rate, "flush", req.Flush, "start", req.Start, "stop", req.Stop)
	writeJSON(w, http.StatusOK, s.config.Engine.Stats().Segment)
}

func (s *Server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	s.config.Engine.Flush()
	s.log.Info("flush")
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// qosRequest is downstream lateness feedback. Diff and Timestamp are in
// nanoseconds; Timestamp is the running time of the measured frame.
type qosRequest struct {
	Proportion float64 `json:"proportion"`
	Diff       int64   `json:"diff"`
	Timestamp  int64   `json:"timestamp"`
}

func (s *Server) handleQoS(w http.ResponseWriter, r *http.Request) {
	var req qosRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Proportion < 0 || math.IsNaN(req.Proportion) || math.IsInf(req.Proportion, 0) {
		writeError(w, http.StatusBadRequest, "proportion must be a non-negative number")
		return
	}
	ts := clock.Time(req.Timestamp)
	if req.Timestamp < 0 {
		ts = clock.None
	}
	s.config.Engine.UpdateQoS(req.Proportion, req.Diff, ts)
	writeJSON(w, http.StatusOK, s.config.Engine.Stats().QoS)
}

type statsResponse struct {
	Engine mixer.Stats               `json:"engine"`
	Relay  *distribution.RelayStats  `json:"relay,omitempty"`
	Ingest []ingest.IngestStats      `json:"ingest,omitempty"`
	Egress []distribution.EgressInfo `json:"egress,omitempty"`
	Pulls  []srtingest.PullRequest   `json:"pulls,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Engine: s.config.Engine.Stats()}
	if s.config.Relay != nil {
		rs := s.config.Relay.Stats()
		resp.Relay = &rs
	}
	if s.config.Ingest != nil {
		resp.Ingest = s.config.Ingest()
	}
	if s.config.EgressList != nil {
		resp.Egress = s.config.EgressList()
	}
	if s.config.PullList != nil {
		resp.Pulls = s.config.PullList()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	if s.config.Snapshot == nil {
		writeError(w, http.StatusNotImplemented, "preview not configured")
		return
	}
	data, err := s.config.Snapshot()
	if errors.Is(err, preview.ErrNoFrame) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type certHashResponse struct {
	Hash       string `json:"hash"`
	Addr       string `json:"addr"`
	SelfSigned bool   `json:"selfSigned"`
	NotAfter   string `json:"notAfter"`
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, certHashResponse{
		Hash:       s.config.Cert.FingerprintBase64(),
		Addr:       s.config.Addr,
		SelfSigned: s.config.Cert.SelfSigned,
		NotAfter:   s.config.Cert.NotAfter.Format(time.RFC3339),
	})
}

func (s *Server) handleListIngest(w http.ResponseWriter, _ *http.Request) {
	if s.config.Ingest == nil {
		writeJSON(w, http.StatusOK, []ingest.IngestStats{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.Ingest())
}

// SECURITY: The pull and egress endpoints accept arbitrary addresses, which
// could be used for SSRF if exposed to untrusted clients. Restrict the API
// to operators or internal networks.
func (s *Server) handlePullList(w http.ResponseWriter, _ *http.Request) {
	if s.config.PullList == nil {
		writeJSON(w, http.StatusOK, []srtingest.PullRequest{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.PullList())
}

func (s *Server) handlePullCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.Pull == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	var req srtingest.PullRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.config.Pull(req); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, srtingest.ErrInvalidPull):
			status = http.StatusBadRequest
		case errors.Is(err, srtingest.ErrChannelBusy):
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pulling", "channel": req.Channel})
}

func (s *Server) handlePullStop(w http.ResponseWriter, r *http.Request) {
	if s.config.PullStop == nil {
		writeError(w, http.StatusNotImplemented, "SRT pull not configured")
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel query parameter required")
		return
	}
	if err := s.config.PullStop(channel); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "channel": channel})
}

func (s *Server) handleEgressList(w http.ResponseWriter, _ *http.Request) {
	if s.config.EgressList == nil {
		writeJSON(w, http.StatusOK, []distribution.EgressInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.config.EgressList())
}

func (s *Server) handleEgressCreate(w http.ResponseWriter, r *http.Request) {
	if s.config.Egress == nil {
		writeError(w, http.StatusNotImplemented, "SRT egress not configured")
		return
	}
	var req distribution.EgressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := s.config.Egress(req); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "streaming", "address": req.Address})
}

func (s *Server) handleEgressStop(w http.ResponseWriter, r *http.Request) {
	if s.config.EgressStop == nil {
		writeError(w, http.StatusNotImplemented, "SRT egress not configured")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id query parameter required")
		return
	}
	if err := s.config.EgressStop(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "id": id})
}
