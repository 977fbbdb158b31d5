// handlers.go - request/response handling for the IoTSentry API
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"iotsentry/core/contracts"
	"iotsentry/core/identity"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeStrict decodes a JSON body rejecting unknown fields, so a typo'd
// constraint key is an error instead of a silently ignored grant widening.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HandleChainValidate responds to GET /api/chain/validate.
func (s *Server) HandleChainValidate(w http.ResponseWriter, r *http.Request) {
	result := s.chain.Validate()
	status := http.StatusOK
	if !result.OK {
		// Chain corruption is a system-health-critical condition.
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// HandleChainInfo responds to GET /api/chain/info with chain statistics.
func (s *Server) HandleChainInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.GetInfo())
}

// HandleHistory responds to GET /api/history?did=&device=&kind=&limit=.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{
		DID:      q.Get("did"),
		DeviceID: q.Get("device"),
		Kind:     tx.Kind(q.Get("kind")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, tx.ErrInvalidKind)
		return
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	txs := s.chain.History(filter).Collect(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs, "count": len(txs)})
}

type accessRequestBody struct {
	DID      string `json:"did"`
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
	IP       string `json:"ip,omitempty"`
	Location string `json:"location,omitempty"`
}

// HandleAccessRequest responds to POST /api/access/request.
func (s *Server) HandleAccessRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body accessRequestBody
	if err := decodeStrict(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rc := identity.RequestContext{Time: time.Now(), IP: body.IP, Location: body.Location}
	result, err := s.manager.RequestDeviceAccess(r.Context(), body.DID, body.DeviceID, body.Action, rc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusOK, result)
}

type grantBody struct {
	TargetDID     string                `json:"targetDid"`
	DeviceID      string                `json:"deviceId"`
	Actions       []string              `json:"actions"`
	DurationHours int                   `json:"durationHours"`
	Constraints   *identity.Constraints `json:"constraints,omitempty"`
}

// HandlePermissionGrant responds to POST /api/permissions/grant.
func (s *Server) HandlePermissionGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body grantBody
	if err := decodeStrict(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.manager.GrantDeviceAccess(body.TargetDID, body.DeviceID, body.Actions, body.DurationHours, body.Constraints)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrUnknownDID) || errors.Is(err, identity.ErrInvalidConstraint) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type revokeBody struct {
	TargetDID string `json:"targetDid"`
	DeviceID  string `json:"deviceId"`
}

// HandlePermissionRevoke responds to POST /api/permissions/revoke.
func (s *Server) HandlePermissionRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body revokeBody
	if err := decodeStrict(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.RevokeDeviceAccess(body.TargetDID, body.DeviceID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrUnknownDID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

type firmwareRegisterBody struct {
	DeviceID        string `json:"deviceId"`
	Version         string `json:"version"`
	Hash            string `json:"hash"`
	ManufacturerDID string `json:"manufacturerDid"`
}

// HandleFirmwareRegister responds to POST /api/firmware/register.
func (s *Server) HandleFirmwareRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body firmwareRegisterBody
	if err := decodeStrict(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.manager.Firmware().Register(body.DeviceID, body.Version, body.Hash, body.ManufacturerDID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contracts.ErrDuplicateFirmwareVersion) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type firmwareValidateBody struct {
	DeviceID string `json:"deviceId"`
	Version  string `json:"version"`
	Hash     string `json:"hash"`
}

// HandleFirmwareValidate responds to POST /api/firmware/validate.
func (s *Server) HandleFirmwareValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body firmwareValidateBody
	if err := decodeStrict(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcome, err := s.manager.VerifyDeviceFirmware(r.Context(), body.DeviceID, body.Version, body.Hash)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contracts.ErrUnknownFirmware) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusOK, outcome)
}

type createDIDBody struct {
	Kind  identity.EntityKind `json:"kind"`
	Label string              `json:"label"`
}

// HandleDIDs responds to GET /api/dids (list) and POST /api/dids (create).
func (s *Server) HandleDIDs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.manager.Registry().List())
	case http.MethodPost:
		var body createDIDBody
		if err := decodeStrict(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec, err := s.manager.Registry().CreateDID(body.Kind, body.Label)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, identity.ErrDuplicateDID) {
				status = http.StatusConflict
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// persist flushes chain state after mutating workflows; failures are logged
// and surfaced via readiness, not returned to the client whose operation
// already committed in memory.
func (s *Server) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveChain(s.chain); err != nil {
		log.Printf("[API] chain persist failed: %v", err)
	}
}
