package dashboard

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// API response types

// StatusResponse is the response for /api/status.
type StatusResponse struct {
	Address                string  `json:"address"`
	Version                uint64  `json:"version"`
	LastUpdateEpoch        uint64  `json:"lastUpdateEpoch"`
	ExchangeRate           float64 `json:"exchangeRate"`
	TotalStakeLamports     uint64  `json:"totalStakeLamports"`
	TotalPoolTokens        uint64  `json:"totalPoolTokens"`
	ReserveLamports        uint64  `json:"reserveLamports"`
	ValidatorStakeLamports uint64  `json:"validatorStakeLamports"`
	TransientLamports      uint64  `json:"transientLamports"`
	ValidatorCount         int     `json:"validatorCount"`
	Digest                 string  `json:"digest"`
	Uptime                 string  `json:"uptime"`
	HealthyEndpoints       *int    `json:"healthyEndpoints,omitempty"`
}

// ValidatorResponse is one entry of /api/validators.
type ValidatorResponse struct {
	VoteAccount            string `json:"voteAccount"`
	ActiveStakeLamports    uint64 `json:"activeStakeLamports"`
	TransientStakeLamports uint64 `json:"transientStakeLamports"`
	TransientDirection     string `json:"transientDirection"`
	TransientSeed          uint64 `json:"transientSeed"`
	TransientEpoch         uint64 `json:"transientEpoch"`
	LastUpdateEpoch        uint64 `json:"lastUpdateEpoch"`
}

// JournalResponse is the response for /api/journal.
type JournalResponse struct {
	Page     int                 `json:"page"`
	HasNext  bool                `json:"hasNext"`
	Receipts []stakepool.Receipt `json:"receipts"`
}

// handleAPIStatus returns the pool overview as JSON.
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	data := d.getStatusData()

	resp := StatusResponse{
		Address:                data["Address"].(string),
		Version:                data["Version"].(uint64),
		LastUpdateEpoch:        data["LastUpdateEpoch"].(uint64),
		ExchangeRate:           data["ExchangeRate"].(float64),
		TotalStakeLamports:     data["TotalStakeLamports"].(uint64),
		TotalPoolTokens:        data["TotalPoolTokens"].(uint64),
		ReserveLamports:        data["ReserveLamports"].(uint64),
		ValidatorStakeLamports: data["ValidatorStakeLamports"].(uint64),
		TransientLamports:      data["TransientLamports"].(uint64),
		ValidatorCount:         data["ValidatorCount"].(int),
		Digest:                 data["Digest"].(string),
		Uptime:                 formatDuration(d.uptime()),
	}
	if d.endpoints != nil {
		healthy := 0
		for _, ep := range d.endpoints.Endpoints() {
			if ep.Healthy {
				healthy++
			}
		}
		resp.HealthyEndpoints = &healthy
	}
	writeJSON(w, resp)
}

// handleAPIValidators returns every validator record.
func (d *Dashboard) handleAPIValidators(w http.ResponseWriter, r *http.Request) {
	pool := d.pool.Pool()
	resp := make([]ValidatorResponse, 0, len(pool.Validators))
	for _, v := range pool.Validators {
		resp = append(resp, validatorResponse(v))
	}
	writeJSON(w, resp)
}

// handleAPIValidator returns a single validator by vote account.
func (d *Dashboard) handleAPIValidator(w http.ResponseWriter, r *http.Request) {
	voteStr := strings.TrimPrefix(r.URL.Path, "/api/validators/")
	vote, err := types.PubkeyFromBase58(voteStr)
	if err != nil {
		writeError(w, "Invalid vote account", http.StatusBadRequest)
		return
	}
	v, ok := d.pool.Pool().Validator(vote)
	if !ok {
		writeError(w, "Validator not found", http.StatusNotFound)
		return
	}
	writeJSON(w, validatorResponse(v))
}

// handleAPIJournal returns one page of the journal.
func (d *Dashboard) handleAPIJournal(w http.ResponseWriter, r *http.Request) {
	if d.journal == nil {
		writeError(w, "Journal unavailable", http.StatusServiceUnavailable)
		return
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			writeError(w, "Invalid page", http.StatusBadRequest)
			return
		}
		page = parsed
	}
	receipts, hasNext, err := d.journalPage(page)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if receipts == nil {
		receipts = []stakepool.Receipt{}
	}
	writeJSON(w, JournalResponse{Page: page, HasNext: hasNext, Receipts: receipts})
}

// handleAPIEndpoints returns oracle endpoint health.
func (d *Dashboard) handleAPIEndpoints(w http.ResponseWriter, r *http.Request) {
	if d.endpoints == nil {
		writeError(w, "Endpoint health unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, d.endpoints.Endpoints())
}

func (d *Dashboard) uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Since(d.startTime)
}

func validatorResponse(v stakepool.ValidatorRecord) ValidatorResponse {
	return ValidatorResponse{
		VoteAccount:            v.VoteAccount.String(),
		ActiveStakeLamports:    v.ActiveStakeLamports,
		TransientStakeLamports: v.TransientStakeLamports,
		TransientDirection:     v.TransientDirection.String(),
		TransientSeed:          v.TransientSeed,
		TransientEpoch:         v.TransientEpoch,
		LastUpdateEpoch:        v.LastUpdateEpoch,
	}
}
