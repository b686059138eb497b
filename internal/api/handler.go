package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashyield/dash/internal/activity"
	"github.com/hashyield/dash/internal/domain"
	"github.com/hashyield/dash/internal/export"
	"github.com/hashyield/dash/internal/finance"
	"github.com/hashyield/dash/internal/mirror"
	"github.com/hashyield/dash/internal/orchestrator"
	"github.com/hashyield/dash/internal/position"
	"github.com/hashyield/dash/internal/resolver"
)

// maxDisplayFraction bounds the fraction digits in display amounts.
const maxDisplayFraction = 6

// PositionReader aggregates a user's positions.
type PositionReader interface {
	Aggregate(ctx context.Context, account string) (domain.PositionSummary, error)
}

// ActionExecutor runs mutating wallet actions and tracks their progress.
type ActionExecutor interface {
	Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Receipt, error)
	Status(actionID string) (domain.TransactionStep, bool)
	Discard(actionID string)
}

// ActivityLister reads the activity feed.
type ActivityLister interface {
	List(ctx context.Context, account string, limit int) ([]activity.Record, error)
}

// RecipientLookup resolves account identifiers to registered identities.
type RecipientLookup interface {
	AccountInfo(ctx context.Context, accountID string) (mirror.AccountInfo, error)
}

// HealthReporter builds the instrument health report.
type HealthReporter interface {
	Build(ctx context.Context) (export.Report, error)
}

// Handler provides the dashboard HTTP endpoints.
type Handler struct {
	positions  PositionReader
	actions    ActionExecutor
	activities ActivityLister // optional
	recipients RecipientLookup
	health     HealthReporter // optional
}

// NewHandler creates a new API handler. activities and health may be nil
// when the corresponding features are not configured.
func NewHandler(positions PositionReader, actions ActionExecutor, activities ActivityLister, recipients RecipientLookup, health HealthReporter) *Handler {
	return &Handler{
		positions:  positions,
		actions:    actions,
		activities: activities,
		recipients: recipients,
		health:     health,
	}
}

type positionDTO struct {
	InstrumentID          string    `json:"instrumentId"`
	Name                  string    `json:"name"`
	Symbol                string    `json:"symbol"`
	Kind                  string    `json:"kind"`
	AprBps                int64     `json:"aprBps"`
	AprPercent            string    `json:"aprPercent"`
	Deposited             string    `json:"deposited"`
	DepositedDisplay      string    `json:"depositedDisplay"`
	PendingRewards        string    `json:"pendingRewards"`
	PendingDisplay        string    `json:"pendingRewardsDisplay"`
	Claimed               string    `json:"claimed"`
	CurrentValue          string    `json:"currentValue"`
	CurrentValueDisplay   string    `json:"currentValueDisplay"`
	ProjectedAnnualReturn string    `json:"projectedAnnualReturn"`
	ProjectedDisplay      string    `json:"projectedAnnualReturnDisplay"`
	DepositedAt           time.Time `json:"depositedAt,omitzero"`
}

type summaryDTO struct {
	Account              string        `json:"account"`
	Positions            []positionDTO `json:"positions"`
	TotalDeposited       string        `json:"totalDeposited"`
	TotalCurrentValue    string        `json:"totalCurrentValue"`
	TotalPendingRewards  string        `json:"totalPendingRewards"`
	TotalProjectedReturn string        `json:"totalProjectedReturn"`
	Warnings             []string      `json:"warnings,omitempty"`
	GeneratedAt          time.Time     `json:"generatedAt"`
}

func rawString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toSummaryDTO(s domain.PositionSummary) summaryDTO {
	dto := summaryDTO{
		Account:              s.Account,
		Positions:            make([]positionDTO, 0, len(s.Positions)),
		TotalDeposited:       rawString(s.TotalDeposited),
		TotalCurrentValue:    rawString(s.TotalCurrentValue),
		TotalPendingRewards:  rawString(s.TotalPendingRewards),
		TotalProjectedReturn: rawString(s.TotalProjectedReturn),
		Warnings:             s.Warnings,
		GeneratedAt:          s.GeneratedAt,
	}
	for _, p := range s.Positions {
		d := p.Instrument.Decimals
		dto.Positions = append(dto.Positions, positionDTO{
			InstrumentID:          p.Instrument.ID,
			Name:                  p.Instrument.Name,
			Symbol:                p.Instrument.Symbol,
			Kind:                  string(p.Instrument.Kind),
			AprBps:                p.AprBps,
			AprPercent:            finance.BpsToPercent(p.AprBps).String(),
			Deposited:             rawString(p.Deposited),
			DepositedDisplay:      finance.FormatAmount(p.Deposited, d, maxDisplayFraction),
			PendingRewards:        rawString(p.PendingRewards),
			PendingDisplay:        finance.FormatAmount(p.PendingRewards, d, maxDisplayFraction),
			Claimed:               rawString(p.Claimed),
			CurrentValue:          rawString(p.CurrentValue),
			CurrentValueDisplay:   finance.FormatAmount(p.CurrentValue, d, maxDisplayFraction),
			ProjectedAnnualReturn: rawString(p.ProjectedAnnualReturn),
			ProjectedDisplay:      finance.FormatAmount(p.ProjectedAnnualReturn, d, maxDisplayFraction),
			DepositedAt:           p.DepositedAt,
		})
	}
	return dto
}

// GetPositions handles GET /api/v1/positions/{account}.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")

	summary, err := h.positions.Aggregate(r.Context(), account)
	if err != nil {
		if errors.Is(err, position.ErrNoAccount) {
			writeError(w, http.StatusBadRequest, "account is required")
			return
		}
		slog.Error("failed to aggregate positions", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

type actionRequestDTO struct {
	Action       string `json:"action"`
	InstrumentID string `json:"instrumentId"`
	Amount       string `json:"amount"`
	Account      string `json:"account"`
}

// ExecuteAction handles POST /api/v1/actions. The bearer credential is
// forwarded to the signer untouched.
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	credential := bearerCredential(r)
	if credential == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer credential")
		return
	}

	var dto actionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := h.actions.Execute(r.Context(), orchestrator.Request{
		Action:       domain.Action(dto.Action),
		InstrumentID: dto.InstrumentID,
		Amount:       dto.Amount,
		Account:      dto.Account,
		Credential:   credential,
	})
	if err != nil {
		if errors.Is(err, finance.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("action failed", "action", dto.Action, "instrument", dto.InstrumentID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":    err.Error(),
			"actionId": receipt.ActionID,
		})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// GetActionStatus handles GET /api/v1/actions/{id}.
func (h *Handler) GetActionStatus(w http.ResponseWriter, r *http.Request) {
	step, ok := h.actions.Status(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// DiscardAction handles DELETE /api/v1/actions/{id}.
func (h *Handler) DiscardAction(w http.ResponseWriter, r *http.Request) {
	h.actions.Discard(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// ListActivity handles GET /api/v1/activity/{account}.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	if h.activities == nil {
		writeError(w, http.StatusNotFound, "activity feed not configured")
		return
	}

	const maxLimit = 200
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	records, err := h.activities.List(r.Context(), r.PathValue("account"), limit)
	if err != nil {
		slog.Error("failed to list activity", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []activity.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ResolveRecipient handles GET /api/v1/recipients/{account}.
func (h *Handler) ResolveRecipient(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if !resolver.ValidAccountID(account) {
		writeError(w, http.StatusBadRequest, resolver.ErrInvalidRecipient.Error())
		return
	}

	info, err := h.recipients.AccountInfo(r.Context(), account)
	if err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			writeError(w, http.StatusNotFound, "recipient not found")
			return
		}
		slog.Error("failed to resolve recipient", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, domain.ResolvedRecipient{
		AccountID:   info.AccountID,
		UserID:      info.UserID,
		DisplayName: info.DisplayName,
	})
}

// GetHealthReport handles GET /api/v1/report.
func (h *Handler) GetHealthReport(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeError(w, http.StatusNotFound, "health report not configured")
		return
	}
	report, err := h.health.Build(r.Context())
	if err != nil {
		slog.Error("failed to build health report", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func bearerCredential(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
