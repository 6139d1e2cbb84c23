// Package httptransport is the thin HTTP layer over the vault services. It
// delegates to domain services without embedding business logic so transport
// concerns remain isolated.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credvault/internal/biometric"
	"credvault/internal/bundle"
	"credvault/internal/credential"
	"credvault/internal/profile"
	"credvault/internal/refresh"
	"credvault/internal/vault/models"
	vaultservice "credvault/internal/vault/service"
	id "credvault/pkg/domain"
	dErrors "credvault/pkg/domain-errors"
	"credvault/pkg/platform/validation"
	"credvault/pkg/secrets"
)

// MintService issues credential tokens and exposes activity profiles.
type MintService interface {
	Mint(ctx context.Context, did string) (credential.Token, error)
	Profile(ctx context.Context, subject id.DID) (profile.ActivityProfile, error)
}

// VaultService owns entry custody operations.
type VaultService interface {
	Store(ctx context.Context, req vaultservice.StoreRequest) (*models.VaultEntry, error)
	Unlock(ctx context.Context, entryID id.EntryID, method models.UnlockMethod, secret string) (*vaultservice.UnlockResult, error)
	Get(ctx context.Context, entryID id.EntryID) (*models.VaultEntry, error)
	CheckExpiry(ctx context.Context, entryID id.EntryID) (models.ExpiryStatus, error)
	Statistics(ctx context.Context) (models.Statistics, error)
	Delete(ctx context.Context, entryID id.EntryID) (bool, error)
	Export(ctx context.Context, entryID id.EntryID) (bundle.ExportResult, error)
}

// RefreshService drives the biometric-gated re-issuance protocol.
type RefreshService interface {
	Refresh(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// BiometricService manages verification challenge sessions.
type BiometricService interface {
	CreateSession(ctx context.Context, subject id.DID, modality biometric.Modality) (*biometric.Session, error)
	Verify(ctx context.Context, sessionID id.SessionID, sample string) (biometric.VerifyResult, error)
}

// Handler bundles the services the HTTP surface needs.
type Handler struct {
	minter    MintService
	vault     VaultService
	refresher RefreshService
	biometric BiometricService
	assembler bundle.Assembler
	logger    *slog.Logger
}

func NewHandler(minter MintService, vault VaultService, refresher RefreshService, bio BiometricService, assembler bundle.Assembler, logger *slog.Logger) *Handler {
	return &Handler{
		minter:    minter,
		vault:     vault,
		refresher: refresher,
		biometric: bio,
		assembler: assembler,
		logger:    logger,
	}
}

type provisionRequest struct {
	DID              string `json:"did"`
	BiometricSecret  string `json:"biometric_secret,omitempty"`
	PassphraseSecret string `json:"passphrase_secret,omitempty"`
}

// handleProvision mints a credential for the subject and stores it in the
// vault in one call, returning the entry and its credential.
func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := validation.CheckStringLength("did", req.DID, validation.MaxDIDLength); err != nil {
		writeError(w, err)
		return
	}
	for _, secret := range []string{req.BiometricSecret, req.PassphraseSecret} {
		if err := validation.CheckStringLength("secret", secret, validation.MaxSecretLength); err != nil {
			writeError(w, err)
			return
		}
	}

	token, err := h.minter.Mint(r.Context(), req.DID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The reputation bundle travels with the entry so export and refresh have
	// something to regenerate.
	var b *bundle.Bundle
	if h.assembler != nil {
		prof, err := h.minter.Profile(r.Context(), token.Subject)
		if err != nil {
			writeError(w, err)
			return
		}
		if b, err = h.assembler.Assemble(r.Context(), token, prof); err != nil {
			writeError(w, err)
			return
		}
	}

	// A caller that supplies no unlock secret still needs a way back into the
	// entry: issue a recovery passphrase, returned exactly once and stored
	// only as a hash.
	passphrase := req.PassphraseSecret
	var generated string
	if req.BiometricSecret == "" && passphrase == "" {
		if generated, err = secrets.Generate(); err != nil {
			writeError(w, err)
			return
		}
		passphrase = generated
	}

	entry, err := h.vault.Store(r.Context(), vaultservice.StoreRequest{
		Credential:       token,
		Bundle:           b,
		BiometricSecret:  req.BiometricSecret,
		PassphraseSecret: passphrase,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"entry_id":   entry.ID.String(),
		"credential": token,
		"expires_at": entry.ExpiresAt,
	}
	if generated != "" {
		resp["generated_passphrase"] = generated
	}
	writeJSON(w, http.StatusCreated, resp)
}

type unlockRequest struct {
	Method string `json:"method"`
	Secret string `json:"secret"`
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	res, err := h.vault.Unlock(r.Context(), entryID, models.UnlockMethod(req.Method), req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":        res.Entry.ID.String(),
		"credential":      res.Entry.Credential,
		"access_count":    res.Entry.AccessCount,
		"last_accessed":   res.Entry.LastAccessedAt,
		"refresh_history": res.Entry.RefreshHistory,
	})
}

type refreshRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.refresher.Refresh(r.Context(), refresh.Request{
		EntryID:   entryID,
		SessionID: sessionID,
		Reason:    models.RefreshReason(req.Reason),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":   res.Entry.ID.String(),
		"credential": res.Credential,
		"record":     res.Record,
		"expires_at": res.Entry.ExpiresAt,
	})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.vault.Get(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":     entry.ID.String(),
		"subject":      entry.Subject,
		"status":       entry.Status,
		"tier":         entry.Credential.Tier,
		"stored_at":    entry.StoredAt,
		"expires_at":   entry.ExpiresAt,
		"access_count": entry.AccessCount,
	})
}

func (h *Handler) handleCheckExpiry(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}
	status, err := h.vault.CheckExpiry(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vault.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}
	deleted, err := h.vault.Delete(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	entryID, ok := h.entryID(w, r)
	if !ok {
		return
	}
	res, err := h.vault.Export(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createSessionRequest struct {
	DID      string `json:"did"`
	Modality string `json:"modality,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	subject, err := id.ParseDID(req.DID)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.biometric.CreateSession(r.Context(), subject, biometric.Modality(req.Modality))
	if err != nil {
		writeError(w, translateSessionError(err))
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type verifySessionRequest struct {
	Sample string `json:"sample"`
}

func (h *Handler) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req verifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := validation.CheckStringLength("sample", req.Sample, validation.MaxSampleLength); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.biometric.Verify(r.Context(), sessionID, req.Sample)
	if err != nil {
		writeError(w, translateSessionError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entryID parses the entry identifier from the URL, writing the error response
// itself on failure.
func (h *Handler) entryID(w http.ResponseWriter, r *http.Request) (id.EntryID, bool) {
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err)
		return id.EntryID{}, false
	}
	return entryID, true
}
