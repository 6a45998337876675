package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/metrics"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/services"
)

// multipartOverhead is the slack allowed above the file size for multipart
// framing and other form fields.
const multipartOverhead = 64 << 10

type handlers struct {
	auth    *services.AuthService
	users   *services.UserService
	ledger  *services.LedgerService
	friends *services.FriendService
	metrics *metrics.Metrics
	logger  logging.Logger
}

func (h *handlers) currentUserID(r *http.Request) string {
	c, _ := ClaimsFrom(r.Context())
	return c.UserID
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func (h *handlers) healthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// auth

func (h *handlers) nonce(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.IssueNonce(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": n})
}

type siweVerifyRequest struct {
	Message      string `json:"message"`
	Signature    string `json:"signature"`
	ReferrerCode string `json:"referrerCode"`
}

type sessionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *handlers) siweVerify(w http.ResponseWriter, r *http.Request) {
	var req siweVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Message == "" || req.Signature == "" {
		h.fail(w, r, fmt.Errorf("%w: message and signature are required", common.ErrValidation))
		return
	}

	sess, err := h.auth.SiweVerify(r.Context(), req.Message, req.Signature, req.ReferrerCode)
	h.metrics.RecordAuth("siwe", err == nil)
	if err != nil {
		if status, _ := classify(err); status == http.StatusUnauthorized {
			writeJSON(w, http.StatusUnauthorized, sessionResponse{Success: false, Error: err.Error()})
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, Token: sess.Token})
}

type loginRequest struct {
	Identifier string             `json:"identifier"`
	Password   string             `json:"password"`
	By         models.LookupField `json:"by"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Identifier, req.Password, req.By)
	h.metrics.RecordAuth("password", err == nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, Token: sess.Token})
}

// users

type userResponse struct {
	User *models.User `json:"user"`
}

type createUserRequest struct {
	WalletAddress string `json:"walletAddress"`
	Nonce         string `json:"nonce"`
	ReferrerCode  string `json:"referrerCode"`
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.WalletAddress == "" {
		h.fail(w, r, fmt.Errorf("%w: walletAddress is required", common.ErrValidation))
		return
	}

	user, err := h.users.Create(r.Context(), req.WalletAddress, req.Nonce, req.ReferrerCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), h.currentUserID(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindByID(r.Context(), h.currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

type nfcRequest struct {
	NfcID string `json:"nfcId"`
}

func (h *handlers) registerNfc(w http.ResponseWriter, r *http.Request) {
	var req nfcRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.users.RegisterNfc(r.Context(), h.currentUserID(r), req.NfcID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *handlers) uploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxProfilePictureSize+multipartOverhead)
	if err := r.ParseMultipartForm(services.MaxProfilePictureSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, common.ErrPayloadTooLarge)
			return
		}
		h.fail(w, r, errors.Join(common.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: multipart field \"file\" is required", common.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxProfilePictureSize+1))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	url, err := h.users.UploadProfilePicture(r.Context(), h.currentUserID(r), header.Filename, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"profilePictureUrl": url})
}

func (h *handlers) points(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.GetBalance(r.Context(), h.currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"points": balance})
}

func (h *handlers) interactions(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.History(r.Context(), h.currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": history})
}

// friends

type friendRequestResponse struct {
	User *models.FriendRequest `json:"user"`
}

func (h *handlers) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.friends.ListPendingRequests(r.Context(), h.currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

type sendRequestBody struct {
	WalletAddress string                     `json:"walletAddress"`
	ReferrerCode  string                     `json:"referrerCode"`
	NfcID         string                     `json:"nfcId"`
	Method        models.FriendRequestMethod `json:"method"`
}

func (h *handlers) sendRequest(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	sel := models.TargetSelector{ReferralCode: body.ReferrerCode, NfcID: body.NfcID, WalletAddress: body.WalletAddress}
	h.send(w, r, sel, body.Method)
}

func (h *handlers) scanNfc(w http.ResponseWriter, r *http.Request) {
	var req nfcRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.NfcID == "" {
		h.fail(w, r, fmt.Errorf("%w: nfcId is required", common.ErrValidation))
		return
	}
	h.send(w, r, models.TargetSelector{NfcID: req.NfcID}, models.MethodNFC)
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request, sel models.TargetSelector, method models.FriendRequestMethod) {
	req, err := h.friends.SendRequest(r.Context(), h.currentUserID(r), sel, method)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.RecordFriendRequest(string(req.Status))
	writeJSON(w, http.StatusOK, friendRequestResponse{User: req})
}

type answerRequest struct {
	SenderID string `json:"senderId"`
}

func (h *handlers) accept(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.friends.AcceptRequest)
}

func (h *handlers) reject(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.friends.RejectRequest)
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error)) {

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.SenderID == "" {
		h.fail(w, r, fmt.Errorf("%w: senderId is required", common.ErrValidation))
		return
	}

	fr, err := fn(r.Context(), req.SenderID, h.currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.RecordFriendRequest(string(fr.Status))
	writeJSON(w, http.StatusOK, friendRequestResponse{User: fr})
}
