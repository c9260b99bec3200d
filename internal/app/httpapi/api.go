// Package httpapi exposes the REST handlers and translates HTTP requests
// into the voting and trending services.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/setvote/setvote/internal/app/trending"
	"github.com/setvote/setvote/internal/app/voting"
	"github.com/setvote/setvote/internal/domain"
	"github.com/setvote/setvote/internal/platform/metrics"
)

// userHeader carries the authenticated user resolved by the upstream auth
// proxy. An empty value means the request is anonymous.
const userHeader = "X-User-ID"

// API bundles the HTTP handlers bound to the voting and trending services.
type API struct {
	votes    *voting.Service
	trending *trending.Service
	logger   *slog.Logger
}

func New(votes *voting.Service, trendingSvc *trending.Service, logger *slog.Logger) *API {
	return &API{votes: votes, trending: trendingSvc, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	// Routes stay centralized so tests can mount the same surface.
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/votes", a.handleVotes)
	mux.HandleFunc("/votes/", a.handleVoteByID)
	mux.HandleFunc("/shows", a.handleShows)
	mux.HandleFunc("/shows/", a.handleShowSubroutes)
	mux.HandleFunc("/trending", a.handleTrending)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type voteRequest struct {
	ShowID        string `json:"show_id"`
	SetlistSongID string `json:"setlist_song_id"`
}

type voteResponse struct {
	Success             bool   `json:"success"`
	VoteID              string `json:"vote_id,omitempty"`
	SetlistSongID       string `json:"setlist_song_id,omitempty"`
	NewVoteCount        *int64 `json:"new_vote_count,omitempty"`
	DailyVotesRemaining *int   `json:"daily_votes_remaining,omitempty"`
	ShowVotesRemaining  *int   `json:"show_votes_remaining,omitempty"`
}

func (a *API) handleVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := a.authenticate(w, r, "vote")
	if !ok {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveVoteRequest("invalid_payload")
		a.logger.Warn("invalid vote payload", "err", err)
		respondJSON(w, http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid payload"))
		return
	}

	receipt, err := a.votes.SubmitVote(r.Context(), voting.VoteRequest{
		UserID:        userID,
		ShowID:        domain.ShowID(req.ShowID),
		SetlistSongID: domain.SetlistSongID(req.SetlistSongID),
	})
	if err != nil {
		status := statusLabel(err)
		metrics.ObserveVoteRequest(status)
		a.logger.Warn("vote rejected", "user", userID, "song", req.SetlistSongID, "status", status, "err", err)
		respondError(w, err)
		return
	}

	metrics.ObserveVoteRequest("accepted")
	a.logger.Info("vote accepted", "user", userID, "song", req.SetlistSongID, "count", receipt.NewVoteCount)
	respondJSON(w, http.StatusCreated, voteResponse{
		Success:             true,
		VoteID:              string(receipt.VoteID),
		SetlistSongID:       req.SetlistSongID,
		NewVoteCount:        &receipt.NewVoteCount,
		DailyVotesRemaining: &receipt.DailyVotesRemaining,
		ShowVotesRemaining:  &receipt.ShowVotesRemaining,
	})
}

func (a *API) handleVoteByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := a.authenticate(w, r, "retract")
	if !ok {
		return
	}

	voteID := strings.TrimPrefix(r.URL.Path, "/votes/")
	if voteID == "" || strings.Contains(voteID, "/") {
		http.NotFound(w, r)
		return
	}

	receipt, err := a.votes.RetractVote(r.Context(), userID, domain.VoteID(voteID))
	if err != nil {
		status := statusLabel(err)
		metrics.ObserveVoteRetraction(status)
		a.logger.Warn("retraction rejected", "user", userID, "vote", voteID, "status", status, "err", err)
		respondError(w, err)
		return
	}

	metrics.ObserveVoteRetraction("accepted")
	respondJSON(w, http.StatusOK, voteResponse{
		Success:             true,
		SetlistSongID:       string(receipt.SetlistSongID),
		NewVoteCount:        &receipt.NewVoteCount,
		DailyVotesRemaining: &receipt.DailyVotesRemaining,
		ShowVotesRemaining:  &receipt.ShowVotesRemaining,
	})
}

type createShowRequest struct {
	Artist         string            `json:"artist"`
	Venue          string            `json:"venue"`
	Date           time.Time         `json:"date"`
	VotingOpensAt  time.Time         `json:"voting_opens_at"`
	VotingClosesAt time.Time         `json:"voting_closes_at"`
	Songs          []setlistSongBody `json:"songs"`
}

type setlistSongBody struct {
	SongRef  string `json:"song_ref"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

func (a *API) handleShows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listShows(w, r)
	case http.MethodPost:
		a.createShow(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) listShows(w http.ResponseWriter, r *http.Request) {
	shows, err := a.votes.ListOpenShows(r.Context())
	if err != nil {
		a.logger.Error("listing shows failed", "err", err)
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shows)
}

func (a *API) createShow(w http.ResponseWriter, r *http.Request) {
	var req createShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid payload"))
		return
	}

	songs := make([]domain.SetlistSong, len(req.Songs))
	for i, song := range req.Songs {
		songs[i] = domain.SetlistSong{
			SongRef:  song.SongRef,
			Title:    song.Title,
			Position: song.Position,
		}
	}

	show, err := a.votes.CreateShow(r.Context(), domain.Show{
		Artist:         req.Artist,
		Venue:          req.Venue,
		Date:           req.Date,
		VotingOpensAt:  req.VotingOpensAt,
		VotingClosesAt: req.VotingClosesAt,
	}, songs)
	if err != nil {
		a.logger.Warn("show creation rejected", "artist", req.Artist, "err", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, show)
}

func (a *API) handleShowSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/shows/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	id := domain.ShowID(parts[0])

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		a.getShow(w, r, id)
	case len(parts) == 2 && parts[1] == "views" && r.Method == http.MethodPost:
		a.recordView(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) getShow(w http.ResponseWriter, r *http.Request, id domain.ShowID) {
	show, err := a.votes.GetShow(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, show)
}

func (a *API) recordView(w http.ResponseWriter, r *http.Request, id domain.ShowID) {
	if err := a.trending.RecordView(r.Context(), id); err != nil {
		a.logger.Warn("view not recorded", "show", id, "err", err)
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (a *API) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondJSON(w, http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid limit"))
			return
		}
		n = parsed
	}

	scores, err := a.trending.Top(r.Context(), n)
	if err != nil {
		a.logger.Error("trending read failed", "err", err)
		respondError(w, err)
		return
	}

	type entry struct {
		ShowID string  `json:"show_id"`
		Score  float64 `json:"score"`
	}
	result := make([]entry, len(scores))
	for i, score := range scores {
		result[i] = entry{ShowID: string(score.ShowID), Score: score.Score}
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request, action string) (domain.UserID, bool) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		metrics.ObserveVoteRequest("unauthenticated")
		a.logger.Warn("unauthenticated request", "action", action, "path", r.URL.Path)
		respondJSON(w, http.StatusUnauthorized, errorBody("NOT_AUTHENTICATED", "missing user identity"))
		return "", false
	}
	return domain.UserID(userID), true
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorBody(code, message string) errorResponse {
	return errorResponse{Success: false, Error: code, Message: message}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps engine errors onto the API's error codes. Rejections
// are distinct and renderable; transient errors signal a retry is worth
// attempting; everything unexpected collapses to UNKNOWN_ERROR without
// internal detail.
func respondError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "UNKNOWN_ERROR"
	)

	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		status, code = http.StatusConflict, "DUPLICATE_VOTE"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		status, code = http.StatusTooManyRequests, "DAILY_LIMIT_EXCEEDED"
	case errors.Is(err, domain.ErrShowLimitExceeded):
		status, code = http.StatusTooManyRequests, "SHOW_LIMIT_EXCEEDED"
	case errors.Is(err, domain.ErrVotingClosed):
		status, code = http.StatusConflict, "VOTING_CLOSED"
	case errors.Is(err, voting.ErrShowNotFound),
		errors.Is(err, voting.ErrSongNotFound),
		errors.Is(err, trending.ErrShowNotFound),
		errors.Is(err, domain.ErrVoteNotFound),
		errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, voting.ErrInvalidRequest), errors.Is(err, voting.ErrShowInvalid):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case domain.IsTransient(err):
		status, code = http.StatusServiceUnavailable, "TRANSIENT_ERROR"
	}

	message := err.Error()
	if code == "UNKNOWN_ERROR" {
		// Integrity and programming errors are logged, not leaked.
		message = "internal error"
	}
	respondJSON(w, status, errorBody(code, message))
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, domain.ErrDailyLimitExceeded):
		return "daily_limit"
	case errors.Is(err, domain.ErrShowLimitExceeded):
		return "show_limit"
	case errors.Is(err, domain.ErrVotingClosed):
		return "closed"
	case errors.Is(err, voting.ErrShowNotFound),
		errors.Is(err, voting.ErrSongNotFound),
		errors.Is(err, domain.ErrVoteNotFound):
		return "not_found"
	case errors.Is(err, voting.ErrInvalidRequest):
		return "invalid"
	case domain.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
