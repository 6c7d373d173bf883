package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/services"
)

// ContestHandler serves the queue, outcome recording and tiebreak voting.
type ContestHandler struct {
	queue    services.QueueManager
	outcomes services.OutcomeRecorder
	ties     services.TieResolver
}

func NewContestHandler(engine *services.Engine) *ContestHandler {
	return &ContestHandler{
		queue:    engine.Queue,
		outcomes: engine.Outcomes,
		ties:     engine.Ties,
	}
}

// QueueHandler обрабатывает GET /tournaments/{tournamentID}/queue
func (h *ContestHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.queue.List(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"queue": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// NextPendingHandler обрабатывает GET /tournaments/{tournamentID}/queue/next?category_id=
func (h *ContestHandler) NextPendingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	categoryID, err := optionalIntQuery(r, "category_id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	next, err := h.queue.NextPending(r.Context(), id, categoryID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"contest": next}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ActivateHandler обрабатывает POST /contests/{contestID}/activate
func (h *ContestHandler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	contest, err := h.queue.Activate(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"contest": contest}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ReorderHandler обрабатывает PUT /contests/{contestID}/position
func (h *ContestHandler) ReorderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Position int `json:"position"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	queue, err := h.queue.Reorder(r.Context(), id, input.Position)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"queue": queue}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ScoreHandler обрабатывает POST /contests/{contestID}/scores
func (h *ContestHandler) ScoreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		ContestantID int     `json:"contestant_id"`
		Score        float64 `json:"score"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	contest, err := h.outcomes.RecordPreselectionScore(r.Context(), id, input.ContestantID, input.Score)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"contest": contest}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CompletePreselectionHandler обрабатывает POST /contests/{contestID}/complete
func (h *ContestHandler) CompletePreselectionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	report, err := h.outcomes.CompletePreselection(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"report": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PoolResultHandler обрабатывает POST /contests/{contestID}/pool-result
func (h *ContestHandler) PoolResultHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.PoolResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	report, err := h.outcomes.RecordPoolOutcome(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"report": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinalResultHandler обрабатывает POST /contests/{contestID}/final-result
func (h *ContestHandler) FinalResultHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.FinalResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	report, err := h.outcomes.RecordFinalOutcome(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"report": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VoteHandler обрабатывает POST /contests/{contestID}/votes.
// An ambiguous round is stored, so it answers 200 with ambiguous=true.
func (h *ContestHandler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "contestID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Ballots []brackets.Ballot `json:"ballots"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	report, err := h.ties.SubmitRound(r.Context(), id, input.Ballots)
	ambiguous := errors.Is(err, services.ErrAmbiguousVote)
	if err != nil && !ambiguous {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"round": report, "ambiguous": ambiguous}
	if ambiguous {
		response["message"] = err.Error()
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CutoffTieHandler обрабатывает POST /categories/{categoryID}/cutoff-tie
func (h *ContestHandler) CutoffTieHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "categoryID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tiebreak, err := h.ties.DetectCutoffTie(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tiebreak": tiebreak}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PoolTieHandler обрабатывает POST /pools/{poolID}/tie
func (h *ContestHandler) PoolTieHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "poolID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tiebreak, err := h.ties.DetectPoolTie(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tiebreak": tiebreak}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
