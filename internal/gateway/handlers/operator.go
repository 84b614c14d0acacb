package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"agentdesk/internal/interrupt"
	"agentdesk/internal/operator"
	"agentdesk/internal/session"
	"agentdesk/internal/storage"
	"agentdesk/internal/thread"
	"agentdesk/internal/transport"
)

const defaultDecisionLimit = 50

// DecisionLister lists recorded operator decisions.
type DecisionLister interface {
	ListDecisions(limit int) ([]*storage.Decision, error)
}

// OperatorHandler exposes the session and its pending interrupt over HTTP.
type OperatorHandler struct {
	op        *operator.Operator
	decisions DecisionLister
}

// NewOperatorHandler creates a new operator handler. decisions may be nil when
// the audit log is disabled.
func NewOperatorHandler(op *operator.Operator, decisions DecisionLister) *OperatorHandler {
	return &OperatorHandler{op: op, decisions: decisions}
}

// RegisterRoutes registers operator routes on the router.
func (h *OperatorHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/v1").Subrouter()

	// Run control
	sub.HandleFunc("/snapshot", h.HandleSnapshot).Methods("GET")
	sub.HandleFunc("/messages", h.HandleSendMessage).Methods("POST")
	sub.HandleFunc("/stop", h.HandleStop).Methods("POST")
	sub.HandleFunc("/new", h.HandleNew).Methods("POST")
	sub.HandleFunc("/regenerate", h.HandleRegenerate).Methods("POST")

	// Interrupt resolution
	sub.HandleFunc("/interrupt", h.HandleGetInterrupt).Methods("GET")
	sub.HandleFunc("/interrupt/args", h.HandleSetArgs).Methods("POST")
	sub.HandleFunc("/interrupt/response", h.HandleSetResponse).Methods("POST")
	sub.HandleFunc("/interrupt/type", h.HandleSelectType).Methods("POST")
	sub.HandleFunc("/interrupt/submit", h.HandleSubmit).Methods("POST")
	sub.HandleFunc("/interrupt/ignore", h.HandleIgnore).Methods("POST")
	sub.HandleFunc("/interrupt/resolve", h.HandleResolve).Methods("POST")

	// Audit
	sub.HandleFunc("/decisions", h.HandleListDecisions).Methods("GET")
}

// HandleSnapshot returns the current run snapshot.
func (h *OperatorHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, h.op.Session().Snapshot())
}

// SendMessageRequest starts a run.
type SendMessageRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// HandleSendMessage starts a run with a human message.
func (h *OperatorHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := h.op.Session().Start(r.Context(), req.Text, req.Context); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusAccepted, h.op.Session().Snapshot())
}

// HandleStop stops the open stream.
func (h *OperatorHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Session().Stop(r.Context()); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.Session().Snapshot())
}

// HandleNew discards the conversation and starts an empty one.
func (h *OperatorHandler) HandleNew(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Session().Reset(r.Context()); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.Session().Snapshot())
}

// RegenerateRequest reruns the agent from before a message.
type RegenerateRequest struct {
	MessageID string `json:"message_id"`
}

// HandleRegenerate reruns the agent from a message's parent checkpoint.
func (h *OperatorHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req RegenerateRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if req.MessageID == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message_id is required")
		return
	}
	if err := h.op.Session().Regenerate(r.Context(), req.MessageID); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusAccepted, h.op.Session().Snapshot())
}

// HandleGetInterrupt returns the resolver view.
func (h *OperatorHandler) HandleGetInterrupt(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, h.op.View())
}

// SetArgsRequest edits arguments of an edit draft. Draft defaults to the
// first edit draft.
type SetArgsRequest struct {
	Draft *int              `json:"draft,omitempty"`
	Args  map[string]string `json:"args"`
}

// HandleSetArgs edits action arguments.
func (h *OperatorHandler) HandleSetArgs(w http.ResponseWriter, r *http.Request) {
	var req SetArgsRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if len(req.Args) == 0 {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "args is required")
		return
	}
	draft, err := h.draftIndex(req.Draft, thread.ResponseEdit)
	if err != nil {
		sendOperatorError(w, err)
		return
	}
	for key, value := range req.Args {
		if err := h.op.SetArg(draft, key, value); err != nil {
			sendOperatorError(w, err)
			return
		}
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// SetResponseRequest writes the reply of a response draft. Draft defaults to
// the first response draft.
type SetResponseRequest struct {
	Draft *int   `json:"draft,omitempty"`
	Text  string `json:"text"`
}

// HandleSetResponse sets the reply text.
func (h *OperatorHandler) HandleSetResponse(w http.ResponseWriter, r *http.Request) {
	var req SetResponseRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	draft, err := h.draftIndex(req.Draft, thread.ResponseResponse)
	if err != nil {
		sendOperatorError(w, err)
		return
	}
	if err := h.op.SetResponse(draft, req.Text); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// SelectTypeRequest picks the submit type.
type SelectTypeRequest struct {
	Type thread.ResponseType `json:"type"`
}

// HandleSelectType selects the type the next submit sends.
func (h *OperatorHandler) HandleSelectType(w http.ResponseWriter, r *http.Request) {
	var req SelectTypeRequest
	if err := DecodeJSON(r, &req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := h.op.SelectType(req.Type); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// HandleSubmit submits the selected response.
func (h *OperatorHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Submit(r.Context()); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// HandleIgnore dismisses the interrupt.
func (h *OperatorHandler) HandleIgnore(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Ignore(r.Context()); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// HandleResolve ends the run.
func (h *OperatorHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Resolve(r.Context()); err != nil {
		sendOperatorError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, h.op.View())
}

// HandleListDecisions returns recorded decisions, newest first.
func (h *OperatorHandler) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "audit log is disabled")
		return
	}

	limit := defaultDecisionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	decisions, err := h.decisions.ListDecisions(limit)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if decisions == nil {
		decisions = []*storage.Decision{}
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
	})
}

func (h *OperatorHandler) draftIndex(explicit *int, t thread.ResponseType) (int, error) {
	if explicit != nil {
		return *explicit, nil
	}
	r := h.op.Resolver()
	if r == nil {
		return 0, operator.ErrNoInterrupt
	}
	return r.DraftIndex(t), nil
}

// sendOperatorError maps session and resolver errors to HTTP responses.
func sendOperatorError(w http.ResponseWriter, err error) {
	switch {
	case interrupt.IsValidation(err):
		SendError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, interrupt.ErrNoDraft),
		errors.Is(err, interrupt.ErrUnknownArg),
		errors.Is(err, interrupt.ErrInvalidType):
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, operator.ErrNoInterrupt),
		errors.Is(err, session.ErrNoThread),
		errors.Is(err, session.ErrNoMessage):
		SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, session.ErrRunBusy),
		errors.Is(err, interrupt.ErrNotReady),
		errors.Is(err, interrupt.ErrNotSubmitted):
		SendError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, transport.ErrInvalidAssistant):
		SendError(w, http.StatusBadGateway, ErrCodeInvalidAssistant, err.Error())
	case errors.Is(err, transport.ErrTransport):
		SendError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
