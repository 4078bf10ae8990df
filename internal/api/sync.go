package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/shoplist/internal/models"
)

// PullResponse is the JSON response for a pull request.
type PullResponse struct {
	Documents  any               `json:"documents"`
	Checkpoint CheckpointPayload `json:"checkpoint"`
	HasMore    bool              `json:"has_more"`
}

// CheckpointPayload carries the cursor a client should persist after
// applying the documents of a pull page.
type CheckpointPayload struct {
	UpdatedAt time.Time `json:"updatedAt"`
}

// PushResponse is the JSON response for a push request. Conflicts is part
// of the wire contract for clients; the server's last-write-wins policy
// never populates it.
type PushResponse struct {
	Success   bool              `json:"success"`
	Conflicts []json.RawMessage `json:"conflicts"`
}

// StatusResponse is the JSON response for a collection status request.
type StatusResponse struct {
	DocumentCount int64      `json:"document_count"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// handlePull handles GET /v1/sync/{collection}/pull.
// The since parameter is the exclusive lower bound; when absent the whole
// collection is returned (epoch bound).
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, collection string) {
	s.metrics.RecordPullRequest()

	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid since timestamp")
			return
		}
		since = ts
	}

	limit := s.config.DefaultPullLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		if n > s.config.MaxPullLimit {
			n = s.config.MaxPullLimit
		}
		limit = n
	}

	var (
		docs       any
		checkpoint time.Time
		hasMore    bool
		err        error
	)
	switch collection {
	case models.CollectionItems:
		var out []models.Item
		out, checkpoint, hasMore, err = s.store.PullItems(since, limit)
		if out == nil {
			out = []models.Item{}
		}
		docs = out
	case models.CollectionHouseholds:
		var out []models.Household
		out, checkpoint, hasMore, err = s.store.PullHouseholds(since, limit)
		if out == nil {
			out = []models.Household{}
		}
		docs = out
	default:
		var out []models.User
		out, checkpoint, hasMore, err = s.store.PullUsers(since, limit)
		if out == nil {
			out = []models.User{}
		}
		docs = out
	}
	if err != nil {
		logFor(r.Context()).Error("pull", "collection", collection, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to query documents")
		return
	}

	writeJSON(w, http.StatusOK, PullResponse{
		Documents:  docs,
		Checkpoint: CheckpointPayload{UpdatedAt: checkpoint},
		HasMore:    hasMore,
	})
}

// handlePush handles POST /v1/sync/{collection}/push. The body is a
// batch of complete document states keyed by the collection name. Every
// document is validated before any upsert; a malformed batch is rejected
// whole.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, collection string) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	raw, ok := body[collection]
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("missing %q document array", collection))
		return
	}

	var accepted int
	switch collection {
	case models.CollectionItems:
		var docs []models.Item
		if err := json.Unmarshal(raw, &docs); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed document array")
			return
		}
		if msg := validateBatch(len(docs), s.config.MaxPushBatch, func(i int) error { return validateItem(docs[i]) }); msg != "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, msg)
			return
		}
		if err := s.store.PushItems(docs); err != nil {
			logFor(r.Context()).Error("push", "collection", collection, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to upsert documents")
			return
		}
		accepted = len(docs)

	case models.CollectionHouseholds:
		var docs []models.Household
		if err := json.Unmarshal(raw, &docs); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed document array")
			return
		}
		if msg := validateBatch(len(docs), s.config.MaxPushBatch, func(i int) error { return validateHousehold(docs[i]) }); msg != "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, msg)
			return
		}
		if err := s.store.PushHouseholds(docs); err != nil {
			logFor(r.Context()).Error("push", "collection", collection, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to upsert documents")
			return
		}
		accepted = len(docs)

	default:
		var docs []models.User
		if err := json.Unmarshal(raw, &docs); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "malformed document array")
			return
		}
		if msg := validateBatch(len(docs), s.config.MaxPushBatch, func(i int) error { return validateUser(docs[i]) }); msg != "" {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, msg)
			return
		}
		if err := s.store.PushUsers(docs); err != nil {
			logFor(r.Context()).Error("push", "collection", collection, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to upsert documents")
			return
		}
		accepted = len(docs)
	}

	s.metrics.RecordPushDocuments(int64(accepted))

	writeJSON(w, http.StatusOK, PushResponse{
		Success:   true,
		Conflicts: []json.RawMessage{},
	})
}

// handleStatus handles GET /v1/sync/{collection}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, collection string) {
	st, err := s.store.Status(collection)
	if err != nil {
		logFor(r.Context()).Error("status", "collection", collection, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to query status")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		DocumentCount: st.DocumentCount,
		LastUpdatedAt: st.LastUpdatedAt,
	})
}

// validateBatch applies a per-document validator and enforces the batch cap.
func validateBatch(n, max int, check func(i int) error) string {
	if n == 0 {
		return "empty document array"
	}
	if n > max {
		return fmt.Sprintf("batch size %d exceeds max %d", n, max)
	}
	for i := 0; i < n; i++ {
		if err := check(i); err != nil {
			return fmt.Sprintf("document %d: %v", i, err)
		}
	}
	return ""
}

func validateItem(it models.Item) error {
	if it.ID == "" {
		return fmt.Errorf("missing id")
	}
	if it.Name == "" {
		return fmt.Errorf("missing name")
	}
	return nil
}

func validateHousehold(h models.Household) error {
	if h.ID == "" {
		return fmt.Errorf("missing id")
	}
	if h.Name == "" {
		return fmt.Errorf("missing name")
	}
	return nil
}

func validateUser(u models.User) error {
	if u.ID == "" {
		return fmt.Errorf("missing id")
	}
	if u.Email == "" {
		return fmt.Errorf("missing email")
	}
	return nil
}
