// keywords.go — JSON endpoints ключевых слов.
package handlers

import (
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/bmkg-portal/internal/api/errors"
	"github.com/bigkaa/bmkg-portal/internal/domain/model"
	"github.com/bigkaa/bmkg-portal/internal/service"
)

// keywordDTO — ключевое слово с весом.
type keywordDTO struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// dashboardResponse — ответ GET /dashboard.
type dashboardResponse struct {
	Keywords []keywordDTO `json:"keywords"`
}

// keywordSearchResponse — ответ GET /search_by_keyword.
type keywordSearchResponse struct {
	Keyword string       `json:"keyword"`
	Results []keywordDTO `json:"results"`
}

func keywordsToDTO(items []model.KeywordResult) []keywordDTO {
	out := make([]keywordDTO, 0, len(items))
	for _, k := range items {
		out = append(out, keywordDTO{Word: k.Word, Weight: k.Weight})
	}
	return out
}

// Dashboard — GET /dashboard?limit=N. Самые частые ключевые слова.
func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultTopKeywords
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			apierrors.ValidationError(w, "Параметр limit должен быть положительным целым числом")
			return
		}
		limit = n
	}

	items, err := h.keywords.Top(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Keywords: keywordsToDTO(items)})
}

// SearchByKeyword — GET /search_by_keyword?keyword=...
func (h *APIHandler) SearchByKeyword(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	items, err := h.keywords.Search(r.Context(), keyword)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keywordSearchResponse{Keyword: keyword, Results: keywordsToDTO(items)})
}
