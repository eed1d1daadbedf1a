package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"alphaflow-backend/internal/news"
)

const freePlanWarning = "Free plan limitation: Maximum 3 news items per request"

func newsFilters(r *http.Request) news.Filters {
	q := r.URL.Query()
	var tickers []string
	if raw := q.Get("tickers"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, strings.ToUpper(t))
			}
		}
	}
	return news.Filters{
		Tickers:   tickers,
		Sentiment: q.Get("sentiment"),
		Type:      q.Get("type"),
		Source:    q.Get("source"),
		SortBy:    q.Get("sortby"),
		Days:      intQuery(r, "days", 0),
		Items:     intQuery(r, "items", 0),
		Page:      intQuery(r, "page", 0),
	}
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	filters := newsFilters(r)

	var (
		resp *news.Response
		err  error
	)
	if r.URL.Query().Get("category") == "general" {
		resp, err = s.news.GeneralNews(r.Context(), filters)
	} else {
		resp, err = s.news.News(r.Context(), filters)
	}
	if err != nil {
		s.log.Warn("news fetch failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "Could not fetch news")
		return
	}
	if resp.Error != "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"data":    []news.Item{},
			"message": resp.Error,
			"warning": freePlanWarning,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrendingNews(w http.ResponseWriter, r *http.Request) {
	filters := newsFilters(r)
	limit := intQuery(r, "items", 10)
	items := s.news.TrendingNews(r.Context(), filters.Tickers, limit)
	if items == nil {
		items = []news.Item{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": items})
}
