package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/sitesearch/internal/apperror"
	"github.com/JakeFAU/sitesearch/internal/crawler"
	"github.com/JakeFAU/sitesearch/internal/search"
)

type okResponse struct {
	Result bool `json:"result"`
}

type errorResponse struct {
	Result bool   `json:"result"`
	Error  string `json:"error"`
}

type searchResponse struct {
	Result bool          `json:"result"`
	Count  int           `json:"count"`
	Data   []searchEntry `json:"data"`
}

type searchEntry struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

type statisticsResponse struct {
	Result     bool           `json:"result"`
	Statistics statisticsBody `json:"statistics"`
}

type statisticsBody struct {
	Total    totalStatistics  `json:"total"`
	Detailed []siteStatistics `json:"detailed"`
}

type totalStatistics struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

type siteStatistics struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error,omitempty"`
	Pages      int    `json:"pages"`
	Lemmas     int    `json:"lemmas"`
}

func (s *Server) startIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.indexing.StartIndexing(r.Context()); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Result: true})
}

func (s *Server) stopIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.indexing.StopIndexing(r.Context()); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Result: true})
}

func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	rawURL := strings.TrimSpace(r.Form.Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := s.indexing.IndexPage(r.Context(), rawURL); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Result: true})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	rawLimit := q.Get("limit")
	limit, err := intParam(rawLimit, search.UseDefaultLimit)
	if err != nil || (strings.TrimSpace(rawLimit) != "" && limit < 0) {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	resp, err := s.searcher.Search(r.Context(), q.Get("query"), q.Get("site"), offset, limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	data := make([]searchEntry, len(resp.Results))
	for i, res := range resp.Results {
		data[i] = searchEntry{
			Site:      res.Site,
			SiteName:  res.SiteName,
			URI:       res.URI,
			Title:     res.Title,
			Snippet:   res.Snippet,
			Relevance: res.Relevance,
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Result: true, Count: resp.Count, Data: data})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.indexing.Statistics(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{Result: true, Statistics: toStatisticsBody(stats)})
}

func toStatisticsBody(stats crawler.Statistics) statisticsBody {
	body := statisticsBody{
		Total: totalStatistics{
			Sites:    stats.Total.Sites,
			Pages:    stats.Total.Pages,
			Lemmas:   stats.Total.Lemmas,
			Indexing: stats.Total.Indexing,
		},
		Detailed: make([]siteStatistics, len(stats.Detailed)),
	}
	for i, d := range stats.Detailed {
		body.Detailed[i] = siteStatistics{
			URL:        d.URL,
			Name:       d.Name,
			Status:     string(d.Status),
			StatusTime: d.StatusTime.UnixMilli(),
			Error:      d.Error,
			Pages:      d.Pages,
			Lemmas:     d.Lemmas,
		}
	}
	return body
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.BadRequest:
		return http.StatusBadRequest
	case apperror.NotFound:
		return http.StatusNotFound
	case apperror.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
