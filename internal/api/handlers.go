package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/salescoach/internal/budget"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/coaching"
)

// providerOf picks the body's provider, falling back to the header.
func providerOf(r *http.Request, body coach.ProviderID) coach.ProviderID {
	if body != "" {
		return body
	}
	return coach.ProviderID(strings.ToLower(strings.TrimSpace(r.Header.Get(ProviderHeader))))
}

type categorizeRequest struct {
	Provider coach.ProviderID `json:"provider"`
	Text     string           `json:"text"`
}

func (s *Server) categorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.svc.Categorize(r.Context(), providerOf(r, req.Provider), req.Text)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type analyzeRequest struct {
	Provider coach.ProviderID   `json:"provider"`
	Text     string             `json:"text"`
	Mode     coach.AnalysisMode `json:"mode"`
}

// analyze accepts a JSON body with text or a multipart form with an "audio"
// file plus optional "provider" and "mode" fields.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var (
		in  coaching.AnalyzeInput
		err error
	)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		in, err = s.analyzeForm(w, r)
	} else {
		var req analyzeRequest
		err = s.decodeJSON(w, r, &req)
		in = coaching.AnalyzeInput{Provider: req.Provider, Text: req.Text, Mode: req.Mode}
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if in.Mode != "" && in.Mode != coach.ModeQuick && in.Mode != coach.ModeFull {
		s.respondError(w, r, badRequest(fmt.Sprintf("mode %q is invalid; valid values: quick, full", in.Mode)))
		return
	}
	if in.Audio == nil && strings.TrimSpace(in.Text) == "" {
		s.respondError(w, r, badRequest("text or audio is required"))
		return
	}
	in.Provider = providerOf(r, in.Provider)

	out, err := s.svc.Analyze(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) analyzeForm(w http.ResponseWriter, r *http.Request) (coaching.AnalyzeInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return coaching.AnalyzeInput{}, &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)}
		}
		return coaching.AnalyzeInput{}, badRequest("invalid multipart form: " + err.Error())
	}
	in := coaching.AnalyzeInput{
		Provider: coach.ProviderID(r.FormValue("provider")),
		Text:     r.FormValue("text"),
		Mode:     coach.AnalysisMode(r.FormValue("mode")),
	}
	file, hdr, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, badRequest("read audio: " + err.Error())
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return in, badRequest("read audio: " + err.Error())
	}
	in.Audio = &coach.Audio{Name: hdr.Filename, MIMEType: audioType(hdr.Header.Get("Content-Type"), hdr.Filename), Data: data}
	// Audio and text are exclusive; the recording wins.
	in.Text = ""
	return in, nil
}

// audioTypes covers recording formats missing from the platform MIME table.
var audioTypes = map[string]string{
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

// audioType prefers the part's declared type and falls back to the file
// extension.
func audioType(declared, name string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := audioTypes[ext]; ok {
		return mt
	}
	if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
		return mt
	}
	return "application/octet-stream"
}

type scriptRequest struct {
	Provider coach.ProviderID `json:"provider"`
	coach.ScriptRequest
}

func (s *Server) generateScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if !s.kb.HasProduct(req.Product) {
		s.respondError(w, r, badRequest(fmt.Sprintf("unknown product %q", req.Product)))
		return
	}
	out, err := s.svc.GenerateScript(r.Context(), providerOf(r, req.Provider), req.ScriptRequest)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// rolePlayRequest serves the reply, turn and analysis endpoints. Analysis
// reads Conversation; the others read History.
type rolePlayRequest struct {
	Provider      coach.ProviderID    `json:"provider"`
	History       []coach.ChatMessage `json:"history,omitempty"`
	Conversation  []coach.ChatMessage `json:"conversation,omitempty"`
	ClientProfile string              `json:"clientProfile"`
	Product       string              `json:"product"`
}

func (req *rolePlayRequest) validate() error {
	if strings.TrimSpace(req.ClientProfile) == "" {
		return badRequest("clientProfile is required")
	}
	if strings.TrimSpace(req.Product) == "" {
		return badRequest("product is required")
	}
	for i, m := range slices.Concat(req.History, req.Conversation) {
		if m.Role != coach.ChatRoleUser && m.Role != coach.ChatRoleModel {
			return badRequest(fmt.Sprintf("message %d: role %q is invalid; valid values: user, model", i, m.Role))
		}
	}
	return nil
}

func (s *Server) decodeRolePlay(w http.ResponseWriter, r *http.Request) (*rolePlayRequest, bool) {
	var req rolePlayRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	if err := req.validate(); err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	req.Provider = providerOf(r, req.Provider)
	return &req, true
}

func (s *Server) rolePlayReply(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRolePlay(w, r)
	if !ok {
		return
	}
	out, err := s.svc.RolePlayReply(r.Context(), req.Provider, req.History, req.ClientProfile, req.Product)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) rolePlayTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRolePlay(w, r)
	if !ok {
		return
	}
	out, err := s.svc.RolePlayTurn(r.Context(), req.Provider, req.History, req.ClientProfile, req.Product)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) analyzeRolePlay(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRolePlay(w, r)
	if !ok {
		return
	}
	out, err := s.svc.AnalyzeRolePlay(r.Context(), req.Provider, req.Conversation, req.ClientProfile, req.Product)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type caseStudyRequest struct {
	Provider    coach.ProviderID `json:"provider"`
	ProblemType string           `json:"problemType"`
	Notes       string           `json:"notes"`
}

func (s *Server) generateCaseStudy(w http.ResponseWriter, r *http.Request) {
	var req caseStudyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.svc.GenerateCaseStudy(r.Context(), providerOf(r, req.Provider), req.ProblemType, req.Notes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.History(r.Context(), r.PathValue("kind"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Overview(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// usageResponse adds the consumed share to the raw stats.
type usageResponse struct {
	budget.Stats
	Percent float64 `json:"percent"`
}

func toUsage(st budget.Stats) usageResponse {
	return usageResponse{Stats: st, Percent: st.Percent()}
}

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Usage(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUsage(st))
}

type budgetRequest struct {
	MonthlyBudget *int `json:"monthlyBudget"`
}

func (s *Server) setBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.MonthlyBudget == nil || *req.MonthlyBudget < 0 {
		s.respondError(w, r, badRequest("monthlyBudget must be a non-negative integer"))
		return
	}
	st, err := s.svc.SetMonthlyBudget(r.Context(), *req.MonthlyBudget)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUsage(st))
}

func (s *Server) providers(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Providers())
}

func (s *Server) products(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.kb.Categories())
}

func (s *Server) profiles(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.kb.Profiles())
}

func (s *Server) problems(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.kb.Problems())
}
