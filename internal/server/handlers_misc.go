package server

import (
	"fmt"
	"net/http"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
)

const maxUploadBytes = 50 << 20

func (s *Server) analyzeCharacter(w http.ResponseWriter, r *http.Request) error {
	desc, err := s.deps.Workflow.AnalyzeCharacter(detached(r), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
	return nil
}

// analyzeLocation の結果はロケーションの説明として保存済みなのだ。
func (s *Server) analyzeLocation(w http.ResponseWriter, r *http.Request) error {
	desc, err := s.deps.Workflow.AnalyzeLocation(detached(r), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
	return nil
}

// upload は参照画像などをそのまま保存し、URL を返します。
func (s *Server) upload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.deps.Uploader.UploadFile(detached(r), UserID(r.Context()), asset.UploadKind, file, header.Size, contentType)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
	return nil
}
