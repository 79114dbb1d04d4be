package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onbrandapp/stryp-comic-studio/pkg/batch"
	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/playback"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"
)

func (s *Server) openSession(r *http.Request) (*session.Session, error) {
	return s.deps.Sessions.Open(r.Context(), UserID(r.Context()), r.PathValue("id"))
}

// detached は生成やアップロード用のコンテキストです。
// 画面を離れてリクエストが切れても、書き込みまで走り切らせるのだ。
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess.View())
	return nil
}

func (s *Server) patchPanel(w http.ResponseWriter, r *http.Request) error {
	var patch domain.PanelPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		return err
	}
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	if err := sess.ApplyPanelChange(r.PathValue("panelID"), patch); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess.View())
	return nil
}

func (s *Server) saveProject(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	if err := sess.Save(detached(r)); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess.View())
	return nil
}

func parseMediaKind(s string) (domain.MediaKind, error) {
	switch k := domain.MediaKind(s); k {
	case domain.MediaImage, domain.MediaVideo, domain.MediaAudio:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown media kind %q", errBadRequest, s)
}

type generateResponse struct {
	Result *workflow.Result `json:"result,omitempty"`
	View   session.View     `json:"session"`
}

func (s *Server) generatePanel(w http.ResponseWriter, r *http.Request) error {
	kind, err := parseMediaKind(r.PathValue("kind"))
	if err != nil {
		return err
	}
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	res, err := s.deps.Workflow.Generate(detached(r), sess, r.PathValue("panelID"), kind)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, generateResponse{Result: res, View: sess.View()})
	return nil
}

// syncPanel はプレビューのまま残ったメディアをアップロードし直します。
func (s *Server) syncPanel(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	results, err := s.deps.Workflow.SyncPanel(detached(r), sess, r.PathValue("panelID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "session": sess.View()})
	return nil
}

func (s *Server) generateScript(w http.ResponseWriter, r *http.Request) error {
	var req workflow.ScriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if err := domain.Validate(req); err != nil {
		return err
	}
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}
	panels, err := s.deps.Workflow.GenerateScript(detached(r), sess, req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"panels": panels, "session": sess.View()})
	return nil
}

func parseBatchKind(s string) (domain.BatchKind, error) {
	switch k := domain.BatchKind(s); k {
	case domain.BatchVisuals, domain.BatchAudio:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown batch kind %q", errBadRequest, s)
}

// startBatch は confirm=false なら対象件数だけを返し、そうでなければ裏で一括生成を始めます。
func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) error {
	kind, err := parseBatchKind(r.PathValue("kind"))
	if err != nil {
		return err
	}
	sess, err := s.openSession(r)
	if err != nil {
		return err
	}

	// 実行中なら種類を問わず、件数の確認より先に待ってもらう
	if err := s.deps.Batch.Available(r.Context(), sess.ProjectID()); err != nil {
		return err
	}

	planned := len(batch.Plan(sess.Project(), kind, sess.Jobs()))
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		writeJSON(w, http.StatusOK, batch.Report{Kind: kind, Planned: planned})
		return nil
	}
	if planned == 0 {
		writeJSON(w, http.StatusOK, batch.Report{Kind: kind})
		return nil
	}

	ctx := detached(r)
	go func() {
		if _, err := s.deps.Batch.Start(ctx, sess, kind, nil); err != nil {
			slog.WarnContext(ctx, "一括生成を開始できませんでした", "project", sess.ProjectID(), "kind", kind, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, batch.Report{Kind: kind, Planned: planned})
	return nil
}

func (s *Server) stopBatch(w http.ResponseWriter, r *http.Request) error {
	stopped := s.deps.Batch.Stop(UserID(r.Context()), r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
	return nil
}

// currentProject は開いているセッションがあればその内容、なければストアの内容を返します。
func (s *Server) currentProject(r *http.Request) (domain.Project, error) {
	uid, id := UserID(r.Context()), r.PathValue("id")
	if sess, ok := s.deps.Sessions.Lookup(uid, id); ok {
		return sess.Project(), nil
	}
	p, err := s.deps.Repo.LoadProject(r.Context(), uid, id)
	if err != nil {
		return domain.Project{}, err
	}
	return *p, nil
}

func (s *Server) getPlayback(w http.ResponseWriter, r *http.Request) error {
	ctx, uid := r.Context(), UserID(r.Context())
	p, err := s.currentProject(r)
	if err != nil {
		return err
	}
	chars, err := s.deps.Repo.ListCharacters(ctx, uid)
	if err != nil {
		return err
	}
	settings, err := s.deps.Repo.LoadSettings(ctx, uid)
	if err != nil {
		return err
	}
	opts := playback.OptionsFromSettings(settings)
	if s.deps.Media != nil {
		// 音声のコマは WAV の長さで送る
		opts.AudioLength = playback.WAVLength(ctx, s.deps.Media)
	}
	steps := playback.BuildSteps(p.Panels, domain.BuildCharactersMap(chars), opts)
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
	return nil
}

// exportProject は HTML プレイヤーを返します。store=1 ならオブジェクトストアに置いて URL を返す。
func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) error {
	ctx, uid := r.Context(), UserID(r.Context())
	p, err := s.currentProject(r)
	if err != nil {
		return err
	}
	chars, err := s.deps.Repo.ListCharacters(ctx, uid)
	if err != nil {
		return err
	}
	settings, err := s.deps.Repo.LoadSettings(ctx, uid)
	if err != nil {
		return err
	}

	store, _ := strconv.ParseBool(r.URL.Query().Get("store"))
	res, err := s.deps.Publisher.Publish(detached(r), uid, p, chars, settings, store)
	if err != nil {
		return err
	}
	if store {
		writeJSON(w, http.StatusOK, map[string]string{"url": res.URL})
		return nil
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(p)))
	_, err = w.Write(res.HTML)
	return err
}

func exportFileName(p domain.Project) string {
	return "stryp-" + p.ID + ".html"
}
