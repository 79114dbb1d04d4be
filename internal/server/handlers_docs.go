package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/storage"
)

func collectionParam(r *http.Request) (storage.Collection, error) {
	coll, ok := storage.ParseCollection(r.PathValue("collection"))
	if !ok || coll == storage.CollSettings {
		return "", fmt.Errorf("コレクション %q: %w", r.PathValue("collection"), domain.ErrNotFound)
	}
	return coll, nil
}

func (s *Server) listDocs(w http.ResponseWriter, r *http.Request) error {
	coll, err := collectionParam(r)
	if err != nil {
		return err
	}
	items, err := s.deps.Repo.Snapshot(r.Context(), UserID(r.Context()), coll)
	if err != nil {
		return err
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, items)
	return nil
}

func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) error {
	coll, err := collectionParam(r)
	if err != nil {
		return err
	}
	ctx, uid, id := r.Context(), UserID(r.Context()), r.PathValue("id")

	var doc any
	switch coll {
	case storage.CollProjects:
		doc, err = s.deps.Repo.LoadProject(ctx, uid, id)
	case storage.CollCharacters:
		doc, err = s.deps.Repo.LoadCharacter(ctx, uid, id)
	case storage.CollLocations:
		doc, err = s.deps.Repo.LoadLocation(ctx, uid, id)
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, doc)
	return nil
}

// putDoc は ID 単位の upsert です。パスの ID がボディより優先される。
func (s *Server) putDoc(w http.ResponseWriter, r *http.Request) error {
	coll, err := collectionParam(r)
	if err != nil {
		return err
	}
	ctx, uid, id := r.Context(), UserID(r.Context()), r.PathValue("id")

	switch coll {
	case storage.CollProjects:
		var p domain.Project
		if err := decodeJSON(w, r, &p); err != nil {
			return err
		}
		p.ID = id
		if err := s.deps.Repo.SaveProject(ctx, uid, p); err != nil {
			return err
		}
		// 開いているセッションにも反映する（ローカルプレビューは残る）
		s.deps.Sessions.RefreshFromStore(ctx, uid, id)
		saved, err := s.deps.Repo.LoadProject(ctx, uid, id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, saved)

	case storage.CollCharacters:
		var c domain.Character
		if err := decodeJSON(w, r, &c); err != nil {
			return err
		}
		c.ID = id
		if err := s.deps.Repo.SaveCharacter(ctx, uid, c); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, c)

	case storage.CollLocations:
		var l domain.Location
		if err := decodeJSON(w, r, &l); err != nil {
			return err
		}
		l.ID = id
		if err := s.deps.Repo.SaveLocation(ctx, uid, l); err != nil {
			return err
		}
		saved, err := s.deps.Repo.LoadLocation(ctx, uid, id)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, saved)
	}
	return nil
}

// deleteDoc はドキュメントだけを消します。参照しているパネルなどは連鎖削除しないのだ。
func (s *Server) deleteDoc(w http.ResponseWriter, r *http.Request) error {
	coll, err := collectionParam(r)
	if err != nil {
		return err
	}
	ctx, uid, id := r.Context(), UserID(r.Context()), r.PathValue("id")

	switch coll {
	case storage.CollProjects:
		s.deps.Sessions.Discard(uid, id)
		err = s.deps.Repo.DeleteProject(ctx, uid, id)
	case storage.CollCharacters:
		err = s.deps.Repo.DeleteCharacter(ctx, uid, id)
	case storage.CollLocations:
		err = s.deps.Repo.DeleteLocation(ctx, uid, id)
	}
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) error {
	settings, err := s.deps.Repo.LoadSettings(r.Context(), UserID(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, settings)
	return nil
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) error {
	var settings domain.AppSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		return err
	}
	if err := s.deps.Repo.SaveSettings(r.Context(), UserID(r.Context()), settings); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, settings)
	return nil
}
