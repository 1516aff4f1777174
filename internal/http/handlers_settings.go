package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dobkap/internal/calendar"
	"dobkap/internal/core"
	"dobkap/internal/log"
)

func (s *Server) handleGetMailbox(w http.ResponseWriter, r *http.Request) {
	mb, err := s.store.GetMailbox(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toMailboxResponse(mb))
}

// handlePutMailbox creates or replaces the mailbox settings. An empty
// password keeps the stored one. The cursor is kept unless syncFrom is set.
func (s *Server) handlePutMailbox(w http.ResponseWriter, r *http.Request) {
	var req mailboxRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	req.IMAPHost = strings.TrimSpace(req.IMAPHost)
	if req.EmailAddress == "" || req.IMAPHost == "" {
		fail(w, r, log.OpUpdate, badRequest("emailAddress and imapHost are required"))
		return
	}

	mb, err := s.store.GetMailbox(r.Context())
	exists := err == nil
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		fail(w, r, log.OpUpdate, err)
		return
	}

	switch {
	case req.SyncFrom != "":
		day, err := core.ParseDate(req.SyncFrom)
		if err != nil {
			fail(w, r, log.OpUpdate, badRequest("invalid syncFrom: %v", err))
			return
		}
		mb.Cursor = core.DateCursor(day)
	case !exists:
		mb.Cursor = core.DateCursor(time.Now())
	}
	if req.Password != "" || !exists {
		mb.Password = req.Password
	}
	mb.EmailAddress = req.EmailAddress
	mb.IMAPHost = req.IMAPHost
	mb.IMAPPort = req.IMAPPort

	saved, err := s.store.SaveMailbox(r.Context(), mb)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toMailboxResponse(saved))
}

func (s *Server) handleListImporters(w http.ResponseWriter, r *http.Request) {
	importers, err := s.store.ListImporters(r.Context())
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(importers, toImporterDTO))
}

// handleCreateImporter attaches the importer to the configured mailbox when
// the request names none.
func (s *Server) handleCreateImporter(w http.ResponseWriter, r *http.Request) {
	var req importerDTO
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	im := req.importer()
	im.ID = 0
	if im.MailboxID == 0 {
		mb, err := s.store.GetMailbox(r.Context())
		if errors.Is(err, core.ErrNotFound) {
			fail(w, r, log.OpCreate, badRequest("configure a mailbox before adding importers"))
			return
		}
		if err != nil {
			fail(w, r, log.OpCreate, err)
			return
		}
		im.MailboxID = mb.ID
	}

	created, err := s.store.CreateImporter(r.Context(), im)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toImporterDTO(created))
}

func (s *Server) handleUpdateImporter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	current, err := s.store.GetImporter(r.Context(), id)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	var req importerDTO
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	im := req.importer()
	im.ID = id
	if im.MailboxID == 0 {
		im.MailboxID = current.MailboxID
	}
	if err := s.store.UpdateImporter(r.Context(), im); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toImporterDTO(im))
}

func (s *Server) handleDeleteImporter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.store.DeleteImporter(r.Context(), id); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileDTO
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	if jmbg := strings.TrimSpace(req.JMBG); jmbg != "" && !isDigits(jmbg, 13) {
		fail(w, r, log.OpUpdate, badRequest("jmbg must be 13 digits"))
		return
	}
	if err := s.store.SaveProfile(r.Context(), req.profile()); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetHolidays(w http.ResponseWriter, r *http.Request) {
	conf, err := s.store.GetHolidayConf(r.Context())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handlePutHolidays(w http.ResponseWriter, r *http.Request) {
	var conf calendar.HolidayConf
	if err := decodeJSON(w, r, &conf); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	if _, err := calendar.New(conf); err != nil {
		fail(w, r, log.OpUpdate, badRequest("%v", err))
		return
	}
	if err := s.store.SetHolidayConf(r.Context(), conf); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
