package chat

import (
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/naveenspark/chatsync/pkg/domain"
)

const minPruneDelay = 10 * time.Millisecond

// SetTyping signals the local user's typing state for roomID. Nothing is
// recorded locally. Repeated typing=true signals are throttled per room;
// typing=false is always sent and resets the throttle.
func (s *Store) SetTyping(roomID string, typing bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !typing {
		delete(s.typingLimits, roomID)
	} else if s.typingInterval > 0 {
		lim, ok := s.typingLimits[roomID]
		if !ok {
			lim = rate.NewLimiter(rate.Every(s.typingInterval), 1)
			s.typingLimits[roomID] = lim
		}
		if !lim.AllowN(s.now(), 1) {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	if err := s.transport.SendTyping(roomID, typing); err != nil {
		s.log.Debug("typing_signal_failed", zap.String("room", roomID), zap.Bool("typing", typing), zap.Error(err))
	}
}

// TypingUsers returns the remote users currently typing in roomID.
func (s *Store) TypingUsers(roomID string) []domain.ChatUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneTypingLocked(roomID, s.now())
	entries := s.typing[roomID]
	out := make([]domain.ChatUser, len(entries))
	for i, e := range entries {
		out[i] = e.user
	}
	return out
}

// SetDraftMessage stores unsent text for roomID. An empty string removes it.
func (s *Store) SetDraftMessage(roomID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if content == "" {
		delete(s.drafts, roomID)
	} else {
		s.drafts[roomID] = content
	}
	s.changedLocked()
}

// DraftMessage returns the unsent text for roomID, or "".
func (s *Store) DraftMessage(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[roomID]
}

// addTypingLocked adds user to roomID's typing set, or refreshes the entry
// when the user is already there.
func (s *Store) addTypingLocked(roomID string, user domain.ChatUser) {
	expires := s.now().Add(s.typingTTL)
	entries := s.typing[roomID]
	if i := slices.IndexFunc(entries, func(e typingEntry) bool { return e.user.ID == user.ID }); i >= 0 {
		entries[i].expires = expires
		if user.Name != "" {
			entries[i].user.Name = user.Name
		}
		return
	}
	s.typing[roomID] = append(entries, typingEntry{user: user, expires: expires})
	s.scheduleTypingPruneLocked()
}

func (s *Store) removeTypingLocked(roomID, userID string) bool {
	entries := s.typing[roomID]
	i := slices.IndexFunc(entries, func(e typingEntry) bool { return e.user.ID == userID })
	if i < 0 {
		return false
	}
	entries = slices.Delete(entries, i, i+1)
	if len(entries) == 0 {
		delete(s.typing, roomID)
	} else {
		s.typing[roomID] = entries
	}
	return true
}

// pruneTypingLocked drops expired entries and reports whether any were dropped.
func (s *Store) pruneTypingLocked(roomID string, now time.Time) bool {
	if s.typingTTL <= 0 {
		return false
	}
	entries := s.typing[roomID]
	kept := slices.DeleteFunc(entries, func(e typingEntry) bool { return !now.Before(e.expires) })
	dropped := len(entries) - len(kept)
	if dropped == 0 {
		return false
	}
	s.metrics.TypingExpired.Add(float64(dropped))
	if len(kept) == 0 {
		delete(s.typing, roomID)
	} else {
		s.typing[roomID] = kept
	}
	return true
}

// scheduleTypingPruneLocked arms the expiry timer for the earliest typing
// entry. New entries never expire before existing ones, so an armed timer is
// left alone.
func (s *Store) scheduleTypingPruneLocked() {
	if s.typingTTL <= 0 || s.closed || s.typingTimer != nil {
		return
	}
	var earliest time.Time
	for _, entries := range s.typing {
		for _, e := range entries {
			if earliest.IsZero() || e.expires.Before(earliest) {
				earliest = e.expires
			}
		}
	}
	if earliest.IsZero() {
		return
	}
	s.typingTimer = time.AfterFunc(max(earliest.Sub(s.now()), minPruneDelay), s.expireTyping)
}

func (s *Store) expireTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingTimer = nil
	if s.closed {
		return
	}
	now := s.now()
	changed := false
	for roomID := range s.typing {
		if s.pruneTypingLocked(roomID, now) {
			changed = true
		}
	}
	if changed {
		s.changedLocked()
	}
	s.scheduleTypingPruneLocked()
}
