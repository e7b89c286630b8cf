package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/victornm/livequiz/internal/broadcast"
	"github.com/victornm/livequiz/internal/domain"
)

// join admits a participant under a nickname. A nickname held by an online player is
// rejected, one held by an offline player is a reconnect that takes over the old record.
func (e *Engine) join(ctx context.Context, s *tx, id, nickname string) outcome {
	if strings.TrimSpace(nickname) == "" {
		return ignored
	}

	oldID, p, found := s.FindPlayer(nickname)
	switch {
	case found && p.Online:
		err := e.registry.Send(ctx, s.Code, id, broadcast.NewJoinError(broadcast.DuplicateJoinMessage))
		if err != nil {
			slog.ErrorContext(ctx, "engine: send join error failed", "session", s.Code, "participant", id, "error", err)
		}
		return rejected

	case found:
		if _, taken := s.Players[id]; taken && oldID != id {
			return ignored
		}

		delete(s.Players, oldID)
		p.Online = true
		s.Players[id] = p

		if s.PresenterID == oldID {
			s.PresenterID = id
		}
		e.registry.Rebind(s.Code, oldID, id)

		slog.InfoContext(ctx, "engine: player reconnected",
			"session", s.Code,
			"nickname", nickname,
			"previous_participant", oldID,
			"participant", id,
		)
		return applied

	default:
		if _, taken := s.Players[id]; taken {
			return ignored
		}

		s.Players[id] = domain.NewPlayer(nickname)
		if nickname == e.presenter || s.PresenterID == "" {
			s.PresenterID = id
		}

		slog.InfoContext(ctx, "engine: player joined",
			"session", s.Code,
			"nickname", nickname,
			"participant", id,
			"presenter", s.PresenterID == id,
		)
		return applied
	}
}
