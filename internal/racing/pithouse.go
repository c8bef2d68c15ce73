package racing

import (
	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/protocol"
)

// PitHouse is the daily challenge's waiting area: unbounded, never locked,
// holding players until the next scheduled race scoops them up.
type PitHouse struct {
	Players []*RacePlayer
}

func (h *PitHouse) Push(p *RacePlayer) {
	h.Players = append(h.Players, p)
}

func (h *PitHouse) Pop(token string) {
	kept := h.Players[:0]
	for _, p := range h.Players {
		if p.Token != token {
			kept = append(kept, p)
		}
	}
	h.Players = kept
}

func (h *PitHouse) Get(token string) (*RacePlayer, bool) {
	for _, p := range h.Players {
		if p.Token == token {
			return p, true
		}
	}
	return nil, false
}

func (h *PitHouse) IsEmpty() bool { return len(h.Players) == 0 }

// Drain removes and returns every waiting player.
func (h *PitHouse) Drain() []*RacePlayer {
	players := h.Players
	h.Players = nil
	return players
}

// Prune drops waiters whose token the lobby no longer recognizes.
func (h *PitHouse) Prune(alive func(token string) bool) {
	kept := h.Players[:0]
	for _, p := range h.Players {
		if alive(p.Token) {
			kept = append(kept, p)
		}
	}
	h.Players = kept
}

// NotifyNotice fans a free-text notice out to every waiting player.
func (h *PitHouse) NotifyNotice(notice string) {
	if h.IsEmpty() {
		return
	}

	frame, err := protocol.Encode(protocol.FmtSyncRaceNotice, notice)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode notice")
		return
	}

	targets := snapshotTargets(h.Players)
	if len(targets) == 0 {
		return
	}
	go sendTargets(targets, frame)
}
