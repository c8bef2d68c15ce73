// Package registry tracks logged-in players and race sessions behind a
// single lock, and drives every session's lifecycle from one tick loop.
package registry

import (
	"github.com/openrally/rallyd/internal/racing"
)

// Lobby is the set of logged-in identities keyed by session token. It is
// not internally synchronized; SessionRegistry serializes all access.
type Lobby struct {
	players map[string]*racing.LobbyPlayer
}

func NewLobby() *Lobby {
	return &Lobby{players: make(map[string]*racing.LobbyPlayer)}
}

func (l *Lobby) Push(p *racing.LobbyPlayer) {
	l.players[p.Token] = p
}

func (l *Lobby) Pop(token string) {
	delete(l.players, token)
}

func (l *Lobby) Get(token string) (*racing.LobbyPlayer, bool) {
	p, ok := l.players[token]
	return p, ok
}

func (l *Lobby) Has(token string) bool {
	_, ok := l.players[token]
	return ok
}

// TokenByName finds the token currently issued to a display name.
func (l *Lobby) TokenByName(name string) (string, bool) {
	for token, p := range l.players {
		if p.Name == name {
			return token, true
		}
	}
	return "", false
}

// Alive reports whether the token is logged in and recently heartbeated.
func (l *Lobby) Alive(token string) bool {
	p, ok := l.players[token]
	return ok && p.IsAlive()
}

func (l *Lobby) Count() int { return len(l.players) }
