package billing

import (
	"karaoke/config"
	"karaoke/model"
)

// Unlimited marks a limit that does not apply.
const Unlimited = -1

// Limits 免费用户的限额
type Limits struct {
	FreeMaxPlaylists     int
	FreeMaxPlaylistSongs int
	FreeMaxFavorites     int
	CrossfadeSeconds     float64
}

// LimitsFromConfig reads the free tier limits.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		FreeMaxPlaylists:     cfg.FreeMaxPlaylists,
		FreeMaxPlaylistSongs: cfg.FreeMaxPlaylistSongs,
		FreeMaxFavorites:     cfg.FreeMaxFavorites,
		CrossfadeSeconds:     cfg.CrossfadeSeconds,
	}
}

// Entitlements is what a user may do, derived from the premium flag alone.
type Entitlements struct {
	Premium          bool    `json:"premium"`
	MaxPlaylists     int     `json:"maxPlaylists"`
	MaxPlaylistSongs int     `json:"maxPlaylistSongs"`
	MaxFavorites     int     `json:"maxFavorites"`
	Crossfade        bool    `json:"crossfade"`
	CrossfadeSeconds float64 `json:"crossfadeSeconds"`
}

// For returns the entitlements of u. A nil user gets the free tier.
func (l Limits) For(u *model.User) Entitlements {
	if u != nil && u.Premium {
		return Entitlements{
			Premium:          true,
			MaxPlaylists:     Unlimited,
			MaxPlaylistSongs: Unlimited,
			MaxFavorites:     Unlimited,
			Crossfade:        l.CrossfadeSeconds > 0,
			CrossfadeSeconds: l.CrossfadeSeconds,
		}
	}
	return Entitlements{
		MaxPlaylists:     l.FreeMaxPlaylists,
		MaxPlaylistSongs: l.FreeMaxPlaylistSongs,
		MaxFavorites:     l.FreeMaxFavorites,
	}
}

func allows(limit, current int) bool {
	return limit == Unlimited || current < limit
}

// CanCreatePlaylist reports whether one more playlist fits.
func (e Entitlements) CanCreatePlaylist(owned int) bool { return allows(e.MaxPlaylists, owned) }

// CanAddPlaylistSong reports whether one more song fits in a playlist.
func (e Entitlements) CanAddPlaylistSong(songs int) bool { return allows(e.MaxPlaylistSongs, songs) }

// CanAddFavorite reports whether one more favorite fits.
func (e Entitlements) CanAddFavorite(favorites int) bool { return allows(e.MaxFavorites, favorites) }
