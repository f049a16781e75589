// Package memrepo provides in-memory repositories with the same error
// semantics as the gorm ones. Used by handler and service tests.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"karaoke/model"
	"karaoke/repository"
)

// Store holds all tables behind a single lock.
type Store struct {
	mu sync.Mutex

	nextID int64

	users         map[int64]*model.User
	songs         map[int64]*model.Song
	playlists     map[int64]*model.Playlist
	playlistSongs map[int64][]int64 // playlist -> ordered song ids
	favorites     map[int64][]int64 // user -> song ids, oldest first
	events        map[string]*model.PaymentEvent
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[int64]*model.User),
		songs:         make(map[int64]*model.Song),
		playlists:     make(map[int64]*model.Playlist),
		playlistSongs: make(map[int64][]int64),
		favorites:     make(map[int64][]int64),
		events:        make(map[string]*model.PaymentEvent),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users returns the store as a UserRepository.
func (s *Store) Users() repository.UserRepository { return (*users)(s) }

// Songs returns the store as a SongRepository.
func (s *Store) Songs() repository.SongRepository { return (*songs)(s) }

// Playlists returns the store as a PlaylistRepository.
func (s *Store) Playlists() repository.PlaylistRepository { return (*playlists)(s) }

// Favorites returns the store as a FavoriteRepository.
func (s *Store) Favorites() repository.FavoriteRepository { return (*favorites)(s) }

// PaymentEvents returns the store as a PaymentEventRepository.
func (s *Store) PaymentEvents() repository.PaymentEventRepository { return (*events)(s) }

// ===== users =====

type users Store

func (r *users) CreateUser(_ context.Context, u *model.User) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return 0, repository.ErrDuplicateUser
		}
	}
	u.ID = s.id()
	if u.Role == "" {
		u.Role = model.UserRoleMember
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	s.users[u.ID] = &cp
	return u.ID, nil
}

func (r *users) find(match func(*model.User) bool) *model.User {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (r *users) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id }), nil
}

func (r *users) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (r *users) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (r *users) GetUserByStripeCustomerID(_ context.Context, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.find(func(u *model.User) bool { return u.StripeCustomerID == customerID }), nil
}

func (r *users) GetUserByPayPalSubscriptionID(_ context.Context, subscriptionID string) (*model.User, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.find(func(u *model.User) bool { return u.PayPalSubscriptionID == subscriptionID }), nil
}

func (r *users) update(userID int64, fn func(*model.User)) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *users) UpdateProfile(_ context.Context, userID int64, update model.ProfileUpdate) error {
	return r.update(userID, func(u *model.User) {
		if update.DisplayName != nil {
			u.DisplayName = *update.DisplayName
		}
		if update.Bio != nil {
			u.Bio = *update.Bio
		}
		if update.AvatarURL != nil {
			u.AvatarURL = *update.AvatarURL
		}
	})
}

func (r *users) SetPremium(_ context.Context, userID int64, premium bool, provider string) error {
	return r.update(userID, func(u *model.User) {
		u.Premium = premium
		if premium {
			now := time.Now()
			u.PremiumSince = &now
			u.PremiumProvider = provider
		} else {
			u.PremiumSince = nil
		}
	})
}

func (r *users) SetStripeCustomerID(_ context.Context, userID int64, customerID string) error {
	return r.update(userID, func(u *model.User) { u.StripeCustomerID = customerID })
}

func (r *users) SetPayPalSubscriptionID(_ context.Context, userID int64, subscriptionID string) error {
	return r.update(userID, func(u *model.User) { u.PayPalSubscriptionID = subscriptionID })
}

// ===== songs =====

type songs Store

func (r *songs) Create(_ context.Context, song *model.Song) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if song.CatalogKey != "" {
		for _, existing := range s.songs {
			if existing.CatalogKey == song.CatalogKey {
				return repository.ErrDuplicate
			}
		}
	}
	song.ID = s.id()
	song.CreatedAt = time.Now()
	song.UpdatedAt = song.CreatedAt
	cp := *song
	s.songs[song.ID] = &cp
	return nil
}

func (r *songs) UpsertByCatalogKey(ctx context.Context, song *model.Song) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	for id, existing := range s.songs {
		if song.CatalogKey != "" && existing.CatalogKey == song.CatalogKey {
			song.ID = id
			song.CreatedAt = existing.CreatedAt
			song.UpdatedAt = time.Now()
			cp := *song
			s.songs[id] = &cp
			s.mu.Unlock()
			return false, nil
		}
	}
	s.mu.Unlock()
	return true, r.Create(ctx, song)
}

func (r *songs) GetByID(_ context.Context, id int64) (*model.Song, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if song, ok := s.songs[id]; ok {
		cp := *song
		return &cp, nil
	}
	return nil, nil
}

func (r *songs) GetByIDs(_ context.Context, ids []int64) ([]*model.Song, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.songsByIDs(ids), nil
}

// songsByIDs keeps the order of ids and skips unknown ones. Caller holds the lock.
func (s *Store) songsByIDs(ids []int64) []*model.Song {
	out := make([]*model.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := s.songs[id]; ok {
			cp := *song
			out = append(out, &cp)
		}
	}
	return out
}

func (r *songs) Search(_ context.Context, q model.SongQuery) ([]*model.Song, int64, error) {
	q = q.Normalize()
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	keyword := strings.ToLower(q.Keyword)
	var matched []*model.Song
	for _, song := range s.songs {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(song.Title), keyword) &&
			!strings.Contains(strings.ToLower(song.Artist), keyword) {
			continue
		}
		if q.Genre != "" && song.Genre != q.Genre {
			continue
		}
		cp := *song
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *songs) Delete(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.songs, id)
	return nil
}

// ===== playlists =====

type playlists Store

func (r *playlists) Create(_ context.Context, p *model.Playlist) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.playlists[p.ID] = &cp
	return nil
}

func (r *playlists) GetByID(_ context.Context, id int64) (*model.Playlist, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.playlists[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *playlists) list(match func(*model.Playlist) bool) []*model.Playlist {
	s := (*Store)(r)
	out := make([]*model.Playlist, 0)
	for _, p := range s.playlists {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *playlists) ListByUser(_ context.Context, userID int64) ([]*model.Playlist, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.list(func(p *model.Playlist) bool { return p.UserID == userID }), nil
}

func (r *playlists) CountByUser(ctx context.Context, userID int64) (int64, error) {
	list, _ := r.ListByUser(ctx, userID)
	return int64(len(list)), nil
}

func (r *playlists) Update(_ context.Context, id int64, update model.PlaylistUpdate) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[id]
	if !ok {
		return repository.ErrNotFound
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.Description != nil {
		p.Description = *update.Description
	}
	if update.IsPublic != nil {
		p.IsPublic = *update.IsPublic
	}
	if update.CoverURL != nil {
		p.CoverURL = *update.CoverURL
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *playlists) Delete(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.playlists, id)
	delete(s.playlistSongs, id)
	return nil
}

func (r *playlists) ListPublic(_ context.Context, limit int) ([]*model.Playlist, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := r.list(func(p *model.Playlist) bool { return p.IsPublic })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *playlists) GetSongs(_ context.Context, playlistID int64) ([]*model.Song, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.songsByIDs(s.playlistSongs[playlistID]), nil
}

func (r *playlists) CountSongs(_ context.Context, playlistID int64) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.playlistSongs[playlistID])), nil
}

func (r *playlists) AddSong(_ context.Context, playlistID, songID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.playlistSongs[playlistID] {
		if id == songID {
			return repository.ErrDuplicate
		}
	}
	s.playlistSongs[playlistID] = append(s.playlistSongs[playlistID], songID)
	return nil
}

func (r *playlists) RemoveSong(_ context.Context, playlistID, songID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.playlistSongs[playlistID]
	for i, id := range ids {
		if id == songID {
			s.playlistSongs[playlistID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *playlists) MoveSong(_ context.Context, playlistID, songID int64, position int) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.playlistSongs[playlistID]
	rest := make([]int64, 0, len(ids))
	found := false
	for _, id := range ids {
		if id == songID {
			found = true
			continue
		}
		rest = append(rest, id)
	}
	if !found {
		return repository.ErrNotFound
	}
	if position < 0 {
		position = 0
	}
	if position > len(rest) {
		position = len(rest)
	}
	out := append([]int64{}, rest[:position]...)
	out = append(out, songID)
	out = append(out, rest[position:]...)
	s.playlistSongs[playlistID] = out
	return nil
}

// ===== favorites =====

type favorites Store

func (r *favorites) Add(_ context.Context, userID, songID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.favorites[userID] {
		if id == songID {
			return repository.ErrDuplicate
		}
	}
	s.favorites[userID] = append(s.favorites[userID], songID)
	return nil
}

func (r *favorites) Remove(_ context.Context, userID, songID int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.favorites[userID]
	for i, id := range ids {
		if id == songID {
			s.favorites[userID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *favorites) Exists(_ context.Context, userID, songID int64) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.favorites[userID] {
		if id == songID {
			return true, nil
		}
	}
	return false, nil
}

func (r *favorites) Count(_ context.Context, userID int64) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.favorites[userID])), nil
}

// ListSongs returns favorites newest first, like the gorm repository.
func (r *favorites) ListSongs(_ context.Context, userID int64) ([]*model.Song, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.favorites[userID]
	reversed := make([]int64, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	return s.songsByIDs(reversed), nil
}

// ===== payment events =====

type events Store

func eventKey(provider, eventID string) string { return provider + "/" + eventID }

func (r *events) Record(_ context.Context, ev *model.PaymentEvent) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey(ev.Provider, ev.EventID)
	if _, ok := s.events[key]; ok {
		return false, nil
	}
	ev.ID = s.id()
	ev.CreatedAt = time.Now()
	cp := *ev
	s.events[key] = &cp
	return true, nil
}

func (r *events) Forget(_ context.Context, provider, eventID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, eventKey(provider, eventID))
	return nil
}

// EventCount returns how many payment events are recorded.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
