package session

import (
	"context"
	"os"
	"sort"
	"time"
)

// Info contains summary information about a session, cheap enough to build
// for listings without loading logs or artifacts.
type Info struct {
	ID       string    `json:"id"`
	Request  string    `json:"request"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Stage    Stage     `json:"stage"`
	Status   Status    `json:"status"`
	IsLocked bool      `json:"is_locked"`
	Dir      string    `json:"dir"`
}

// List returns summaries for all sessions, most recently updated first.
// Directories without a parseable header are skipped rather than failing
// the whole listing.
func (s *Store) List(ctx context.Context) ([]*Info, error) {
	entries, err := os.ReadDir(s.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []*Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sess, err := s.Load(ctx, entry.Name())
		if err != nil {
			continue
		}

		dir := s.SessionDir(sess.ID)
		_, locked := IsLocked(dir)
		infos = append(infos, &Info{
			ID:       sess.ID,
			Request:  sess.Request,
			Created:  sess.Created,
			Updated:  sess.Updated,
			Stage:    sess.Stage,
			Status:   sess.Status,
			IsLocked: locked,
			Dir:      dir,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Updated.After(infos[j].Updated)
	})
	return infos, nil
}
