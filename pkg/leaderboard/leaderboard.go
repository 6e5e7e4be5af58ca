// Package leaderboard ranks readers by XP in a redis sorted set. With a
// single local user the board has one row, but the ranking is keyed by user
// so a multi-user deployment only needs more writers.
package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type Entry struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	XP     float64 `json:"xp"`
}

type Service struct {
	redis  redis.UniversalClient
	prefix string

	mu    sync.Mutex
	names map[string]string
}

// NewService builds the leaderboard over an existing redis client.
func NewService(client redis.UniversalClient, prefix string) *Service {
	if prefix == "" {
		prefix = "readquest"
	}
	return &Service{redis: client, prefix: prefix, names: make(map[string]string)}
}

// Update overwrites the user's XP on the board.
func (s *Service) Update(ctx context.Context, userID, name string, xp int) error {
	if err := s.redis.ZAdd(ctx, s.key(), redis.Z{
		Score:  float64(xp),
		Member: userID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	s.mu.Lock()
	s.names[userID] = name
	s.mu.Unlock()
	return nil
}

// Top returns up to limit entries ranked by XP descending.
func (s *Service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := s.redis.ZRevRangeWithScores(ctx, s.key(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	entries := make([]Entry, 0, len(res))
	s.mu.Lock()
	for _, z := range res {
		userID, _ := z.Member.(string)
		name := s.names[userID]
		if name == "" {
			name = userID
		}
		entries = append(entries, Entry{UserID: userID, Name: name, XP: z.Score})
	}
	s.mu.Unlock()
	return entries, nil
}

func (s *Service) key() string {
	return s.prefix + ":leaderboard:xp"
}
